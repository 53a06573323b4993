package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDocuments(t *testing.T) {
	input := `# seed corpus
{"id":"d1","content":"开题报告写作要点","metadata":{"audience":"硕士生"}}

{"id":"d2","content":"undergraduate syllabus","metadata":{"audience":"本科生"}}
`
	docs, err := ReadDocuments(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "硕士生", docs[0].Audience())
	assert.Equal(t, "本科生", docs[1].Audience())
}

func TestReadDocumentsErrors(t *testing.T) {
	_, err := ReadDocuments(strings.NewReader(`{"id":"d1"}`))
	assert.ErrorContains(t, err, "line 1: empty content")

	_, err = ReadDocuments(strings.NewReader("{\"content\":\"ok\"}\nnot json"))
	assert.ErrorContains(t, err, "line 2")
}
