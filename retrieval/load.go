package retrieval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/chatmesh/core"
)

// ReadDocuments decodes one JSON document per line:
//
//	{"id":"d1","content":"...","metadata":{"audience":"硕士生"}}
//
// Blank lines and lines starting with '#' are skipped.
func ReadDocuments(r io.Reader) ([]core.Document, error) {
	var docs []core.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var d core.Document
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(d.Content) == "" {
			return nil, fmt.Errorf("line %d: empty content", line)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
