// Package retrieval provides core.Searcher implementations. Static is an
// in-memory keyword scorer for tests and demos; retrieval/chromem wraps an
// embedded vector database.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/chatmesh/core"
)

// Static scores documents by token overlap with the query. Documents with
// no overlap are not returned.
type Static struct {
	mu   sync.RWMutex
	docs []core.Document
}

// NewStatic creates a searcher over docs.
func NewStatic(docs ...core.Document) *Static {
	s := &Static{}
	s.Add(docs...)
	return s
}

// Add indexes more documents.
func (s *Static) Add(docs ...core.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
}

// Search implements core.Searcher.
func (s *Static) Search(_ context.Context, query string, k int) ([]core.Document, error) {
	if k <= 0 {
		return []core.Document{}, nil
	}
	terms := tokens(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]core.Document, 0, len(s.docs))
	for _, d := range s.docs {
		score := overlap(terms, tokens(d.Content))
		if score == 0 {
			continue
		}
		d.Score = score
		scored = append(scored, d)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// overlap is the fraction of query terms present in the document.
func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// tokens splits on non-letters/digits and lowercases. Han characters count
// as single tokens so CJK text without spaces still matches.
func tokens(text string) map[string]struct{} {
	out := map[string]struct{}{}
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			out[strings.ToLower(word.String())] = struct{}{}
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			out[string(r)] = struct{}{}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}
