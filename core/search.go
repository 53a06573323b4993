package core

import "context"

// AudienceKey is the metadata key holding a document's audience tag.
const AudienceKey = "audience"

// Document is a retrieved item with a similarity score and metadata. Documents
// are produced per request and never persisted by chatmesh.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Audience returns the document's audience tag or "" when untagged.
func (d Document) Audience() string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[AudienceKey]
}

// Searcher is the similarity-search collaborator. Search returns at most k
// documents ordered by descending similarity.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// QueryRewriter turns a raw user query into one better suited for retrieval.
// Implementations must degrade gracefully: on any failure they return the
// original query unchanged.
type QueryRewriter interface {
	Rewrite(ctx context.Context, query string) string
}
