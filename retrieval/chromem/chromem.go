// Package chromem provides a core.Searcher backed by chromem-go, a pure Go
// embedded vector database. Embeddings come from the injected embedding
// function; this package never computes them itself.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	chromem "github.com/philippgille/chromem-go"
)

// Options configure the searcher.
type Options struct {
	Collection  string // default "documents"
	PersistPath string // "" keeps the database in memory
	Compress    bool   // gzip the persisted database
	Concurrency int    // embedding workers for AddDocuments; default GOMAXPROCS
	Logger      logging.Logger
}

// Searcher wraps one chromem collection.
type Searcher struct {
	db   *chromem.DB
	col  *chromem.Collection
	opts Options
}

// New opens (or creates) the collection using embed for documents and queries.
func New(embed chromem.EmbeddingFunc, optFns ...func(o *Options)) (*Searcher, error) {
	opts := Options{Collection: "documents", Concurrency: runtime.GOMAXPROCS(0)}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	var (
		db  *chromem.DB
		err error
	)
	if opts.PersistPath != "" {
		db, err = chromem.NewPersistentDB(opts.PersistPath, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(opts.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Searcher{db: db, col: col, opts: opts}, nil
}

// Add embeds and stores documents. Document scores are ignored.
func (s *Searcher) Add(ctx context.Context, docs ...core.Document) error {
	if len(docs) == 0 {
		return nil
	}
	cdocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			return fmt.Errorf("document %q: empty content", d.ID)
		}
		id := d.ID
		if id == "" {
			id = core.NewID()
		}
		cdocs = append(cdocs, chromem.Document{ID: id, Content: d.Content, Metadata: d.Metadata})
	}
	if err := s.col.AddDocuments(ctx, cdocs, s.opts.Concurrency); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	s.opts.Logger.Debug("retrieval.chromem.added", "collection", s.opts.Collection, "count", len(cdocs))
	return nil
}

// Count returns the number of stored documents.
func (s *Searcher) Count() int { return s.col.Count() }

// Search implements core.Searcher. k is clamped to the collection size.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]core.Document, error) {
	if k > s.col.Count() {
		k = s.col.Count()
	}
	if k <= 0 {
		return []core.Document{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrRetrievalFailure)
	}

	results, err := s.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrRetrievalFailure, err)
	}

	docs := make([]core.Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, core.Document{
			ID:       r.ID,
			Content:  r.Content,
			Score:    float64(r.Similarity),
			Metadata: r.Metadata,
		})
	}
	return docs, nil
}
