package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/chatmesh"
	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
	"github.com/hupe1980/chatmesh/model/anthropic"
	"github.com/hupe1980/chatmesh/model/openai"
	"github.com/hupe1980/chatmesh/retrieval"
	chromemsearch "github.com/hupe1980/chatmesh/retrieval/chromem"
	"github.com/hupe1980/chatmesh/rewrite"
	chromem "github.com/philippgille/chromem-go"
)

// app bundles the wired collaborators of one command invocation.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *model.Registry
	searcher core.Searcher
	orch     *chatmesh.Orchestrator
	closers  []func() error
}

// newApp wires the orchestrator from cfg. A nil registry is built from the
// configured providers.
func newApp(ctx context.Context, cfg *config.Config, registry *model.Registry, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg.Log, logOut)}
	if registry == nil {
		registry = newRegistry(cfg)
	}
	a.registry = registry

	store, closeStore, err := chatmesh.OpenStore(ctx, cfg.Memory, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open %s memory: %w", cfg.Memory.Backend, err)
	}
	a.closers = append(a.closers, closeStore)

	searcher, err := newSearcher(ctx, cfg, a.logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.searcher = searcher

	rewriter := a.newRewriter()

	orch, err := chatmesh.New(registry, func(o *chatmesh.Options) {
		o.Store = store
		o.Searcher = searcher
		o.Rewriter = rewriter
		o.TopK = cfg.TopK
		o.TargetAudience = cfg.TargetAudience
		o.RetrieveSize = cfg.RetrieveSize
		if cfg.SystemPrompt != "" {
			o.SystemPrompt = cfg.SystemPrompt
		}
		o.Tools = builtinTools(searcher, cfg.TopK)
		o.Logger = a.logger
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.orch = orch
	return a, nil
}

// Close releases backend resources.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, w io.Writer) logging.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := logging.ParseLevel(cfg.Level)
	switch strings.ToLower(cfg.Format) {
	case "console":
		return logging.NewConsoleLogger(w, level)
	default:
		lc := logging.DefaultLoggerConfig()
		lc.Level = level
		lc.Format = strings.ToLower(cfg.Format)
		lc.Output = w
		lc.AddSource = cfg.AddSource
		lc.Component = "chatmesh"
		return logging.NewLogger(lc)
	}
}

// newRegistry registers one model per configured provider under its model
// name and its provider name. The mock model is always available.
func newRegistry(cfg *config.Config) *model.Registry {
	r := model.NewRegistry(model.NewMockModel("mock", "mock"))

	if cfg.Providers.OpenAIKey != "" {
		m := openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.Providers.OpenAIKey
			o.BaseURL = cfg.Providers.OpenAIBaseURL
			o.Model = cfg.Providers.OpenAIModel
		})
		r.Register(cfg.Providers.OpenAIModel, m)
		r.Register("openai", m)
	}
	if cfg.Providers.AnthropicKey != "" {
		m := anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.Providers.AnthropicKey
			o.Model = anthropicsdk.Model(cfg.Providers.AnthropicModel)
		})
		r.Register(cfg.Providers.AnthropicModel, m)
		r.Register("anthropic", m)
	}
	return r
}

// newSearcher uses an embedded chromem-go collection when OpenAI embeddings
// are available and the keyword searcher otherwise. Seed documents are
// indexed on startup.
func newSearcher(ctx context.Context, cfg *config.Config, logger logging.Logger) (core.Searcher, error) {
	var seed []core.Document
	if cfg.Retrieval.SeedFile != "" {
		f, err := os.Open(cfg.Retrieval.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("open seed documents: %w", err)
		}
		seed, err = retrieval.ReadDocuments(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read seed documents: %w", err)
		}
	}

	if cfg.Providers.OpenAIKey == "" {
		logger.Info("retrieval.static", "documents", len(seed))
		return retrieval.NewStatic(seed...), nil
	}

	embed := chromem.NewEmbeddingFuncOpenAI(cfg.Providers.OpenAIKey, chromem.EmbeddingModelOpenAI(cfg.Retrieval.EmbeddingModel))
	s, err := chromemsearch.New(embed, func(o *chromemsearch.Options) {
		o.Collection = cfg.Retrieval.Collection
		o.PersistPath = cfg.Retrieval.PersistPath
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}
	if err := s.Add(ctx, seed...); err != nil {
		return nil, fmt.Errorf("index seed documents: %w", err)
	}
	logger.Info("retrieval.chromem", "collection", cfg.Retrieval.Collection, "documents", s.Count())
	return s, nil
}

// newRewriter returns nil when the rewrite model cannot be resolved; the
// RAG path then searches with the raw query.
func (a *app) newRewriter() core.QueryRewriter {
	name := a.cfg.Retrieval.RewriteModel
	if name == "" {
		name = a.cfg.Model
	}
	m, err := a.registry.Get(name)
	if err != nil {
		a.logger.Warn("rewrite.disabled", "model", name, "error", err.Error())
		return nil
	}
	rw := rewrite.NewModelRewriter(m, func(o *rewrite.ModelOptions) { o.Logger = a.logger })
	if !a.cfg.Retrieval.RewriteCache {
		return rw
	}
	cached, err := rewrite.NewCached(rw, func(o *rewrite.CacheOptions) { o.TTL = a.cfg.Retrieval.RewriteTTL })
	if err != nil {
		a.logger.Warn("rewrite.cache_disabled", "error", err.Error())
		return rw
	}
	a.closers = append(a.closers, func() error {
		cached.Close()
		return nil
	})
	return cached
}
