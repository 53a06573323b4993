package chatmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/memory"
	"github.com/hupe1980/chatmesh/memory/file"
	"github.com/hupe1980/chatmesh/memory/redis"
)

// OpenStore builds the conversation store selected by cfg.Backend. The
// returned close function releases backend resources and is never nil.
// The redis backend is pinged so a misconfigured address fails at startup.
func OpenStore(ctx context.Context, cfg config.MemoryConfig, logger logging.Logger) (core.ConversationStore, func() error, error) {
	noop := func() error { return nil }
	logger = logging.OrNoOp(logger)

	switch cfg.Backend {
	case config.BackendInMemory, "":
		return memory.NewInMemoryStore(), noop, nil

	case config.BackendFile:
		s, err := file.New(cfg.FileRoot, func(o *file.Options) {
			o.Logger = logger
		})
		if err != nil {
			return nil, noop, err
		}
		logger.Info("memory.file", "root", s.Root())
		return s, noop, nil

	case config.BackendRedis:
		s, err := redis.NewFromURL(cfg.RedisURL, func(o *redis.Options) {
			if cfg.RedisPrefix != "" {
				o.Prefix = cfg.RedisPrefix
			}
			o.TTL = cfg.RedisTTL
			o.Logger = logger
		})
		if err != nil {
			return nil, noop, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, noop, err
		}
		logger.Info("memory.redis", "prefix", s.Key(""), "ttl", cfg.RedisTTL.String())
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown memory backend %q", cfg.Backend)
}
