// Package redis provides a ConversationStore backed by Redis so that several
// service instances share conversation state.
//
// Layout: one list per conversation under key <Prefix><conversationID>; each
// element is one msgpack turn record (see memory/codec), structurally equal
// to one element of a file-backend array.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/memory/codec"
	goredis "github.com/redis/go-redis/v9"
)

const backendName = "redis"

// Interface compliance (compile-time assertion)
var _ core.ConversationStore = (*Store)(nil)

// Options configure the redis store.
type Options struct {
	Prefix string        // key prefix; default "chatmesh:conversation:"
	TTL    time.Duration // refreshed on every append; 0 disables expiry
	Logger logging.Logger
}

// Store is the distributed ConversationStore.
type Store struct {
	client goredis.UniversalClient
	opts   Options
}

// New wraps an existing client.
func New(client goredis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{Prefix: "chatmesh:conversation:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Store{client: client, opts: opts}
}

// NewFromURL connects using a redis:// URL.
func NewFromURL(url string, optFns ...func(o *Options)) (*Store, error) {
	ropts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(goredis.NewClient(ropts), optFns...), nil
}

// Key returns the list key holding conversationID.
func (s *Store) Key(conversationID string) string { return s.opts.Prefix + conversationID }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return core.NewBackendError(backendName, "ping", "", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// GetOrCreate implements core.ConversationStore. Lists come into existence
// with their first element, so no round trip is needed.
func (s *Store) GetOrCreate(_ context.Context, conversationID string) (core.ConversationHandle, error) {
	return core.ConversationHandle{ConversationID: conversationID}, nil
}

// AppendTurn implements core.ConversationStore.
func (s *Store) AppendTurn(ctx context.Context, h core.ConversationHandle, turn core.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("append turn: invalid role %q", turn.Role)
	}
	b, err := codec.EncodeTurn(turn)
	if err != nil {
		return err
	}

	key := s.Key(h.ConversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	if s.opts.TTL > 0 {
		pipe.Expire(ctx, key, s.opts.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewBackendError(backendName, "append", h.ConversationID, err)
	}
	return nil
}

// ReadWindow implements core.ConversationStore.
func (s *Store) ReadWindow(ctx context.Context, h core.ConversationHandle, maxTurns int) ([]core.Turn, error) {
	if maxTurns <= 0 {
		return []core.Turn{}, nil
	}
	return s.lrange(ctx, h.ConversationID, int64(-maxTurns))
}

// Load returns the full history of conversationID.
func (s *Store) Load(ctx context.Context, conversationID string) ([]core.Turn, error) {
	return s.lrange(ctx, conversationID, 0)
}

// Dump exports the full history in the file-backend format.
func (s *Store) Dump(ctx context.Context, conversationID string) ([]byte, error) {
	turns, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return codec.EncodeTurns(turns)
}

// Restore replaces the history of conversationID with data produced by Dump
// (or read from a file-backend conversation file).
func (s *Store) Restore(ctx context.Context, conversationID string, data []byte) error {
	turns, err := codec.DecodeTurns(data)
	if err != nil {
		return err
	}
	key := s.Key(conversationID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(turns) > 0 {
		elems := make([]any, 0, len(turns))
		for _, t := range turns {
			b, err := codec.EncodeTurn(t)
			if err != nil {
				return err
			}
			elems = append(elems, b)
		}
		pipe.RPush(ctx, key, elems...)
		if s.opts.TTL > 0 {
			pipe.Expire(ctx, key, s.opts.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewBackendError(backendName, "restore", conversationID, err)
	}
	return nil
}

func (s *Store) lrange(ctx context.Context, conversationID string, start int64) ([]core.Turn, error) {
	vals, err := s.client.LRange(ctx, s.Key(conversationID), start, -1).Result()
	if err != nil {
		return nil, core.NewBackendError(backendName, "read", conversationID, err)
	}
	turns := make([]core.Turn, 0, len(vals))
	for _, v := range vals {
		t, err := codec.DecodeTurn([]byte(v))
		if err != nil {
			s.opts.Logger.Error("memory.redis.decode_failed", "conversation_id", conversationID, "error", err.Error())
			return nil, core.NewBackendError(backendName, "read", conversationID, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
