// Package file provides a ConversationStore that persists each conversation
// as one msgpack file on the local filesystem, so history survives restarts.
//
// Layout: <root>/<hex(sha256(conversationID))>.turns holds a msgpack
// envelope carrying the conversation id and the encoded turn array (see
// memory/codec); the same name plus .lock is the advisory lock file. Names
// have a fixed length whatever the id, so any id fits within NAME_MAX. Appends are read-modify-write, serialized per
// conversation by an in-process keyed mutex and a gofrs/flock file lock, and
// land atomically via temp file + rename.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/memory/codec"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	backendName = "file"
	ext         = ".turns"
)

// envelope is the file content: the owning id and the codec turn array.
type envelope struct {
	ID    string             `msgpack:"id"`
	Turns msgpack.RawMessage `msgpack:"turns"`
}

// Interface compliance (compile-time assertion)
var _ core.ConversationStore = (*Store)(nil)

// Options configure the file store.
type Options struct {
	Perm          fs.FileMode   // conversation file mode; default 0o600
	LockRetry     time.Duration // poll interval while waiting for the file lock; default 10ms
	Logger        logging.Logger
	SyncOnWrite   bool // fsync the temp file before rename
	CreateOnFetch bool // GetOrCreate materializes an empty file; default true
}

// Store is the file-persisted ConversationStore.
type Store struct {
	root  string
	opts  Options
	locks keyedMutex
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Perm:          0o600,
		LockRetry:     10 * time.Millisecond,
		CreateOnFetch: true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file store: root directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, core.NewBackendError(backendName, "init", "", err)
	}
	return &Store{root: dir, opts: opts, locks: keyedMutex{locks: map[string]*keyLock{}}}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Path returns the file holding conversationID.
func (s *Store) Path(conversationID string) string {
	sum := sha256.Sum256([]byte(conversationID))
	return filepath.Join(s.root, hex.EncodeToString(sum[:])+ext)
}

// GetOrCreate implements core.ConversationStore.
func (s *Store) GetOrCreate(ctx context.Context, conversationID string) (core.ConversationHandle, error) {
	h := core.ConversationHandle{ConversationID: conversationID}
	if !s.opts.CreateOnFetch {
		return h, nil
	}
	err := s.withLock(ctx, conversationID, false, func(path string) error {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return s.write(path, conversationID, nil)
	})
	if err != nil {
		return core.ConversationHandle{}, core.NewBackendError(backendName, "get_or_create", conversationID, err)
	}
	return h, nil
}

// AppendTurn implements core.ConversationStore.
func (s *Store) AppendTurn(ctx context.Context, h core.ConversationHandle, turn core.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("append turn: invalid role %q", turn.Role)
	}
	err := s.withLock(ctx, h.ConversationID, false, func(path string) error {
		turns, err := s.read(path, h.ConversationID)
		if err != nil {
			return err
		}
		return s.write(path, h.ConversationID, append(turns, turn))
	})
	if err != nil {
		return core.NewBackendError(backendName, "append", h.ConversationID, err)
	}
	return nil
}

// ReadWindow implements core.ConversationStore.
func (s *Store) ReadWindow(ctx context.Context, h core.ConversationHandle, maxTurns int) ([]core.Turn, error) {
	turns, err := s.Load(ctx, h.ConversationID)
	if err != nil {
		return nil, err
	}
	return core.LastN(turns, maxTurns), nil
}

// Load returns the full history of conversationID.
func (s *Store) Load(ctx context.Context, conversationID string) ([]core.Turn, error) {
	var turns []core.Turn
	err := s.withLock(ctx, conversationID, true, func(path string) error {
		var err error
		turns, err = s.read(path, conversationID)
		return err
	})
	if err != nil {
		return nil, core.NewBackendError(backendName, "read", conversationID, err)
	}
	return turns, nil
}

// IDs lists the conversations present under the root directory.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, core.NewBackendError(backendName, "list", "", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		env, err := readEnvelope(filepath.Join(s.root, name))
		if err != nil {
			s.opts.Logger.Warn("memory.file.skip", "file", name, "error", err.Error())
			continue
		}
		ids = append(ids, env.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// withLock serializes access to one conversation across goroutines (keyed
// mutex) and processes (flock on the sidecar lock file).
func (s *Store) withLock(ctx context.Context, conversationID string, shared bool, fn func(path string) error) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	path := s.Path(conversationID)
	fl := flock.New(path + ".lock")
	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = fl.TryRLockContext(ctx, s.opts.LockRetry)
	} else {
		ok, err = fl.TryLockContext(ctx, s.opts.LockRetry)
	}
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("acquire lock: not acquired")
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			s.opts.Logger.Warn("memory.file.unlock_failed", "conversation_id", conversationID, "error", err.Error())
		}
	}()
	return fn(path)
}

func readEnvelope(path string) (envelope, error) {
	var env envelope
	b, err := os.ReadFile(path)
	if err != nil {
		return env, err
	}
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (s *Store) read(path, conversationID string) ([]core.Turn, error) {
	env, err := readEnvelope(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []core.Turn{}, nil
	}
	if err != nil {
		return nil, err
	}
	if env.ID != conversationID {
		return nil, fmt.Errorf("file %s belongs to conversation %q", filepath.Base(path), env.ID)
	}
	return codec.DecodeTurns(env.Turns)
}

func (s *Store) write(path, conversationID string, turns []core.Turn) error {
	raw, err := codec.EncodeTurns(turns)
	if err != nil {
		return err
	}
	b, err := msgpack.Marshal(envelope{ID: conversationID, Turns: raw})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if s.opts.SyncOnWrite {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, s.opts.Perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
