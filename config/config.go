// Package config loads chatmesh settings from the environment. Variables
// use the CHATMESH_ prefix, e.g. CHATMESH_MODEL or CHATMESH_MEMORY_BACKEND.
// Library packages never read the environment themselves; they take
// functional options populated from a Config by the binary.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "CHATMESH_"

// Backend names a conversation store implementation.
type Backend string

const (
	BackendInMemory Backend = "inmemory"
	BackendFile     Backend = "file"
	BackendRedis    Backend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler so env parsing validates
// the value.
func (b *Backend) UnmarshalText(text []byte) error {
	v := Backend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case BackendInMemory, BackendFile, BackendRedis:
		*b = v
		return nil
	case "memory", "":
		*b = BackendInMemory
		return nil
	}
	return fmt.Errorf("unknown memory backend %q (want inmemory, file or redis)", string(text))
}

// Config is the complete binary configuration.
type Config struct {
	Model          string `env:"MODEL" envDefault:"gpt-4o-mini"`
	ConversationID string `env:"CONVERSATION_ID"`
	RetrieveSize   int    `env:"RETRIEVE_SIZE" envDefault:"10"`
	RAGEnabled     bool   `env:"RAG_ENABLED" envDefault:"false"`
	TargetAudience string `env:"TARGET_AUDIENCE" envDefault:"硕士生"`
	TopK           int    `env:"TOP_K" envDefault:"4"`
	SystemPrompt   string `env:"SYSTEM_PROMPT"`

	Memory    MemoryConfig    `envPrefix:"MEMORY_"`
	Retrieval RetrievalConfig `envPrefix:"RETRIEVAL_"`
	Providers ProvidersConfig `envPrefix:"PROVIDERS_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
}

// MemoryConfig selects and configures the conversation store.
type MemoryConfig struct {
	Backend     Backend       `env:"BACKEND" envDefault:"inmemory"`
	FileRoot    string        `env:"FILE_ROOT" envDefault:"tmp/chat-memory"`
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix string        `env:"REDIS_PREFIX" envDefault:"chatmesh:conversation:"`
	RedisTTL    time.Duration `env:"REDIS_TTL" envDefault:"0s"`
}

// RetrievalConfig configures the document index and the query rewriter.
type RetrievalConfig struct {
	Collection     string        `env:"COLLECTION" envDefault:"documents"`
	PersistPath    string        `env:"PERSIST_PATH"`
	EmbeddingModel string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	RewriteModel   string        `env:"REWRITE_MODEL"` // "" reuses the chat model
	RewriteCache   bool          `env:"REWRITE_CACHE" envDefault:"true"`
	RewriteTTL     time.Duration `env:"REWRITE_TTL" envDefault:"1h"`
	SeedFile       string        `env:"SEED_FILE"` // JSON lines of documents loaded at startup
}

// ProvidersConfig holds model provider credentials.
type ProvidersConfig struct {
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	OpenAIModel    string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicKey   string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `env:"LEVEL" envDefault:"info"`
	Format    string `env:"FORMAT" envDefault:"text"` // text, json or console
	AddSource bool   `env:"ADD_SOURCE"`
}

// ServerConfig configures `chatmesh serve`.
type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses vars instead of the process environment when vars is
// non-nil. Keys include the CHATMESH_ prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	opts := env.Options{Prefix: Prefix}
	if vars != nil {
		opts.Environment = vars
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.RetrieveSize < 0 {
		errs = append(errs, fmt.Errorf("retrieve size must be >= 0, got %d", c.RetrieveSize))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top k must be > 0, got %d", c.TopK))
	}
	switch c.Memory.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Memory.FileRoot) == "" {
			errs = append(errs, errors.New("file backend requires MEMORY_FILE_ROOT"))
		}
	case BackendRedis:
		if strings.TrimSpace(c.Memory.RedisURL) == "" {
			errs = append(errs, errors.New("redis backend requires MEMORY_REDIS_URL"))
		}
		if c.Memory.RedisTTL < 0 {
			errs = append(errs, errors.New("redis ttl must be >= 0"))
		}
	case BackendInMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown memory backend %q", c.Memory.Backend))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
