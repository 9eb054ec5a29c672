// Package config loads embedsearch settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/embedsearch/ai"
	"github.com/poiesic/embedsearch/backfill"
	"github.com/poiesic/embedsearch/search"
	"github.com/poiesic/embedsearch/server"
	"github.com/poiesic/embedsearch/storage/postgrest"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendPostgREST = "postgrest"
	BackendBadger    = "badger"
)

// Environment variables read by ApplyEnv.
const (
	EnvStoreURL        = "SUPABASE_URL"
	EnvStoreKey        = "SUPABASE_SERVICE_KEY"
	EnvEmbeddingHost   = "EMBEDDING_HOST"
	EnvEmbeddingModel  = "EMBEDDING_MODEL"
	EnvEmbeddingAPIKey = "EMBEDDING_API_KEY"
)

const (
	defaultBadgerPath   = "embedsearch.db"
	defaultLoggingLevel = "info"
)

var (
	// ErrMissingCredentials is returned when the postgrest backend has no
	// endpoint or key.
	ErrMissingCredentials = errors.New(EnvStoreURL + " and " + EnvStoreKey + " must be set")

	// ErrUnknownBackend is returned for a store backend other than
	// postgrest or badger.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrInvalidLogLevel is returned for an unparseable logging level.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config is the complete application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Backend         string        `yaml:"backend"`
	URL             string        `yaml:"url"`
	Key             string        `yaml:"key"`
	Table           string        `yaml:"table"`
	IDColumn        string        `yaml:"id_column"`
	TextColumn      string        `yaml:"text_column"`
	LabelColumn     string        `yaml:"label_column"`
	EmbeddingColumn string        `yaml:"embedding_column"`
	SearchFunction  string        `yaml:"search_function"`
	ScoreColumn     string        `yaml:"score_column"`
	Timeout         time.Duration `yaml:"timeout"`

	// Path is the badger data directory.
	Path string `yaml:"path"`
}

// EmbeddingConfig configures the embedding model adapter.
type EmbeddingConfig struct {
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
}

// BackfillConfig configures the backfill job.
type BackfillConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ReportInterval int           `yaml:"report_interval"`
	UntilExhausted bool          `yaml:"until_exhausted"`
	MaxPasses      int           `yaml:"max_passes"`
}

// SearchConfig configures the search service.
type SearchConfig struct {
	Threshold  float64 `yaml:"threshold"`
	MatchCount int     `yaml:"match_count"`
	ProbeLimit int     `yaml:"probe_limit"`
}

// ServerConfig configures the HTTP interface.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	MaxInFlight    int64         `yaml:"max_in_flight"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	store := postgrest.DefaultConfig()
	embedding := ai.DefaultConfig()
	bf := backfill.DefaultConfig()

	return &Config{
		Store: StoreConfig{
			Backend:         BackendPostgREST,
			Table:           store.Table,
			IDColumn:        store.IDColumn,
			TextColumn:      store.TextColumn,
			LabelColumn:     store.LabelColumn,
			EmbeddingColumn: store.EmbeddingColumn,
			SearchFunction:  store.SearchFunction,
			ScoreColumn:     store.ScoreColumn,
			Timeout:         store.Timeout,
			Path:            defaultBadgerPath,
		},
		Embedding: EmbeddingConfig{
			Host:       embedding.EmbeddingHost,
			Model:      embedding.EmbeddingModel,
			Dimensions: embedding.Dimensions,
		},
		Backfill: BackfillConfig{
			BatchSize:      bf.BatchSize,
			Workers:        bf.Workers,
			MaxRetries:     bf.MaxRetries,
			RetryDelay:     bf.RetryDelay,
			ReportInterval: bf.ReportInterval,
		},
		Search: SearchConfig{
			Threshold:  search.DefaultThreshold,
			MatchCount: search.DefaultMatchCount,
			ProbeLimit: search.DefaultProbeLimit,
		},
		Server: ServerConfig{
			Addr:           server.DefaultAddr,
			RequestTimeout: server.DefaultRequestTimeout,
		},
		Logging: LoggingConfig{
			Level: defaultLoggingLevel,
		},
	}
}

// Load reads configuration from path over the defaults.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overlays non-empty environment values. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Store.URL, EnvStoreURL)
	set(&c.Store.Key, EnvStoreKey)
	set(&c.Embedding.Host, EnvEmbeddingHost)
	set(&c.Embedding.Model, EnvEmbeddingModel)
	set(&c.Embedding.APIKey, EnvEmbeddingAPIKey)
}

// Validate checks the configuration. Missing postgrest credentials are
// reported as ErrMissingCredentials.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgREST:
		if c.Store.URL == "" || c.Store.Key == "" {
			return ErrMissingCredentials
		}
	case BackendBadger:
		if c.Store.Path == "" {
			return errors.New("store path is required for the badger backend")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if err := c.AIConfig().Validate(); err != nil {
		return err
	}
	if err := c.BackfillConfig().Validate(); err != nil {
		return err
	}
	if c.Search.MatchCount <= 0 {
		return search.ErrInvalidMatchCount
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("server request timeout must not be negative")
	}
	return nil
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	return ParseLevel(c.Logging.Level)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
}

// PostgRESTConfig returns the REST client configuration.
func (c *Config) PostgRESTConfig() *postgrest.Config {
	return &postgrest.Config{
		URL:             c.Store.URL,
		Key:             c.Store.Key,
		Table:           c.Store.Table,
		IDColumn:        c.Store.IDColumn,
		TextColumn:      c.Store.TextColumn,
		LabelColumn:     c.Store.LabelColumn,
		EmbeddingColumn: c.Store.EmbeddingColumn,
		SearchFunction:  c.Store.SearchFunction,
		ScoreColumn:     c.Store.ScoreColumn,
		Timeout:         c.Store.Timeout,
	}
}

// AIConfig returns the embedding provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
	)
}

// BackfillConfig returns the backfill job configuration.
func (c *Config) BackfillConfig() *backfill.Config {
	return &backfill.Config{
		BatchSize:      c.Backfill.BatchSize,
		ReportInterval: c.Backfill.ReportInterval,
		MaxRetries:     c.Backfill.MaxRetries,
		RetryDelay:     c.Backfill.RetryDelay,
		Workers:        c.Backfill.Workers,
	}
}

// SearchOptions returns the search service options.
func (c *Config) SearchOptions() []search.Option {
	return []search.Option{
		search.WithThreshold(c.Search.Threshold),
		search.WithMatchCount(c.Search.MatchCount),
		search.WithProbe(c.Search.ProbeLimit),
	}
}

// ServerOptions returns the HTTP server options. The model identifier is
// supplied by the caller.
func (c *Config) ServerOptions() []server.Option {
	return []server.Option{
		server.WithRequestTimeout(c.Server.RequestTimeout),
		server.WithRateLimit(c.Server.RateLimit, c.Server.RateBurst),
		server.WithMaxInFlight(c.Server.MaxInFlight),
	}
}
