package postgrest

import (
	"errors"
	"strings"
	"time"
)

// Config describes how to reach a PostgREST endpoint and which table,
// columns and function hold the records.
type Config struct {
	// URL is the project endpoint, e.g. "https://xyzcompany.supabase.co".
	// "/rest/v1" is appended unless already present.
	URL string

	// Key is the service key, sent as both the apikey header and bearer token.
	Key string

	Table           string
	IDColumn        string
	TextColumn      string
	LabelColumn     string
	EmbeddingColumn string

	// SearchFunction is the name of the server-side similarity function.
	SearchFunction string

	// ScoreColumn is the similarity column returned by SearchFunction.
	ScoreColumn string

	// Timeout bounds every round-trip. Zero disables the client-side limit.
	Timeout time.Duration
}

// DefaultConfig returns the column mapping of the reviews table.
func DefaultConfig() *Config {
	return &Config{
		Table:           "movies",
		IDColumn:        "id",
		TextColumn:      "review",
		LabelColumn:     "sentiment",
		EmbeddingColumn: "embedding",
		SearchFunction:  "search_movies",
		ScoreColumn:     "similarity",
		Timeout:         30 * time.Second,
	}
}

// Validate checks that the configuration is complete and fills in
// defaults for empty column names.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("postgrest config: URL is required")
	}
	if strings.TrimSpace(c.Key) == "" {
		return errors.New("postgrest config: Key is required")
	}

	def := DefaultConfig()
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&c.Table, def.Table)
	fill(&c.IDColumn, def.IDColumn)
	fill(&c.TextColumn, def.TextColumn)
	fill(&c.LabelColumn, def.LabelColumn)
	fill(&c.EmbeddingColumn, def.EmbeddingColumn)
	fill(&c.SearchFunction, def.SearchFunction)
	fill(&c.ScoreColumn, def.ScoreColumn)
	if c.Timeout < 0 {
		return errors.New("postgrest config: Timeout must not be negative")
	}
	return nil
}

// restURL returns the PostgREST root for the configured endpoint.
func (c *Config) restURL() string {
	base := strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
	if strings.HasSuffix(base, "/rest/v1") {
		return base
	}
	return base + "/rest/v1"
}
