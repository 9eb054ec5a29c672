package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/embedsearch/ai/mock"
	"github.com/poiesic/embedsearch/config"
	"github.com/poiesic/embedsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// fakeEmbeddingServer answers OpenAI-style /embeddings requests with the
// mock package's deterministic vectors.
func fakeEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": mock.GenerateDeterministicVector(text, 384),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		config.EnvStoreURL, config.EnvStoreKey,
		config.EnvEmbeddingHost, config.EnvEmbeddingModel, config.EnvEmbeddingAPIKey,
	} {
		t.Setenv(key, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"embedsearch"}, args...))
	return out.String(), err
}

func TestBackfillRequiresCredentials(t *testing.T) {
	clearEnv(t)

	_, err := run(t, "backfill")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}

func TestSearchRequiresQuery(t *testing.T) {
	clearEnv(t)

	_, err := run(t, "search", "--backend", "badger", "--db", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestSeedRequiresDB(t *testing.T) {
	_, err := run(t, "seed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestSeedBackfillSearch(t *testing.T) {
	clearEnv(t)
	embeddings := fakeEmbeddingServer(t)
	dbDir := filepath.Join(t.TempDir(), "db")

	seedFile := filepath.Join(t.TempDir(), "reviews.jsonl")
	content := `{"id": 1, "review": "A wonderful, moving film.", "sentiment": "positive"}
{"id": 2, "review": "Dull and far too long.", "sentiment": "negative"}
{"id": 3, "review": "", "sentiment": "negative"}
`
	require.NoError(t, os.WriteFile(seedFile, []byte(content), 0644))

	out, err := run(t, "seed", "--db", dbDir, "--file", seedFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 3 records")

	common := []string{"--backend", "badger", "--db", dbDir, "--embedding-host", embeddings.URL}

	out, err = run(t, append([]string{"backfill", "--until-exhausted", "--max-passes", "3"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "updated=2 skipped=1 failed=0")

	out, err = run(t, append([]string{"search", "--json", "--match-count", "1"}, append(common, "Dull and far too long.")...)...)
	require.NoError(t, err)

	var results []core.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, core.RecordID("2"), results[0].ID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-4)
}

func TestSearchTrace(t *testing.T) {
	clearEnv(t)
	embeddings := fakeEmbeddingServer(t)

	out, err := run(t, "search", "--trace", "--backend", "badger", "--db", t.TempDir(), "--embedding-host", embeddings.URL, "anything")
	require.NoError(t, err)
	assert.Contains(t, out, `received: "anything"`)
	assert.Contains(t, out, "embedded: 384 dimensions")
	assert.Contains(t, out, "No results.")
}

func TestConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "embedsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: sqlite\n"), 0644))

	_, err := run(t, "--config", path, "backfill")
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Warn"} {
			t.Run(level, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info"},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error { return nil },
				}
				require.NoError(t, app.Run([]string{"test", "-l", level}))
			})
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
		err := app.Run([]string{"test", "--log-level", "verbose"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
