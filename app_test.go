package embedsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedsearch/ai/mock"
	"github.com/poiesic/embedsearch/config"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage/badger"
	"github.com/poiesic/embedsearch/storage/postgrest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func badgerConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = config.BackendBadger
	cfg.Store.Path = t.TempDir()
	return cfg
}

func newTestApp(t *testing.T) (*App, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedder(), "")
	app, err := NewApp(context.Background(), badgerConfig(t), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app, provider
}

func TestNewApp(t *testing.T) {
	t.Run("missing credentials fail fast", func(t *testing.T) {
		app, err := NewApp(context.Background(), config.DefaultConfig(), WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, config.ErrMissingCredentials)
		assert.Nil(t, app)
	})

	t.Run("opens badger store", func(t *testing.T) {
		app, _ := newTestApp(t)
		assert.IsType(t, &badger.Store{}, app.Store())
		assert.Equal(t, mock.DefaultModel, app.Provider().Model())
		assert.Equal(t, config.BackendBadger, app.Config().Store.Backend)
	})

	t.Run("invalid badger path", func(t *testing.T) {
		file := t.TempDir() + "/not_a_dir"
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		cfg := config.DefaultConfig()
		cfg.Store.Backend = config.BackendBadger
		cfg.Store.Path = file
		app, err := NewApp(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, app)
	})

	t.Run("injected store", func(t *testing.T) {
		store, err := badger.NewMemoryStore()
		require.NoError(t, err)

		app, err := NewApp(context.Background(), badgerConfig(t), WithStore(store), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		assert.Same(t, store, app.Store())
		require.NoError(t, app.Close())
	})
}

func TestApp_Close(t *testing.T) {
	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedder(), "")
	app, err := NewApp(context.Background(), badgerConfig(t), WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, app.Close())
	assert.True(t, provider.Closed())
}

func TestApp_FactoryMethods(t *testing.T) {
	app, _ := newTestApp(t)

	t.Run("backfill job", func(t *testing.T) {
		job, err := app.NewBackfillJob()
		require.NoError(t, err)
		defer job.Release()
		assert.Equal(t, 500, job.Selector().BatchSize())
	})

	t.Run("search service", func(t *testing.T) {
		service, err := app.NewSearchService()
		require.NoError(t, err)
		assert.Equal(t, 20, service.MatchCount())
		assert.Equal(t, 0.0, service.Threshold())
	})

	t.Run("server reports model", func(t *testing.T) {
		srv, err := app.NewServer()
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, mock.DefaultModel, body["model"])
	})
}

func TestApp_SeedBackfillSearch(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()

	input := `{"id": 1, "review": "A wonderful, moving film.", "sentiment": "positive"}
{"id": 2, "review": "Dull and far too long.", "sentiment": "negative"}
{"id": 3, "review": "   ", "sentiment": "negative"}
`
	records, err := ReadRecords(strings.NewReader(input))
	require.NoError(t, err)
	added, err := app.Seed(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	job, err := app.NewBackfillJob()
	require.NoError(t, err)
	defer job.Release()

	outcome, err := job.RunOnce(ctx)
	require.NoError(t, err)
	counts := outcome.Counts()
	assert.Equal(t, 2, counts.Updated)
	assert.Equal(t, 1, counts.Skipped)
	assert.Equal(t, 0, counts.Failed)

	service, err := app.NewSearchService()
	require.NoError(t, err)
	results, err := service.Search(ctx, "Dull and far too long.")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.RecordID("2"), results[0].ID)
	assert.Equal(t, "negative", results[0].Sentiment)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-5)
	assert.GreaterOrEqual(t, results[0].SimilarityScore, results[1].SimilarityScore)
}

func TestReadRecords(t *testing.T) {
	t.Run("mixed ids and labels", func(t *testing.T) {
		input := `{"id": 10, "review": "numeric id", "sentiment": "positive"}

{"id": "abc", "review": "text id", "sentiment": 1}
{"review": "no id"}
`
		records, err := ReadRecords(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, core.RecordID("10"), records[0].ID)
		assert.Equal(t, "positive", records[0].Sentiment)

		assert.Equal(t, core.RecordID("abc"), records[1].ID)
		assert.Equal(t, "1", records[1].Sentiment)

		assert.Equal(t, core.IDFromContent("no id"), records[2].ID)
		assert.Empty(t, records[2].Sentiment)
		assert.False(t, records[2].HasEmbedding())
	})

	t.Run("malformed line", func(t *testing.T) {
		input := `{"id": 1, "review": "fine"}
{"id": 2, "review": `
		_, err := ReadRecords(strings.NewReader(input))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestSeedStore(t *testing.T) {
	t.Run("unsupported store", func(t *testing.T) {
		store, err := postgrest.NewStore(&postgrest.Config{URL: "http://127.0.0.1:1", Key: "k"})
		require.NoError(t, err)
		defer store.Close()

		_, err = SeedStore(context.Background(), store, []*core.Record{{ID: "1", Text: "x"}})
		assert.ErrorIs(t, err, ErrSeedUnsupported)
	})

	t.Run("chunks large inputs", func(t *testing.T) {
		store, err := badger.NewMemoryStore()
		require.NoError(t, err)
		defer store.Close()

		records := make([]*core.Record, seedChunkSize*2+7)
		for i := range records {
			records[i] = &core.Record{Text: strings.Repeat("x", i+1)}
		}
		added, err := SeedStore(context.Background(), store, records)
		require.NoError(t, err)
		assert.Equal(t, len(records), added)

		pending, err := store.SelectMissingEmbeddings(context.Background(), len(records)+1)
		require.NoError(t, err)
		assert.Len(t, pending, len(records))
	})
}
