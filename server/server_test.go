package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedsearch/ai/mock"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/search"
	"github.com/poiesic/embedsearch/storage"
	"github.com/poiesic/embedsearch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// searcherFunc adapts a function to Searcher.
type searcherFunc func(ctx context.Context, query string) ([]*core.SearchResult, error)

func (f searcherFunc) Search(ctx context.Context, query string) ([]*core.SearchResult, error) {
	return f(ctx, query)
}

// downStore fails every call, as an unreachable store would.
type downStore struct {
	storage.RecordStore
}

func (downStore) SampleEmbedded(context.Context, int) ([]*core.Record, error) {
	return nil, &storage.StoreError{Op: "sample", Err: errors.New("connection refused")}
}

func (downStore) SimilaritySearch(context.Context, core.Vector, float64, int) ([]*core.SearchResult, error) {
	return nil, &storage.StoreError{Op: "rpc", Err: errors.New("connection refused")}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func newSearchServer(t *testing.T, texts []string, opts ...Option) (*Server, *mock.MockEmbedder) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	records := make([]*core.Record, len(texts))
	for i, text := range texts {
		records[i] = &core.Record{ID: core.RecordID(string(rune('a' + i))), Text: text, Sentiment: "positive",
			Embedding: mock.GenerateDeterministicVector(text, 384)}
	}
	_, err = store.AddRecords(context.Background(), records...)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	svc, err := search.NewService(store, embedder, search.WithThreshold(-1), search.WithMatchCount(3))
	require.NoError(t, err)

	srv, err := New(svc, append([]Option{WithModel("all-minilm")}, opts...)...)
	require.NoError(t, err)
	return srv, embedder
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrServiceRequired)

	_, err = New(searcherFunc(nil), WithRequestTimeout(-time.Second))
	assert.Error(t, err)
}

func TestSearch_OK(t *testing.T) {
	srv, embedder := newSearchServer(t, []string{"great film", "awful film", "great movie", "dull", "fine"})

	w := do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"great film"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 3, "capped at the match count")
	assert.Equal(t, "great film", resp.Results[0].Text)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].SimilarityScore, resp.Results[i].SimilarityScore)
	}
	assert.Equal(t, 1, embedder.CallCount())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSearch_EmptyResultsIsArray(t *testing.T) {
	srv, _ := newSearchServer(t, nil)

	w := do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"anything"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"results":[]}`, w.Body.String())
}

func TestSearch_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty query", body: `{"query":""}`, want: "Query is required"},
		{name: "blank query", body: `{"query":"   "}`, want: "Query is required"},
		{name: "missing query", body: `{}`, want: "Query is required"},
		{name: "no body", body: "", want: "Query is required"},
		{name: "malformed", body: `{"query":`, want: "invalid JSON body"},
		{name: "wrong type", body: `{"query":42}`, want: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, embedder := newSearchServer(t, []string{"x"})
			w := do(t, srv.Handler(), http.MethodPost, "/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w)["error"], tt.want)
			assert.Equal(t, 0, embedder.CallCount(), "embedder must not be invoked")
		})
	}
}

func TestSearch_ServerError(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	svc, err := search.NewService(downStore{}, embedder)
	require.NoError(t, err)
	srv, err := New(svc)
	require.NoError(t, err)

	w := do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["error"], "connection refused")
	assert.NotContains(t, body, "success")
}

func TestSearch_Panic(t *testing.T) {
	srv, err := New(searcherFunc(func(ctx context.Context, query string) ([]*core.SearchResult, error) {
		panic("boom")
	}))
	require.NoError(t, err)

	w := do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w)["error"])
}

func TestSearch_Timeout(t *testing.T) {
	srv, err := New(searcherFunc(func(ctx context.Context, query string) ([]*core.SearchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithRequestTimeout(10*time.Millisecond))
	require.NoError(t, err)

	w := do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"slow"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["error"], "deadline exceeded")
}

func TestHealth(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	svc, err := search.NewService(downStore{}, embedder)
	require.NoError(t, err)
	srv, err := New(svc, WithModel("all-minilm"))
	require.NoError(t, err)

	w := do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","model":"all-minilm"}`, w.Body.String())
	assert.Equal(t, 0, embedder.CallCount())
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newSearchServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://reviews.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestCORSSimpleRequest(t *testing.T) {
	srv, _ := newSearchServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://reviews.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.CanonicalHeaderKey(requestIDHeader), w.Header().Get("Access-Control-Expose-Headers"))
}

func TestRequestIDPropagated(t *testing.T) {
	srv, _ := newSearchServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestNotFound(t *testing.T) {
	srv, _ := newSearchServer(t, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newSearchServer(t, []string{"x"}, WithRateLimit(0.001, 2))

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"x"}`).Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Health is not rate limited.
	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/health", "").Code)
}

func TestMaxInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	srv, err := New(searcherFunc(func(ctx context.Context, query string) ([]*core.SearchResult, error) {
		close(entered)
		<-release
		return nil, nil
	}), WithMaxInFlight(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var first int
	go func() {
		defer wg.Done()
		first = do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"a"}`).Code
	}()
	<-entered

	second := do(t, srv.Handler(), http.MethodPost, "/search", `{"query":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, second.Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first)
}

func TestRun_Shutdown(t *testing.T) {
	srv, _ := newSearchServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
