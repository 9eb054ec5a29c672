package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage"
	postgrestgo "github.com/supabase-community/postgrest-go"
)

// Store is a storage.RecordStore backed by a PostgREST endpoint.
type Store struct {
	config    *Config
	transport http.RoundTripper
	base      string
	logger    *slog.Logger
}

var _ storage.RecordStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTransport replaces the HTTP transport used for every request.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Store) {
		s.transport = rt
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a PostgREST-backed record store.
func NewStore(config *Config, opts ...Option) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("postgrest config is required")
	}
	cfg := *config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		config:    &cfg,
		transport: http.DefaultTransport.(*http.Transport).Clone(),
		base:      cfg.restURL(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "postgrest-store", "table", cfg.Table)
	return s, nil
}

// SelectMissingEmbeddings returns up to limit rows whose embedding column is null.
func (s *Store) SelectMissingEmbeddings(ctx context.Context, limit int) ([]*core.Record, error) {
	return s.selectRecords(ctx, "select", limit, func(f *postgrestgo.FilterBuilder) *postgrestgo.FilterBuilder {
		return f.Is(s.config.EmbeddingColumn, "null")
	})
}

// SampleEmbedded returns up to limit rows that already carry an embedding.
func (s *Store) SampleEmbedded(ctx context.Context, limit int) ([]*core.Record, error) {
	return s.selectRecords(ctx, "sample", limit, func(f *postgrestgo.FilterBuilder) *postgrestgo.FilterBuilder {
		return f.Not(s.config.EmbeddingColumn, "is", "null")
	})
}

func (s *Store) selectRecords(ctx context.Context, op string, limit int, filter func(*postgrestgo.FilterBuilder) *postgrestgo.FilterBuilder) ([]*core.Record, error) {
	if limit <= 0 {
		return nil, &storage.StoreError{Op: op, StatusCode: http.StatusBadRequest, Message: "limit must be positive"}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	columns := strings.Join([]string{s.config.IDColumn, s.config.TextColumn, s.config.LabelColumn}, ",")
	query := filter(s.client(ctx, op).From(s.config.Table).Select(columns, "", false)).Limit(limit, "")
	data, _, err := query.Execute()
	if err != nil {
		return nil, s.storeError(op, err)
	}

	var rows []map[string]json.RawMessage
	if err := decodeRows(op, data, &rows); err != nil {
		return nil, err
	}

	records := make([]*core.Record, 0, len(rows))
	for _, row := range rows {
		record, err := s.decodeRecord(row)
		if err != nil {
			return nil, &storage.StoreError{Op: op, StatusCode: http.StatusOK, Message: "malformed row", Err: err}
		}
		records = append(records, record)
	}
	s.logger.Debug("selected records", "op", op, "count", len(records))
	return records, nil
}

// UpdateEmbedding writes vector into the row matching id. The updated rows
// are returned so zero affected rows can be told apart from success.
func (s *Store) UpdateEmbedding(ctx context.Context, id core.RecordID, vector core.Vector) error {
	if id == "" {
		return fmt.Errorf("update: %w", core.ErrEmptyID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body := map[string]any{s.config.EmbeddingColumn: vector}
	data, _, err := s.client(ctx, "update").
		From(s.config.Table).
		Update(body, "representation", "").
		Eq(s.config.IDColumn, id.String()).
		Execute()
	if err != nil {
		return s.storeError("update", err)
	}

	var rows []json.RawMessage
	if err := decodeRows("update", data, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("update %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// SimilaritySearch calls the configured similarity function through the
// rpc endpoint. Ranking is the function's responsibility; the returned
// order is preserved.
func (s *Store) SimilaritySearch(ctx context.Context, query core.Vector, threshold float64, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, &storage.StoreError{Op: "rpc", StatusCode: http.StatusBadRequest, Message: "limit must be positive"}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body := map[string]any{
		"query_embedding": query,
		"match_threshold": threshold,
		"match_count":     limit,
	}

	client := s.client(ctx, "rpc")
	out := client.Rpc(s.config.SearchFunction, "", body)
	if client.ClientError != nil {
		return nil, s.storeError("rpc", client.ClientError)
	}

	var rows []map[string]json.RawMessage
	if err := decodeRows("rpc", []byte(out), &rows); err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(rows))
	for _, row := range rows {
		result, err := s.decodeResult(row)
		if err != nil {
			return nil, &storage.StoreError{Op: "rpc", StatusCode: http.StatusOK, Message: "malformed row", Err: err}
		}
		results = append(results, result)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// client returns a PostgREST client for a single call. Its requests carry
// ctx, and error responses surface as *storage.StoreError.
func (s *Store) client(ctx context.Context, op string) *postgrestgo.Client {
	c := postgrestgo.NewClient(s.base, "", map[string]string{
		"apikey":        s.config.Key,
		"Authorization": "Bearer " + s.config.Key,
	})
	if c.Transport != nil {
		c.Transport.Parent = &callTransport{ctx: ctx, op: op, base: s.transport, logger: s.logger}
	}
	return c
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// storeError returns the *storage.StoreError carried by err, or wraps err
// as a transport failure.
func (s *Store) storeError(op string, err error) error {
	var se *storage.StoreError
	if errors.As(err, &se) {
		return se
	}
	return &storage.StoreError{Op: op, Err: err}
}

// callTransport binds one call's context to its requests and turns error
// statuses into *storage.StoreError before the client library sees them.
type callTransport struct {
	ctx    context.Context
	op     string
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		t.logger.Warn("store request failed", "op", t.op, "err", err)
		return nil, &storage.StoreError{Op: t.op, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	t.logger.Warn("store returned error", "op", t.op, "status", resp.StatusCode)
	return nil, &storage.StoreError{Op: t.op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
}

func decodeRows(op string, data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &storage.StoreError{
			Op:         op,
			StatusCode: http.StatusOK,
			Message:    "undecodable response",
			Err:        fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err),
		}
	}
	return nil
}

func (s *Store) decodeRecord(row map[string]json.RawMessage) (*core.Record, error) {
	record := &core.Record{}
	raw, ok := row[s.config.IDColumn]
	if !ok {
		return nil, fmt.Errorf("missing column %q", s.config.IDColumn)
	}
	if err := json.Unmarshal(raw, &record.ID); err != nil {
		return nil, fmt.Errorf("column %q: %w", s.config.IDColumn, err)
	}
	record.Text = rawString(row[s.config.TextColumn])
	record.Sentiment = rawString(row[s.config.LabelColumn])
	if raw, ok := row[s.config.EmbeddingColumn]; ok {
		if err := json.Unmarshal(raw, &record.Embedding); err != nil {
			return nil, fmt.Errorf("column %q: %w", s.config.EmbeddingColumn, err)
		}
	}
	return record, nil
}

func (s *Store) decodeResult(row map[string]json.RawMessage) (*core.SearchResult, error) {
	record, err := s.decodeRecord(row)
	if err != nil {
		return nil, err
	}
	result := &core.SearchResult{
		ID:        record.ID,
		Text:      record.Text,
		Sentiment: record.Sentiment,
	}

	for _, col := range []string{s.config.ScoreColumn, "similarity_score", "similarity"} {
		raw, ok := row[col]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("missing column %q", s.config.ScoreColumn)
}

// rawString renders a column as text. Non-string scalars such as integer
// labels are kept in their JSON form; null becomes "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// errorMessage extracts the message field of a PostgREST error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
