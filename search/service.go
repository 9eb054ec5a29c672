package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/embedsearch/ai"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage"
)

const (
	// DefaultThreshold accepts every non-negative similarity score.
	DefaultThreshold = 0.0

	// DefaultMatchCount caps the number of ranked results.
	DefaultMatchCount = 20

	// DefaultProbeLimit is how many embedded rows the diagnostic probe samples.
	DefaultProbeLimit = 5

	// DefaultSampleTimeout bounds the diagnostic sample. It never takes more
	// than a quarter of the time left on the search deadline.
	DefaultSampleTimeout = 500 * time.Millisecond
)

// Service embeds queries and ranks records through the store's
// similarity function.
type Service struct {
	store      storage.RecordStore
	embedder   ai.Embedder
	threshold  float64
	matchCount int
	probeLimit int
	timeout    time.Duration
	sampleWait time.Duration
	monitor    SearchMonitor
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithThreshold sets the minimum similarity score passed to the store.
func WithThreshold(threshold float64) Option {
	return func(s *Service) error {
		s.threshold = threshold
		return nil
	}
}

// WithMatchCount sets the maximum number of results.
func WithMatchCount(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidMatchCount
		}
		s.matchCount = n
		return nil
	}
}

// WithTimeout bounds each search. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		s.timeout = d
		return nil
	}
}

// WithProbe sets how many embedded rows are sampled before ranking.
// Zero disables the probe.
func WithProbe(limit int) Option {
	return func(s *Service) error {
		if limit < 0 {
			limit = 0
		}
		s.probeLimit = limit
		return nil
	}
}

// WithSampleTimeout bounds the diagnostic sample taken before ranking.
func WithSampleTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("sample timeout must be positive")
		}
		s.sampleWait = d
		return nil
	}
}

// WithMonitor sets the default monitor for every search.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Service) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// NewService creates a search service.
func NewService(store storage.RecordStore, embedder ai.Embedder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Service{
		store:      store,
		embedder:   embedder,
		threshold:  DefaultThreshold,
		matchCount: DefaultMatchCount,
		probeLimit: DefaultProbeLimit,
		sampleWait: DefaultSampleTimeout,
		monitor:    &noopMonitor{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")
	return s, nil
}

// MatchCount returns the configured result cap.
func (s *Service) MatchCount() int {
	return s.matchCount
}

// Threshold returns the configured similarity threshold.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Search ranks stored records against query. A blank query returns
// core.ErrEmptyQuery without touching the embedder. The store's ranking
// is returned as-is.
func (s *Service) Search(ctx context.Context, query string) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor is Search with a per-call monitor. A nil monitor uses
// the service default.
func (s *Service) SearchWithMonitor(ctx context.Context, query string, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = s.monitor
	}
	monitor.Start(query)

	if err := core.ValidateQuery(query); err != nil {
		monitor.Rejected(err)
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("searching", "query", query)

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		monitor.Failed("embed", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vector = core.Normalize(vector)
	monitor.AfterEmbedding(vector)

	if s.probeLimit > 0 {
		sample, err := s.probe(ctx)
		monitor.AfterProbe(sample, err)
	}

	results, err := s.store.SimilaritySearch(ctx, vector, s.threshold, s.matchCount)
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		monitor.Failed("rank", err)
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if results == nil {
		results = []*core.SearchResult{}
	}

	s.logger.Info("search complete", "results", len(results))
	monitor.Finish(results)
	return results, nil
}

// Probe samples embedded rows for diagnostics. Failures are logged and
// discarded; the returned slice is nil in that case.
func (s *Service) Probe(ctx context.Context) []*core.Record {
	sample, _ := s.probe(ctx)
	return sample
}

func (s *Service) probe(ctx context.Context) ([]*core.Record, error) {
	limit := s.probeLimit
	if limit <= 0 {
		limit = DefaultProbeLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.sampleBudget(ctx))
	defer cancel()

	sample, err := s.store.SampleEmbedded(ctx, limit)
	if err != nil {
		s.logger.Warn("diagnostic probe failed", "err", err)
		return nil, err
	}
	s.logger.Debug("diagnostic probe", "embedded_rows", len(sample))
	return sample, nil
}

// sampleBudget leaves at least three quarters of the remaining deadline
// for ranking.
func (s *Service) sampleBudget(ctx context.Context) time.Duration {
	budget := s.sampleWait
	if deadline, ok := ctx.Deadline(); ok {
		if share := time.Until(deadline) / 4; share < budget {
			budget = share
		}
	}
	return budget
}
