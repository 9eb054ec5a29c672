package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/embedsearch/ai"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage"
)

// Job embeds records that lack a vector and writes the vectors back.
type Job struct {
	store    storage.RecordStore
	embedder ai.Embedder
	config   *Config
	selector *Selector
	pool     *ants.Pool
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Job.
type Option func(*Job) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) error {
		if logger == nil {
			logger = slog.Default()
		}
		j.logger = logger
		return nil
	}
}

// WithProgress writes a progress line per pass to w.
func WithProgress(w io.Writer) Option {
	return func(j *Job) error {
		j.progress = w
		return nil
	}
}

// NewJob creates a backfill job. A nil config uses DefaultConfig.
// Call Release when done if config.Workers > 1.
func NewJob(store storage.RecordStore, embedder ai.Embedder, config *Config, opts ...Option) (*Job, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	selector, err := NewSelector(store, config.BatchSize)
	if err != nil {
		return nil, err
	}

	j := &Job{
		store:    store,
		embedder: embedder,
		config:   config,
		selector: selector,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	j.logger = j.logger.With("component", "backfill")

	if config.Workers > 1 {
		pool, err := ants.NewPool(config.Workers)
		if err != nil {
			return nil, err
		}
		j.pool = pool
	}
	return j, nil
}

// Selector returns the job's selector.
func (j *Job) Selector() *Selector {
	return j.selector
}

// RunOnce performs one pass: select a batch, then embed and update each
// row. A select failure aborts the pass and is returned. Row failures are
// recorded in the outcome and do not abort the pass. If ctx is cancelled
// mid-pass the partial outcome is returned with ctx's error.
func (j *Job) RunOnce(ctx context.Context) (*Outcome, error) {
	batch, err := j.selector.Next(ctx)
	if err != nil {
		j.logger.Error("failed to select batch", "err", err)
		return nil, err
	}

	outcome := newOutcome()
	outcome.addPass(len(batch))
	if len(batch) == 0 {
		j.logger.Info("no records need embeddings")
		return outcome, nil
	}
	j.logger.Info("processing batch", "records", len(batch), "batch_size", j.config.BatchSize)

	var tracker *ProgressTracker
	if j.progress != nil {
		tracker = NewProgressTracker(j.progress, len(batch), j.config.ReportInterval)
		tracker.Start()
	}

	if j.pool == nil {
		for _, record := range batch {
			if ctx.Err() != nil {
				break
			}
			j.record(outcome, tracker, j.processRecord(ctx, record))
		}
	} else {
		j.runPooled(ctx, batch, outcome, tracker)
	}

	if tracker != nil {
		tracker.Finish()
	}
	j.logger.Info("batch complete", "summary", outcome.Counts().String())

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// RunUntilExhausted repeats RunOnce until a pass selects nothing, a pass
// finishes no row, or maxPasses passes have run. maxPasses <= 0 means no
// limit. Skipped and failed rows drop out of the job's selector, so each
// row is attempted at most once per run. The returned outcome merges every
// pass.
func (j *Job) RunUntilExhausted(ctx context.Context, maxPasses int) (*Outcome, error) {
	total := newOutcome()
	for pass := 1; maxPasses <= 0 || pass <= maxPasses; pass++ {
		outcome, err := j.RunOnce(ctx)
		if outcome != nil {
			total.merge(outcome)
		}
		if err != nil {
			return total, err
		}

		if outcome.Selected() == 0 {
			break
		}
		if c := outcome.Counts(); c.Updated+c.Skipped+c.Failed == 0 {
			j.logger.Warn("pass made no progress, stopping", "pass", pass, "summary", c.String())
			break
		}
	}
	return total, nil
}

// Release releases the worker pool, if any.
func (j *Job) Release() {
	if j.pool != nil {
		j.pool.Release()
	}
}

func (j *Job) runPooled(ctx context.Context, batch []*core.Record, outcome *Outcome, tracker *ProgressTracker) {
	var wg sync.WaitGroup
	for _, record := range batch {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := j.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			j.record(outcome, tracker, j.processRecord(ctx, record))
		})
		if err != nil {
			wg.Done()
			j.record(outcome, tracker, Entry{ID: record.ID, Status: StatusFailed, Detail: "worker pool rejected task", Err: err})
		}
	}
	wg.Wait()
}

func (j *Job) record(outcome *Outcome, tracker *ProgressTracker, entry Entry) {
	outcome.add(entry)
	if tracker != nil {
		tracker.Increment(1)
	}

	switch entry.Status {
	case StatusSkipped:
		j.logger.Info("skipped record", "id", entry.ID, "detail", entry.Detail)
	case StatusUpdated:
		j.logger.Info("updated record", "id", entry.ID)
	case StatusFailed:
		j.selector.MarkFailed(entry.ID)
		j.logger.Warn("failed record", "id", entry.ID, "detail", entry.Detail, "err", entry.Err)
	}
}

// processRecord handles one row. Blank text never reaches the embedder.
func (j *Job) processRecord(ctx context.Context, record *core.Record) Entry {
	if core.IsBlank(record.Text) {
		j.selector.MarkSkipped(record.ID)
		return Entry{ID: record.ID, Status: StatusSkipped, Detail: "empty text"}
	}

	var vector core.Vector
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vector, err = j.embedder.EmbedText(ctx, record.Text)
		return err
	}, j.config.MaxRetries, j.config.RetryDelay)
	if err != nil {
		return Entry{ID: record.ID, Status: StatusFailed, Detail: "embedding failed", Err: err}
	}
	if err := core.ValidateVector(vector, j.embedder.Dimensions()); err != nil {
		return Entry{ID: record.ID, Status: StatusFailed, Detail: "embedding rejected", Err: err}
	}

	if err := j.store.UpdateEmbedding(ctx, record.ID, core.Normalize(vector)); err != nil {
		detail := "update failed"
		if errors.Is(err, storage.ErrNotFound) {
			detail = "no rows affected"
		}
		return Entry{ID: record.ID, Status: StatusFailed, Detail: detail, Err: fmt.Errorf("update embedding: %w", err)}
	}
	return Entry{ID: record.ID, Status: StatusUpdated}
}
