package backfill

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage"
)

// maxExcludedFetch caps how many extra rows Next requests to see past
// excluded rows.
const maxExcludedFetch = 1000

// Selector pulls bounded batches of records that still lack an embedding.
//
// Rows marked as skipped or failed are excluded from later batches of the
// same selector. Nothing is written to the store, so a new selector sees
// them again. Once more than maxExcludedFetch rows are excluded a page may
// hold only excluded rows, and Next reports no work left.
type Selector struct {
	store     storage.RecordStore
	batchSize int

	mu       sync.Mutex
	excluded map[core.RecordID]exclusion
	skipped  int
	failed   int
}

type exclusion int

const (
	excludedSkipped exclusion = iota + 1
	excludedFailed
)

// NewSelector creates a selector returning at most batchSize records per call.
func NewSelector(store storage.RecordStore, batchSize int) (*Selector, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	return &Selector{
		store:     store,
		batchSize: batchSize,
		excluded:  make(map[core.RecordID]exclusion),
	}, nil
}

// Next returns the next batch. An empty batch means there is no work left
// for this selector.
func (s *Selector) Next(ctx context.Context) ([]*core.Record, error) {
	s.mu.Lock()
	extra := min(len(s.excluded), maxExcludedFetch)
	s.mu.Unlock()

	// Excluded rows are still unembedded and may fill the page.
	records, err := s.store.SelectMissingEmbeddings(ctx, s.batchSize+extra)
	if err != nil {
		return nil, fmt.Errorf("select missing embeddings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]*core.Record, 0, min(len(records), s.batchSize))
	for _, record := range records {
		if record == nil {
			continue
		}
		if _, ok := s.excluded[record.ID]; ok {
			continue
		}
		batch = append(batch, record)
		if len(batch) == s.batchSize {
			break
		}
	}
	return batch, nil
}

// MarkSkipped excludes id from later batches.
func (s *Selector) MarkSkipped(id core.RecordID) {
	s.exclude(id, excludedSkipped)
}

// MarkFailed excludes id from later batches so a run does not retry it.
func (s *Selector) MarkFailed(id core.RecordID) {
	s.exclude(id, excludedFailed)
}

func (s *Selector) exclude(id core.RecordID, reason exclusion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.excluded[id]; ok {
		return
	}
	s.excluded[id] = reason
	switch reason {
	case excludedSkipped:
		s.skipped++
	case excludedFailed:
		s.failed++
	}
}

// Skipped returns the number of ids excluded as skipped so far.
func (s *Selector) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Failed returns the number of ids excluded after failing so far.
func (s *Selector) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// BatchSize returns the per-call cap.
func (s *Selector) BatchSize() int {
	return s.batchSize
}
