package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage"
)

// DefaultDimensions is the embedding length the store accepts unless
// configured otherwise.
const DefaultDimensions = 384

// Store implements storage.RecordStore on top of BadgerDB. Similarity
// search is a brute-force cosine scan, which is adequate for the datasets
// this store is meant for: offline runs, demos and tests.
type Store struct {
	backend    *Backend
	dimensions int
	logger     *slog.Logger
}

var _ storage.RecordStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDimensions sets the embedding length AddRecords accepts. Zero
// disables the check.
func WithDimensions(n int) Option {
	return func(s *Store) {
		s.dimensions = max(n, 0)
	}
}

// NewStore wraps an open backend. The store takes ownership of it.
func NewStore(backend *Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		dimensions: DefaultDimensions,
		logger:     backend.logger.With("component", "badger-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (or creates) a persistent store under dir.
func Open(dir string, opts ...Option) (*Store, error) {
	backend, err := OpenBackend(dir, false)
	if err != nil {
		return nil, err
	}
	return NewStore(backend, opts...), nil
}

// Dimensions returns the embedding length AddRecords accepts.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// AddRecords inserts or replaces records. Records without an ID get one
// derived from their text. Seeded embeddings must match the store's
// dimensions. Returns the stored records.
func (s *Store) AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	wb := s.backend.NewWriteBatch()
	defer wb.Cancel()

	stored := make([]*core.Record, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if record == nil {
			return nil, core.ErrInvalidRecord
		}
		rec := *record
		if rec.ID == "" {
			rec.ID = core.IDFromContent(rec.Text)
		}
		if err := core.ValidateRecord(&rec, s.dimensions); err != nil {
			return nil, err
		}

		data, err := json.Marshal(&rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
		}
		if err := wb.Set(makeRecordKey(rec.ID), data); err != nil {
			return nil, err
		}
		if rec.HasEmbedding() {
			err = wb.Delete(makePendingKey(rec.ID))
		} else {
			err = wb.Set(makePendingKey(rec.ID), nil)
		}
		if err != nil {
			return nil, err
		}
		stored = append(stored, &rec)
	}

	if err := wb.Flush(); err != nil {
		return nil, err
	}
	s.logger.Debug("added records", "count", len(stored))
	return stored, nil
}

// GetRecord returns the record stored under id.
func (s *Store) GetRecord(ctx context.Context, id core.RecordID) (*core.Record, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var record *core.Record
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = getRecord(tx, id)
		return err
	}, false)
	return record, err
}

// SelectMissingEmbeddings returns up to limit records that have no embedding,
// in key order.
func (s *Store) SelectMissingEmbeddings(ctx context.Context, limit int) ([]*core.Record, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var records []*core.Record
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(records) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := idFromKey(iter.Item().Key(), pendingPrefix)
			record, err := getRecord(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("dangling pending marker", "id", id)
				continue
			}
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateEmbedding stores vector on the record with the given id.
func (s *Store) UpdateEmbedding(ctx context.Context, id core.RecordID, vector core.Vector) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if id == "" {
		return core.ErrEmptyID
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty embedding", storage.ErrInvalidQuery)
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		record, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		record.Embedding = slices.Clone(vector)

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
		}
		if err := tx.Set(makeRecordKey(id), data); err != nil {
			return err
		}
		if err := tx.Delete(makePendingKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// SimilaritySearch scores every embedded record against query and returns
// those scoring at least threshold, best first, at most limit of them.
func (s *Store) SimilaritySearch(ctx context.Context, query core.Vector, threshold float64, limit int) ([]*core.SearchResult, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.SearchResult
	err := s.scanRecords(ctx, func(record *core.Record) bool {
		if !record.HasEmbedding() {
			return true
		}
		score := core.CosineSimilarity(query, record.Embedding)
		if score >= threshold {
			results = append(results, &core.SearchResult{
				ID:              record.ID,
				Text:            record.Text,
				Sentiment:       record.Sentiment,
				SimilarityScore: score,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	// Stable so equal scores keep key order.
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.SimilarityScore > b.SimilarityScore:
			return -1
		case a.SimilarityScore < b.SimilarityScore:
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SampleEmbedded returns up to limit records that carry an embedding.
func (s *Store) SampleEmbedded(ctx context.Context, limit int) ([]*core.Record, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var records []*core.Record
	err := s.scanRecords(ctx, func(record *core.Record) bool {
		if record.HasEmbedding() {
			records = append(records, record)
		}
		return len(records) < limit
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying backend. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

// scanRecords calls fn for every record in key order until fn returns false.
func (s *Store) scanRecords(ctx context.Context, fn func(*core.Record) bool) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record core.Record
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
			}
			if !fn(&record) {
				return nil
			}
		}
		return nil
	}, false)
}

func getRecord(tx *badger.Txn, id core.RecordID) (*core.Record, error) {
	item, err := tx.Get(makeRecordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var record core.Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return &record, nil
}
