package storage

import (
	"context"

	"github.com/poiesic/embedsearch/core"
)

// RecordStore is the client contract for a remote table of free-text records
// with an optional embedding column and a server-side similarity function.
// Implementations own no data and must be safe for concurrent use.
type RecordStore interface {
	// SelectMissingEmbeddings returns up to limit records whose embedding is
	// absent. Order is unspecified. Repeated calls are not atomic with respect
	// to UpdateEmbedding: a row may be returned twice before it is updated.
	SelectMissingEmbeddings(ctx context.Context, limit int) ([]*core.Record, error)

	// UpdateEmbedding sets the embedding for exactly the row matching id.
	// Returns ErrNotFound if no row was affected; transport and server
	// failures are reported as *StoreError.
	UpdateEmbedding(ctx context.Context, id core.RecordID, vector core.Vector) error

	// SimilaritySearch invokes the store's similarity function. Results have
	// score >= threshold, are ordered by descending score, and number at
	// most limit.
	SimilaritySearch(ctx context.Context, query core.Vector, threshold float64, limit int) ([]*core.SearchResult, error)

	// SampleEmbedded returns up to limit records that already carry an
	// embedding. Used only for diagnostics.
	SampleEmbedded(ctx context.Context, limit int) ([]*core.Record, error)

	// Close releases resources held by the client.
	Close() error
}
