package backfill

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrStoreRequired is returned when a job is built without a record store.
	ErrStoreRequired = errors.New("record store is required")

	// ErrEmbedderRequired is returned when a job is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrInvalidBatchSize is returned when the batch cap is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")
)
