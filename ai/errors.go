package ai

import "errors"

var (
	// ErrEmptyText is returned when an embedder is asked to embed blank text.
	ErrEmptyText = errors.New("cannot embed empty text")

	// ErrModelUnavailable is returned when the embedding model cannot be loaded.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrUnexpectedDimensions is returned when the model produces a vector
	// whose length differs from the configured dimensionality.
	ErrUnexpectedDimensions = errors.New("unexpected embedding dimensions")
)
