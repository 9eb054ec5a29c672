package ai

import (
	"context"

	"github.com/poiesic/embedsearch/core"
)

// DefaultDimensions is the output size of the default sentence-embedding model.
const DefaultDimensions = 384

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use and must not be
// re-initialised per call.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns ErrEmptyText for empty or whitespace-only input without
	// contacting the model.
	EmbedText(ctx context.Context, text string) (core.Vector, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns ErrEmptyText if any input is blank.
	EmbedTexts(ctx context.Context, texts []string) ([]core.Vector, error)

	// Dimensions returns the fixed length of every vector this embedder produces.
	Dimensions() int
}

// AIProvider owns the embedding model for the lifetime of the process.
// A provider is created once at startup and handed to every component that
// needs embeddings.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Model returns the identifier of the loaded embedding model.
	Model() string

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
