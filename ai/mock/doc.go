// Package mock provides test doubles for the ai package.
//
// MockEmbedder returns deterministic, unit-length vectors derived from an
// FNV hash of the input, so identical text always embeds identically and
// different text almost always differs. It rejects blank text with
// ai.ErrEmptyText exactly as the production adapter does, counts calls,
// and records every text it was asked to embed.
//
//	mockEmbedder := mock.NewMockEmbedder()
//	mockEmbedder.EmbedTextFunc = func(ctx context.Context, text string) (core.Vector, error) {
//	    return nil, errors.New("model offline")
//	}
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: 384-dimension deterministic vectors based on text hash
//   - MockProvider: wraps a MockEmbedder and reports a fixed model name
package mock
