// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides the embedding model abstraction used by embedsearch.
//
// The backfill job and the search service both depend on the Embedder
// interface rather than on a concrete model client, so either can be
// exercised in tests with the deterministic fakes in ai/mock.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//     (Ollama serving all-minilm, LocalAI, text-embeddings-inference)
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Lifecycle
//
// A provider is constructed once at process start and passed to the
// components that need it. Construction validates the configuration and
// probes the model once, so a missing or misconfigured model fails fast
// instead of on the first request.
//
//	provider, err := openai.NewProvider(ctx, ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "a quiet, haunting film")
//
// # Blank Input
//
// Embedders reject empty and whitespace-only text with ErrEmptyText before
// reaching the model. Callers are expected to filter such input themselves;
// the guard only keeps a stray call from producing a model-dependent result.
package ai
