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


// Package storage defines the record store contract used by embedsearch.
//
// The store owns the records and the similarity computation. This package
// only describes how the backfill job and the search service talk to it:
//
//   - SelectMissingEmbeddings: bounded read of rows lacking a vector
//   - UpdateEmbedding: per-row write, reporting zero-rows-affected distinctly
//   - SimilaritySearch: invocation of the server-side ranking function
//   - SampleEmbedded: diagnostic read
//
// # Implementations
//
//   - storage/postgrest: Supabase / PostgREST over HTTP
//   - storage/badger: embedded BadgerDB store for offline use and tests
//
// # Errors
//
// Zero rows affected by an update is ErrNotFound. Every failed round-trip
// is a *StoreError whose Is method maps status classes onto
// ErrUnauthorized, ErrStoreUnavailable and ErrInvalidQuery.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple
// goroutines, since the HTTP layer serves requests in parallel.
package storage
