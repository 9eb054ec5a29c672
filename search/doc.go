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


// Package search answers natural-language queries against a RecordStore.
//
// Each request moves through Received, Validated, Embedded, Ranked and
// Responded, or stops at Rejected when the query is blank. A rejected
// query never reaches the embedder. Ranking is delegated to the store's
// similarity function and its order is returned untouched.
//
// Before ranking, the service may sample a few embedded rows for
// diagnostics. The probe is best-effort: its result and failure are
// logged and reported to the SearchMonitor, never to the caller. The
// sample runs under its own short deadline so a slow store cannot spend
// the time reserved for ranking.
package search
