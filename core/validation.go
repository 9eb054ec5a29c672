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


package core

import (
	"fmt"
	"strings"
)

// IsBlank reports whether text is empty after trimming surrounding whitespace.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// ValidateQuery checks that a search query is usable.
func ValidateQuery(query string) error {
	if IsBlank(query) {
		return ErrEmptyQuery
	}
	return nil
}

// ValidateVector checks that v has exactly dim elements.
// A dim of zero or less disables the check.
func ValidateVector(v Vector, dim int) error {
	if dim <= 0 {
		return nil
	}
	if len(v) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(v))
	}
	return nil
}

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Embedding is either absent or exactly dim elements long
//
// NOT validated:
//   - Text (empty text is legal; the backfill job skips it)
//   - Sentiment (optional label)
func ValidateRecord(record *Record, dim int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}

	if record.HasEmbedding() {
		if err := ValidateVector(record.Embedding, dim); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
	}

	return nil
}
