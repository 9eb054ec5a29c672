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


package storage

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates that an update matched zero rows.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable indicates a network, timeout or server-side failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnauthorized indicates the store rejected the configured credentials.
	ErrUnauthorized = errors.New("store rejected credentials")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)

// StoreError describes a failed round-trip to the store.
// StatusCode is zero when the request never produced a response.
type StoreError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": store error"
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is maps HTTP status classes onto the package sentinels so callers can
// branch with errors.Is without inspecting status codes.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrStoreUnavailable:
		return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
	case ErrInvalidQuery:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusNotFound
	}
	return false
}
