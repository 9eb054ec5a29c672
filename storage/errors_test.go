package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreError_Is(t *testing.T) {
	tests := []struct {
		name         string
		err          *StoreError
		unavailable  bool
		unauthorized bool
		invalid      bool
	}{
		{name: "network failure", err: &StoreError{Op: "select", Err: context.DeadlineExceeded}, unavailable: true},
		{name: "server error", err: &StoreError{Op: "rpc", StatusCode: 503}, unavailable: true},
		{name: "unauthorized", err: &StoreError{Op: "select", StatusCode: 401}, unauthorized: true},
		{name: "forbidden", err: &StoreError{Op: "update", StatusCode: 403}, unauthorized: true},
		{name: "bad request", err: &StoreError{Op: "rpc", StatusCode: 400}, invalid: true},
		{name: "unknown function", err: &StoreError{Op: "rpc", StatusCode: 404}, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(wrapped, ErrStoreUnavailable))
			assert.Equal(t, tt.unauthorized, errors.Is(wrapped, ErrUnauthorized))
			assert.Equal(t, tt.invalid, errors.Is(wrapped, ErrInvalidQuery))
			assert.False(t, errors.Is(wrapped, ErrNotFound))
		})
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	err := &StoreError{Op: "select", Err: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreError_Error(t *testing.T) {
	assert.Equal(t, "rpc: status 500: boom", (&StoreError{Op: "rpc", StatusCode: 500, Message: "boom"}).Error())
	assert.Equal(t, "rpc: status 502", (&StoreError{Op: "rpc", StatusCode: 502}).Error())
	assert.Equal(t, "select: context canceled", (&StoreError{Op: "select", Err: context.Canceled}).Error())
	assert.Equal(t, "noop: store error", (&StoreError{Op: "noop"}).Error())
}
