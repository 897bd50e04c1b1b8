// Package kv provides the small, size-bounded key/value store that holds the
// journal collection and scheduler state. A hard quota covers the sum of all
// stored values; a write that would exceed it fails with
// types.ErrQuotaExceeded and leaves the previous value in place.
package kv

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mesh-intelligence/moji/pkg/types"
)

// Store is a quota-limited key/value store.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the value for key. Returns an error wrapping
	// types.ErrQuotaExceeded when the total stored size would exceed the
	// quota; the previous value is kept.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Used returns the total bytes currently stored.
	Used(ctx context.Context) (int64, error)

	// Quota returns the hard limit in bytes.
	Quota() int64
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", types.ErrInvalidKey, key)
	}
	return nil
}

func quotaError(key string, total, quota int64) error {
	return fmt.Errorf("%w: writing %q needs %d bytes, quota is %d", types.ErrQuotaExceeded, key, total, quota)
}
