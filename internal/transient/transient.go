// ABOUTME: Transient key-value storage for in-flight relay envelopes and blobs
// ABOUTME: Defines the Store interface shared by the Redis and in-memory backends

package transient

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key is absent or its TTL has expired.
var ErrNotFound = errors.New("transient: key not found")

// Store is a TTL-scoped key-value store for in-flight relay state.
// Entries are deleted explicitly on successful delivery; the TTL is the
// backstop for entries orphaned by a crash or a failed delivery.
type Store interface {
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
