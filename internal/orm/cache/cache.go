// Package cache is the second-level cache for query results. Entries are
// keyed by statement, arguments and the current generation of every table
// the statement reads, so bumping a table's generation drops all of its
// entries at once.
package cache

import (
	"context"
	"errors"
	"time"
)

// Backend stores opaque values under string keys
type Backend interface {
	// Get returns ErrCacheMiss when key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; a zero ttl selects the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key
	Delete(ctx context.Context, key string) error

	// Clear removes every key under the backend prefix
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL bounds the lifetime of cached results
	DefaultTTL time.Duration
	// GenerationTTL bounds the lifetime of table generation tokens
	GenerationTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL:    5 * time.Minute,
		GenerationTTL: 24 * time.Hour,
		Prefix:        "reposit:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}
