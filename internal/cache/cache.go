// Package cache stores extracted document text keyed by content fingerprint.
//
// Entries never expire and are never overwritten: Set is a set-if-absent, so
// two jobs racing on the same document both succeed and the first text wins.
package cache

import (
	"context"
)

// Store is the extracted-text cache.
type Store interface {
	// Get returns the cached text and whether an entry exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key unless an entry already exists.
	Set(ctx context.Context, key, value string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
