// Package kvstore is the small key-value store behind session flags and
// cooldown timestamps.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("kvstore: miss")

// Store is a string key-value store. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the value of key or ErrMiss.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key. A ttl <= 0 keeps the key until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// GetDel returns the value of key and removes it in one step, or ErrMiss.
	GetDel(ctx context.Context, key string) (string, error)
	// Delete removes keys; absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
