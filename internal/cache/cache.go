// Package cache defines the shared key/value cache abstraction used by the
// rule repository and the sequence state tracker. Both an in-memory and a
// Redis-backed implementation are provided; callers own key namespacing.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// ErrConflict is returned by Update when concurrent writers kept invalidating
// the read-modify-write cycle past the retry budget.
var ErrConflict = errors.New("cache: conflicting concurrent update")

// UpdateFunc computes the next value for a key from its current value.
// exists is false when the key is absent; old is nil in that case.
// Returning an error aborts the update and propagates unchanged.
type UpdateFunc func(old []byte, exists bool) ([]byte, error)

// Adapter is the cache contract. Get/Set/Delete are plain operations;
// Update is an atomic read-modify-write used for mutable records whose
// transitions must not interleave (per-product sequence state).
type Adapter interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}
