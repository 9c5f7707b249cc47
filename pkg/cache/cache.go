// Package cache provides a generic key-value cache with TTL support,
// backed by memory or Redis. A cache is the canonical persistent
// component: registered once per worker and shared by every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrClosed is returned when an operation hits a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrCodec is returned when value serialization fails.
	ErrCodec = errors.New("cache: failed to encode value")
)

// Cache is a key-value cache with TTL support.
//
// TTL semantics for Set: positive expires after the duration, zero
// uses the cache's default TTL, negative never expires.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns ErrNotFound if the key
	// does not exist or has expired.
	Get(ctx context.Context, key string) (V, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Has reports whether a key exists and has not expired.
	Has(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

func encode[V any](v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrCodec, err)
	}
	return data, nil
}

func decode[V any](data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Join(ErrCodec, err)
	}
	return v, nil
}

var sfGroup singleflight.Group

type computed[V any] struct {
	val V
	ttl time.Duration
}

// GetOrSet retrieves a value, calling fn to compute and cache it on a
// miss. Concurrent misses for the same key collapse into one fn call.
func GetOrSet[V any](ctx context.Context, c Cache[V], key string, fn func(ctx context.Context) (V, time.Duration, error)) (V, error) {
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	v, err, _ := sfGroup.Do(key, func() (any, error) {
		val, ttl, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return computed[V]{val: val, ttl: ttl}, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	r := v.(computed[V])
	_ = c.Set(ctx, key, r.val, r.ttl)
	return r.val, nil
}
