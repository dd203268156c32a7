// Package store defines the key/value abstraction the decision engine
// persists through, with in-memory and Redis backends.
//
// The engine never talks to a concrete backend directly: everything it
// needs is expressed as atomic single-operation primitives (INCR with TTL,
// SETNX, set membership, hash fields, bounded lists) so that concurrent
// bursts against the same identity cannot lose updates.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached.
// Callers apply their documented fail-open or fail-closed policy on it.
var ErrUnavailable = errors.New("store unavailable")

// Store is the persistence surface for all per-identity state.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes a value with an optional TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only if the key does not exist. Returns true if written.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically increments a counter, setting ttl when the key is
	// created by this call. Returns the post-increment value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Del removes keys.
	Del(ctx context.Context, keys ...string) error

	// Set operations.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Hash operations.
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error)

	// Bounded list operations (newest first).
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Expire sets or refreshes a key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
	Close() error
}
