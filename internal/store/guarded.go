package store

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/relayguard/internal/circuitbreaker"
)

const breakerKey = "store"

// Guarded wraps a Store with a bounded per-operation timeout and a circuit
// breaker. When the backend is down the breaker trips open and every call
// fails fast with ErrUnavailable instead of stacking up timeouts, so the
// pipeline can take its documented degraded path immediately.
type Guarded struct {
	inner   Store
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

// NewGuarded wraps inner with timeout-bounded, breaker-protected access.
func NewGuarded(inner Store, breaker *circuitbreaker.Breaker, timeout time.Duration) *Guarded {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Guarded{inner: inner, breaker: breaker, timeout: timeout}
}

// do runs op with a deadline and feeds the result to the breaker.
// Context cancellation from the caller is not counted as a backend failure.
func (g *Guarded) do(ctx context.Context, op func(ctx context.Context) error) error {
	if !g.breaker.Allow(breakerKey) {
		return ErrUnavailable
	}
	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := op(opCtx)
	switch {
	case err == nil:
		g.breaker.RecordSuccess(breakerKey)
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUnavailable):
		g.breaker.RecordFailure(breakerKey)
		return ErrUnavailable
	default:
		// Application-level errors are not backend health signals.
		g.breaker.RecordSuccess(breakerKey)
		return err
	}
}

func (g *Guarded) Get(ctx context.Context, key string) (v string, ok bool, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		v, ok, e = g.inner.Get(ctx, key)
		return e
	})
	return
}

func (g *Guarded) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.Set(ctx, key, value, ttl)
	})
}

func (g *Guarded) SetNX(ctx context.Context, key, value string, ttl time.Duration) (ok bool, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		ok, e = g.inner.SetNX(ctx, key, value, ttl)
		return e
	})
	return
}

func (g *Guarded) Incr(ctx context.Context, key string, ttl time.Duration) (n int64, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		n, e = g.inner.Incr(ctx, key, ttl)
		return e
	})
	return
}

func (g *Guarded) Del(ctx context.Context, keys ...string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.Del(ctx, keys...)
	})
}

func (g *Guarded) SAdd(ctx context.Context, key string, members ...string) (n int64, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		n, e = g.inner.SAdd(ctx, key, members...)
		return e
	})
	return
}

func (g *Guarded) SRem(ctx context.Context, key string, members ...string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.SRem(ctx, key, members...)
	})
}

func (g *Guarded) SIsMember(ctx context.Context, key, member string) (ok bool, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		ok, e = g.inner.SIsMember(ctx, key, member)
		return e
	})
	return
}

func (g *Guarded) SMembers(ctx context.Context, key string) (members []string, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		members, e = g.inner.SMembers(ctx, key)
		return e
	})
	return
}

func (g *Guarded) SCard(ctx context.Context, key string) (n int64, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		n, e = g.inner.SCard(ctx, key)
		return e
	})
	return
}

func (g *Guarded) HSet(ctx context.Context, key, field, value string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.HSet(ctx, key, field, value)
	})
}

func (g *Guarded) HGet(ctx context.Context, key, field string) (v string, ok bool, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		v, ok, e = g.inner.HGet(ctx, key, field)
		return e
	})
	return
}

func (g *Guarded) HDel(ctx context.Context, key string, fields ...string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.HDel(ctx, key, fields...)
	})
}

func (g *Guarded) HGetAll(ctx context.Context, key string) (m map[string]string, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		m, e = g.inner.HGetAll(ctx, key)
		return e
	})
	return
}

func (g *Guarded) HIncrBy(ctx context.Context, key, field string, delta int64) (n int64, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		n, e = g.inner.HIncrBy(ctx, key, field, delta)
		return e
	})
	return
}

func (g *Guarded) HIncrByFloat(ctx context.Context, key, field string, delta float64) (f float64, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		f, e = g.inner.HIncrByFloat(ctx, key, field, delta)
		return e
	})
	return
}

func (g *Guarded) LPush(ctx context.Context, key string, values ...string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.LPush(ctx, key, values...)
	})
}

func (g *Guarded) LRange(ctx context.Context, key string, start, stop int64) (out []string, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		var e error
		out, e = g.inner.LRange(ctx, key, start, stop)
		return e
	})
	return
}

func (g *Guarded) LTrim(ctx context.Context, key string, start, stop int64) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.LTrim(ctx, key, start, stop)
	})
}

func (g *Guarded) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.Expire(ctx, key, ttl)
	})
}

func (g *Guarded) Ping(ctx context.Context) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.Ping(ctx)
	})
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}
