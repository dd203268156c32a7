// Package ratelimit enforces a fixed-window request quota per identity with
// progressive lockouts for repeat offenders. Counters live in the shared
// store so limits hold across instances; a small in-process token bucket in
// front absorbs hot loops before they reach the store.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/metrics"
	"github.com/mbd888/relayguard/internal/store"
)

// surgeCacheSize bounds the per-identity token bucket cache.
const surgeCacheSize = 10_000

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	// Degraded is set when the store was unreachable and the check failed
	// open. The caller records the event for later review.
	Degraded bool
}

// Limiter checks request quotas against the shared store.
type Limiter struct {
	store  store.Store
	window time.Duration
	max    int64
	tiers  []time.Duration
	reset  time.Duration
	surge  *expirable.LRU[string, *rate.Limiter]
	now    func() time.Time
}

// New creates a Limiter allowing max requests per window, with tiers naming
// the lockout duration for each successive violation (the last tier repeats)
// and reset the quiet period after which the violation count clears.
func New(st store.Store, window time.Duration, max int64, tiers []time.Duration, reset time.Duration) *Limiter {
	if reset <= 0 {
		reset = 24 * time.Hour
	}
	return &Limiter{
		store:  st,
		window: window,
		max:    max,
		tiers:  tiers,
		reset:  reset,
		surge:  expirable.NewLRU[string, *rate.Limiter](surgeCacheSize, nil, 10*time.Minute),
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock. Test use only.
func (l *Limiter) SetNowFunc(now func() time.Time) {
	l.now = now
}

// Allow checks whether identity may make a request now. One call consumes
// one slot of the window when allowed.
func (l *Limiter) Allow(ctx context.Context, identity string) Decision {
	if !l.surgeAllow(identity) {
		metrics.RateLimitedTotal.Inc()
		return Decision{Allowed: false, RetryAfter: time.Second}
	}

	now := l.now()

	if d, locked := l.checkPenalty(ctx, identity, now); locked {
		metrics.RateLimitedTotal.Inc()
		return d
	}

	n, err := l.store.Incr(ctx, store.RateLimitKey(identity), l.window)
	if err != nil {
		// Store down: fail open rather than refusing all traffic.
		logging.L(ctx).Warn("rate limit store unavailable, failing open", "error", err)
		metrics.StoreDegradedTotal.WithLabelValues("ratelimit").Inc()
		return Decision{Allowed: true, Degraded: true}
	}

	if n <= l.max {
		return Decision{Allowed: true, Remaining: l.max - n}
	}

	metrics.RateLimitedTotal.Inc()

	// The first count past the quota in this window records a violation and
	// imposes the next penalty tier. Later counts just report the lockout.
	if n == l.max+1 {
		return l.recordViolation(ctx, identity, now)
	}
	return Decision{Allowed: false, RetryAfter: l.remainingLockout(ctx, identity, now)}
}

// surgeAllow is the local, store-free guard. Its budget is deliberately an
// order of magnitude above the real quota: the shared window counter stays
// the authority, this only sheds pathological hot loops.
func (l *Limiter) surgeAllow(identity string) bool {
	lim, ok := l.surge.Get(identity)
	if !ok {
		perSec := float64(l.max) / l.window.Seconds()
		lim = rate.NewLimiter(rate.Limit(perSec*10), int(l.max)*10)
		l.surge.Add(identity, lim)
	}
	return lim.Allow()
}

// checkPenalty reports whether identity is inside an active lockout. A
// violation record older than the reset period is cleared. Store errors
// resolve to not-locked; the window counter is the authority and fails open.
func (l *Limiter) checkPenalty(ctx context.Context, identity string, now time.Time) (Decision, bool) {
	fields, err := l.store.HGetAll(ctx, store.PenaltyKey(identity))
	if err != nil || len(fields) == 0 {
		return Decision{}, false
	}

	last := parseMillis(fields["last"])
	if !last.IsZero() && now.Sub(last) > l.reset {
		_ = l.store.Del(ctx, store.PenaltyKey(identity))
		return Decision{}, false
	}

	until := parseMillis(fields["until"])
	if until.After(now) {
		return Decision{Allowed: false, RetryAfter: until.Sub(now)}, true
	}
	return Decision{}, false
}

// recordViolation bumps the violation count and imposes the corresponding
// lockout tier, clamped to the last tier.
func (l *Limiter) recordViolation(ctx context.Context, identity string, now time.Time) Decision {
	key := store.PenaltyKey(identity)
	count, err := l.store.HIncrBy(ctx, key, "count", 1)
	if err != nil {
		metrics.StoreDegradedTotal.WithLabelValues("ratelimit").Inc()
		return Decision{Allowed: false, RetryAfter: l.window, Degraded: true}
	}

	penalty := l.penaltyFor(count)
	until := now.Add(penalty)
	_ = l.store.HSet(ctx, key, "until", formatMillis(until))
	_ = l.store.HSet(ctx, key, "last", formatMillis(now))
	_ = l.store.Expire(ctx, key, l.reset)

	metrics.PenaltiesTotal.Inc()
	logging.L(ctx).Warn("rate limit violation",
		"identity", identity, "violation_count", count, "lockout", penalty.String())

	return Decision{Allowed: false, RetryAfter: penalty}
}

// remainingLockout reads the active lockout deadline; when the record is
// unreadable the window length is a safe answer.
func (l *Limiter) remainingLockout(ctx context.Context, identity string, now time.Time) time.Duration {
	v, ok, err := l.store.HGet(ctx, store.PenaltyKey(identity), "until")
	if err != nil || !ok {
		return l.window
	}
	if until := parseMillis(v); until.After(now) {
		return until.Sub(now)
	}
	return l.window
}

// penaltyFor maps the nth violation to a lockout duration.
func (l *Limiter) penaltyFor(count int64) time.Duration {
	if len(l.tiers) == 0 {
		return time.Minute
	}
	idx := int(count) - 1
	if idx >= len(l.tiers) {
		idx = len(l.tiers) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return l.tiers[idx]
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
