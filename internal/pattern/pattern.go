// Package pattern keeps rolling per-sender transaction statistics: totals,
// volume, a capped unique-receiver set, and a short-window activity counter.
// The risk scorer reads these to judge whether a new transaction fits the
// sender's history.
package pattern

import (
	"context"
	"strconv"
	"time"

	"github.com/mbd888/relayguard/internal/store"
)

// Field names inside the per-sender statistics hash.
const (
	fieldTotalTx = "total_transactions"
	fieldVolume  = "total_volume"
	fieldLastMs  = "last_transaction_ms"
	fieldCapped  = "receivers_capped"
)

// Record is a point-in-time snapshot of one sender's history.
type Record struct {
	TotalTransactions   int64
	TotalVolume         float64
	AverageAmount       float64
	UniqueReceivers     int64
	ReceiversCapped     bool
	RecentCount         int64
	LastTransactionTime time.Time
}

// Tracker accumulates sender statistics in the shared store.
type Tracker struct {
	store        store.Store
	receiverCap  int64
	recentWindow time.Duration
}

// New creates a Tracker. receiverCap bounds the unique-receiver set per
// sender so a spray attack cannot grow unbounded state; recentWindow is the
// span of the short-term activity counter.
func New(st store.Store, receiverCap int64, recentWindow time.Duration) *Tracker {
	if receiverCap <= 0 {
		receiverCap = 1000
	}
	if recentWindow <= 0 {
		recentWindow = time.Minute
	}
	return &Tracker{store: st, receiverCap: receiverCap, recentWindow: recentWindow}
}

// Observe folds one transaction into identity's history. Each mutation is a
// single atomic store operation, so concurrent transactions from the same
// sender cannot lose updates.
func (t *Tracker) Observe(ctx context.Context, identity string, amount float64, receiver string, at time.Time) error {
	key := store.PatternKey(identity)

	if _, err := t.store.HIncrBy(ctx, key, fieldTotalTx, 1); err != nil {
		return err
	}
	if _, err := t.store.HIncrByFloat(ctx, key, fieldVolume, amount); err != nil {
		return err
	}
	if err := t.store.HSet(ctx, key, fieldLastMs, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return err
	}

	if receiver != "" {
		if err := t.observeReceiver(ctx, identity, receiver); err != nil {
			return err
		}
	}

	_, err := t.store.Incr(ctx, store.PatternRecentKey(identity), t.recentWindow)
	return err
}

// observeReceiver adds receiver to the capped set. Once the cap is reached
// the set stops growing and the record is marked capped; the many-receivers
// signal has long since fired by then.
func (t *Tracker) observeReceiver(ctx context.Context, identity, receiver string) error {
	setKey := store.PatternReceiversKey(identity)
	n, err := t.store.SCard(ctx, setKey)
	if err != nil {
		return err
	}
	if n >= t.receiverCap {
		return t.store.HSet(ctx, store.PatternKey(identity), fieldCapped, "1")
	}
	_, err = t.store.SAdd(ctx, setKey, receiver)
	return err
}

// Snapshot reads identity's current statistics. A sender with no history
// returns the zero Record.
func (t *Tracker) Snapshot(ctx context.Context, identity string) (Record, error) {
	fields, err := t.store.HGetAll(ctx, store.PatternKey(identity))
	if err != nil {
		return Record{}, err
	}

	var r Record
	r.TotalTransactions, _ = strconv.ParseInt(fields[fieldTotalTx], 10, 64)
	r.TotalVolume, _ = strconv.ParseFloat(fields[fieldVolume], 64)
	r.ReceiversCapped = fields[fieldCapped] == "1"
	if r.TotalTransactions > 0 {
		r.AverageAmount = r.TotalVolume / float64(r.TotalTransactions)
	}
	if ms, err := strconv.ParseInt(fields[fieldLastMs], 10, 64); err == nil && ms > 0 {
		r.LastTransactionTime = time.UnixMilli(ms)
	}

	r.UniqueReceivers, err = t.store.SCard(ctx, store.PatternReceiversKey(identity))
	if err != nil {
		return Record{}, err
	}

	if v, ok, err := t.store.Get(ctx, store.PatternRecentKey(identity)); err != nil {
		return Record{}, err
	} else if ok {
		r.RecentCount, _ = strconv.ParseInt(v, 10, 64)
	}
	return r, nil
}

// Reset clears identity's history. Operator surface only.
func (t *Tracker) Reset(ctx context.Context, identity string) error {
	return t.store.Del(ctx,
		store.PatternKey(identity),
		store.PatternReceiversKey(identity),
		store.PatternRecentKey(identity),
	)
}
