package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/relayguard/internal/audit"
	"github.com/mbd888/relayguard/internal/blacklist"
	"github.com/mbd888/relayguard/internal/pattern"
	"github.com/mbd888/relayguard/internal/ratelimit"
	"github.com/mbd888/relayguard/internal/risk"
	"github.com/mbd888/relayguard/internal/store"
)

type fixture struct {
	store    *store.MemoryStore
	lists    *blacklist.Service
	auditor  *audit.Recorder
	pipeline *Pipeline
}

func newFixture(t *testing.T, rateMax int64) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	lists := blacklist.NewService(st, blacklist.NewEmergency(nil))
	tracker := pattern.New(st, 1000, time.Minute)
	auditor := audit.NewRecorder(st, nil)
	scorer := risk.NewScorer(lists, tracker, auditor, risk.Config{})
	limiter := ratelimit.New(st, time.Minute, rateMax,
		[]time.Duration{time.Minute, 5 * time.Minute}, 24*time.Hour)

	return &fixture{
		store:    st,
		lists:    lists,
		auditor:  auditor,
		pipeline: New(limiter, scorer, auditor, nil),
	}
}

func TestProcess_CleanTransactionAllowed(t *testing.T) {
	f := newFixture(t, 100)

	out := f.pipeline.Process(context.Background(), risk.Transaction{
		Identity: "0xclean", Receiver: "0xr", Amount: 12.34,
	})

	assert.True(t, out.Allowed)
	assert.Empty(t, out.Reason)
	require.NotNil(t, out.Assessment)
	assert.Equal(t, risk.VerdictAllow, out.Assessment.Verdict)
}

func TestProcess_RateLimitedBeforeScoring(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	tx := risk.Transaction{Identity: "0xfast", Receiver: "0xr", Amount: 1}
	f.pipeline.Process(ctx, tx)
	f.pipeline.Process(ctx, tx)

	out := f.pipeline.Process(ctx, tx)
	assert.False(t, out.Allowed)
	assert.Equal(t, ReasonRateLimited, out.Reason)
	assert.Greater(t, out.RetryAfter, time.Duration(0))
	assert.Nil(t, out.Assessment, "rate-limited requests are not scored")

	// The rate-limited attempt left no trace in the pattern record.
	rec, err := pattern.New(f.store, 1000, time.Minute).Snapshot(ctx, "0xfast")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.TotalTransactions)
}

func TestProcess_BlacklistedBlocked(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.lists.Add(ctx, "0xbad", "manual"))

	out := f.pipeline.Process(ctx, risk.Transaction{Identity: "0xbad", Amount: 1})
	assert.False(t, out.Allowed)
	assert.Equal(t, ReasonBlocked, out.Reason)
	require.NotNil(t, out.Assessment)
	assert.Equal(t, 100, out.Assessment.Score)
}

func TestProcess_BlockedRequestDoesNotMutateFurther(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.lists.Add(ctx, "0xbad", "manual"))
	f.pipeline.Process(ctx, risk.Transaction{Identity: "0xbad", Receiver: "0xr", Amount: 9})

	rec, err := pattern.New(f.store, 1000, time.Minute).Snapshot(ctx, "0xbad")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.TotalTransactions)
}

func TestProcess_SuspiciousStillAllowed(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	require.NoError(t, f.lists.Greylist(ctx, "0xgrey", "watch"))

	// greylisted (40) alone is well under the block threshold.
	out := f.pipeline.Process(ctx, risk.Transaction{Identity: "0xgrey", Receiver: "0xr", Amount: 7})
	assert.True(t, out.Allowed)
	assert.Equal(t, 40, out.Assessment.Score)

	recs, err := f.auditor.Recent(ctx, audit.KindSuspicious, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "0xgrey", recs[0].Identity)
}

func TestProcess_LimiterOutageFailsOpenWithAudit(t *testing.T) {
	st := store.NewMemoryStore()
	lists := blacklist.NewService(st, blacklist.NewEmergency(nil))
	tracker := pattern.New(st, 1000, time.Minute)
	auditor := audit.NewRecorder(st, nil)
	scorer := risk.NewScorer(lists, tracker, auditor, risk.Config{})
	limiter := ratelimit.New(&incrlessStore{st}, time.Minute, 5,
		[]time.Duration{time.Minute}, 24*time.Hour)
	p := New(limiter, scorer, auditor, nil)

	out := p.Process(context.Background(), risk.Transaction{Identity: "0xdeg", Amount: 3})
	assert.True(t, out.Allowed)

	recs, err := auditor.Recent(context.Background(), audit.KindDegraded, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "0xdeg", recs[0].Identity)
}

// incrlessStore fails counter increments only.
type incrlessStore struct {
	*store.MemoryStore
}

func (s *incrlessStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, store.ErrUnavailable
}
