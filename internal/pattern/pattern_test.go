package pattern

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbd888/relayguard/internal/store"
)

func TestObserveAndSnapshot(t *testing.T) {
	tr := New(store.NewMemoryStore(), 1000, time.Minute)
	ctx := context.Background()
	now := time.Now()

	if err := tr.Observe(ctx, "sender", 100, "0xaaa", now); err != nil {
		t.Fatal(err)
	}
	if err := tr.Observe(ctx, "sender", 300, "0xbbb", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	r, err := tr.Snapshot(ctx, "sender")
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalTransactions != 2 {
		t.Errorf("TotalTransactions = %d, want 2", r.TotalTransactions)
	}
	if r.TotalVolume != 400 {
		t.Errorf("TotalVolume = %f, want 400", r.TotalVolume)
	}
	if r.AverageAmount != 200 {
		t.Errorf("AverageAmount = %f, want 200", r.AverageAmount)
	}
	if r.UniqueReceivers != 2 {
		t.Errorf("UniqueReceivers = %d, want 2", r.UniqueReceivers)
	}
	if r.RecentCount != 2 {
		t.Errorf("RecentCount = %d, want 2", r.RecentCount)
	}
	if !r.LastTransactionTime.Equal(time.UnixMilli(now.Add(time.Second).UnixMilli())) {
		t.Errorf("LastTransactionTime = %v", r.LastTransactionTime)
	}
}

func TestSnapshot_NoHistory(t *testing.T) {
	tr := New(store.NewMemoryStore(), 1000, time.Minute)

	r, err := tr.Snapshot(context.Background(), "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalTransactions != 0 || r.TotalVolume != 0 || r.AverageAmount != 0 {
		t.Errorf("expected zero record, got %+v", r)
	}
}

func TestObserve_RepeatReceiverNotDoubleCounted(t *testing.T) {
	tr := New(store.NewMemoryStore(), 1000, time.Minute)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_ = tr.Observe(ctx, "sender", 10, "0xsame", now)
	}

	r, _ := tr.Snapshot(ctx, "sender")
	if r.UniqueReceivers != 1 {
		t.Errorf("UniqueReceivers = %d, want 1", r.UniqueReceivers)
	}
	if r.TotalTransactions != 5 {
		t.Errorf("TotalTransactions = %d, want 5", r.TotalTransactions)
	}
}

func TestObserve_ReceiverCap(t *testing.T) {
	tr := New(store.NewMemoryStore(), 3, time.Minute)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 6; i++ {
		_ = tr.Observe(ctx, "sender", 1, fmt.Sprintf("0xr%d", i), now)
	}

	r, _ := tr.Snapshot(ctx, "sender")
	if r.UniqueReceivers != 3 {
		t.Errorf("UniqueReceivers = %d, want cap 3", r.UniqueReceivers)
	}
	if !r.ReceiversCapped {
		t.Error("ReceiversCapped should be set once the cap is hit")
	}
	if r.TotalTransactions != 6 {
		t.Errorf("TotalTransactions = %d, want 6 (cap only bounds the set)", r.TotalTransactions)
	}
}

func TestObserve_RecentWindowExpires(t *testing.T) {
	st := store.NewMemoryStore()
	tr := New(st, 1000, time.Minute)
	ctx := context.Background()

	now := time.Now()
	st.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		_ = tr.Observe(ctx, "sender", 1, "0xr", now)
	}
	r, _ := tr.Snapshot(ctx, "sender")
	if r.RecentCount != 3 {
		t.Fatalf("RecentCount = %d, want 3", r.RecentCount)
	}

	// Totals survive the recent window; the short-term counter does not.
	now = now.Add(2 * time.Minute)
	r, _ = tr.Snapshot(ctx, "sender")
	if r.RecentCount != 0 {
		t.Errorf("RecentCount after window = %d, want 0", r.RecentCount)
	}
	if r.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", r.TotalTransactions)
	}
}

func TestObserve_Concurrent(t *testing.T) {
	tr := New(store.NewMemoryStore(), 1000, time.Minute)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = tr.Observe(ctx, "sender", 2, fmt.Sprintf("0xr%d", i%10), now)
		}(i)
	}
	wg.Wait()

	r, _ := tr.Snapshot(ctx, "sender")
	if r.TotalTransactions != 50 {
		t.Errorf("TotalTransactions = %d, want 50", r.TotalTransactions)
	}
	if r.TotalVolume != 100 {
		t.Errorf("TotalVolume = %f, want 100", r.TotalVolume)
	}
}

func TestReset(t *testing.T) {
	tr := New(store.NewMemoryStore(), 1000, time.Minute)
	ctx := context.Background()

	_ = tr.Observe(ctx, "sender", 5, "0xr", time.Now())
	if err := tr.Reset(ctx, "sender"); err != nil {
		t.Fatal(err)
	}

	r, _ := tr.Snapshot(ctx, "sender")
	if r.TotalTransactions != 0 || r.UniqueReceivers != 0 {
		t.Errorf("expected cleared record, got %+v", r)
	}
}
