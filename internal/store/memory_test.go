package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("missing key reported present")
	}

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	s.SetNowFunc(func() time.Time { return now })

	_ = s.Set(ctx, "k", "v", time.Minute)

	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("key expired early")
	}

	now = now.Add(61 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key survived past TTL")
	}
}

func TestMemoryStore_SetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, _ := s.SetNX(ctx, "once", "1", 0)
	if !ok {
		t.Fatal("first SetNX should win")
	}
	ok, _ = s.SetNX(ctx, "once", "2", 0)
	if ok {
		t.Fatal("second SetNX should lose")
	}
	v, _, _ := s.Get(ctx, "once")
	if v != "1" {
		t.Fatalf("value overwritten by losing SetNX: %q", v)
	}
}

func TestMemoryStore_SetNXAfterExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	s.SetNowFunc(func() time.Time { return now })

	_, _ = s.SetNX(ctx, "nonce", "1", time.Minute)
	now = now.Add(2 * time.Minute)

	ok, _ := s.SetNX(ctx, "nonce", "2", time.Minute)
	if !ok {
		t.Fatal("SetNX should succeed after previous value expired")
	}
}

func TestMemoryStore_IncrSetsTTLOnCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	s.SetNowFunc(func() time.Time { return now })

	n, _ := s.Incr(ctx, "c", time.Minute)
	if n != 1 {
		t.Fatalf("first Incr = %d, want 1", n)
	}
	n, _ = s.Incr(ctx, "c", time.Minute)
	if n != 2 {
		t.Fatalf("second Incr = %d, want 2", n)
	}

	// Window elapses: the counter restarts at 1.
	now = now.Add(2 * time.Minute)
	n, _ = s.Incr(ctx, "c", time.Minute)
	if n != 1 {
		t.Fatalf("Incr after expiry = %d, want 1", n)
	}
}

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Incr(ctx, "c", time.Minute)
		}()
	}
	wg.Wait()

	n, _ := s.Incr(ctx, "c", time.Minute)
	if n != 101 {
		t.Fatalf("concurrent increments lost updates: final = %d, want 101", n)
	}
}

func TestMemoryStore_Sets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	added, _ := s.SAdd(ctx, "set", "a", "b", "a")
	if added != 2 {
		t.Fatalf("SAdd added = %d, want 2", added)
	}

	// Idempotent re-add.
	added, _ = s.SAdd(ctx, "set", "a")
	if added != 0 {
		t.Fatalf("re-add added = %d, want 0", added)
	}

	ok, _ := s.SIsMember(ctx, "set", "a")
	if !ok {
		t.Fatal("member missing")
	}
	n, _ := s.SCard(ctx, "set")
	if n != 2 {
		t.Fatalf("SCard = %d, want 2", n)
	}

	_ = s.SRem(ctx, "set", "a")
	ok, _ = s.SIsMember(ctx, "set", "a")
	if ok {
		t.Fatal("removed member still present")
	}
}

func TestMemoryStore_Hashes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.HSet(ctx, "h", "f", "v")
	v, ok, _ := s.HGet(ctx, "h", "f")
	if !ok || v != "v" {
		t.Fatalf("HGet = (%q, %v)", v, ok)
	}

	n, _ := s.HIncrBy(ctx, "h", "count", 3)
	if n != 3 {
		t.Fatalf("HIncrBy = %d, want 3", n)
	}
	f, _ := s.HIncrByFloat(ctx, "h", "vol", 1.5)
	if f != 1.5 {
		t.Fatalf("HIncrByFloat = %f, want 1.5", f)
	}

	all, _ := s.HGetAll(ctx, "h")
	if len(all) != 3 {
		t.Fatalf("HGetAll len = %d, want 3", len(all))
	}

	_ = s.HDel(ctx, "h", "f")
	if _, ok, _ := s.HGet(ctx, "h", "f"); ok {
		t.Fatal("deleted field still present")
	}
}

func TestMemoryStore_Lists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.LPush(ctx, "log", "first")
	_ = s.LPush(ctx, "log", "second")
	_ = s.LPush(ctx, "log", "third")

	out, _ := s.LRange(ctx, "log", 0, -1)
	if len(out) != 3 || out[0] != "third" || out[2] != "first" {
		t.Fatalf("LRange = %v", out)
	}

	// Trim to the 2 newest entries (bounded audit log behavior).
	_ = s.LTrim(ctx, "log", 0, 1)
	out, _ = s.LRange(ctx, "log", 0, -1)
	if len(out) != 2 || out[0] != "third" || out[1] != "second" {
		t.Fatalf("after LTrim: %v", out)
	}
}

func TestMemoryStore_Del(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "a", "1", 0)
	_, _ = s.SAdd(ctx, "b", "x")
	_ = s.Del(ctx, "a", "b")

	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatal("deleted value present")
	}
	if ok, _ := s.SIsMember(ctx, "b", "x"); ok {
		t.Fatal("deleted set present")
	}
}
