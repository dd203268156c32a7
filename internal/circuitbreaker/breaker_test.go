package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("store") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("store")
	b.RecordFailure("store")
	if !b.Allow("store") {
		t.Fatal("should still allow before threshold")
	}

	b.RecordFailure("store")
	if b.Allow("store") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("store") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("store"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 30*time.Second)
	now := time.Now()
	b.SetNowFunc(func() time.Time { return now })

	b.RecordFailure("store")
	b.RecordFailure("store")
	if b.Allow("store") {
		t.Fatal("should be open")
	}

	// Advance past the open duration.
	now = now.Add(31 * time.Second)

	if !b.Allow("store") {
		t.Fatal("should allow probe in half-open")
	}
	if b.State("store") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("store"))
	}

	// Second request while half-open is rejected.
	if b.Allow("store") {
		t.Fatal("should reject second request in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 30*time.Second)
	now := time.Now()
	b.SetNowFunc(func() time.Time { return now })

	b.RecordFailure("store")
	b.RecordFailure("store")
	now = now.Add(31 * time.Second)
	b.Allow("store") // transitions to half-open

	b.RecordSuccess("store")
	if b.State("store") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("store"))
	}
	if !b.Allow("store") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 30*time.Second)
	now := time.Now()
	b.SetNowFunc(func() time.Time { return now })

	b.RecordFailure("store")
	b.RecordFailure("store")
	now = now.Add(31 * time.Second)
	b.Allow("store") // transitions to half-open

	b.RecordFailure("store")
	if b.State("store") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("store"))
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("store")
	b.RecordFailure("store")
	b.RecordSuccess("store")

	// Counter was reset: one more failure must not trip.
	b.RecordFailure("store")
	if !b.Allow("store") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure("store")
	b.RecordFailure("store")

	if b.Allow("store") {
		t.Fatal("store should be open")
	}
	if !b.Allow("archive") {
		t.Fatal("archive should be closed")
	}
}

func TestBreaker_UnknownKeyIsClosed(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
