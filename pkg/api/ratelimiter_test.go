package api

import (
	"context"
	"testing"
	"time"
)

// TestRateLimiterSequencesPerIP holds a permit and checks the next
// request from the same IP only proceeds after release.
func TestRateLimiterSequencesPerIP(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(time.Minute)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "10.0.0.1", RequestGeneral)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := l.Acquire(ctx, "10.0.0.1", RequestGeneral)
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		second.Release()
	}()

	select {
	case <-acquired:
		t.Fatalf("second request proceeded while first held the slot")
	case <-time.After(100 * time.Millisecond):
	}

	first.Release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("second request never proceeded after release")
	}
}

// TestRateLimiterIPsAreIndependent checks one busy IP never delays
// another.
func TestRateLimiterIPsAreIndependent(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	held, err := l.Acquire(ctx, "10.0.0.1", RequestGeneral)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	other, err := l.Acquire(ctx, "10.0.0.2", RequestGeneral)
	if err != nil {
		t.Fatalf("other IP blocked: %v", err)
	}
	other.Release()
}

// TestRateLimiterHeavyCooldown verifies the second heavy download waits
// out the cooldown started by the first one's completion.
func TestRateLimiterHeavyCooldown(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(150 * time.Millisecond)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "10.0.0.1", RequestHeavy)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	first.Release()
	released := time.Now()

	second, err := l.Acquire(ctx, "10.0.0.1", RequestHeavy)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	second.Release()

	if waited := time.Since(released); waited < 100*time.Millisecond {
		t.Fatalf("second heavy request waited only %v", waited)
	}
}

// TestRateLimiterAcquireHonorsContext makes sure a queued caller can
// give up.
func TestRateLimiterAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(time.Minute)

	held, err := l.Acquire(context.Background(), "10.0.0.1", RequestGeneral)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "10.0.0.1", RequestGeneral); err == nil {
		t.Fatalf("queued Acquire returned without error after context expiry")
	}
}
