package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_AllowsUpToLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		res, err := s.Check(ctx, "op:minute", "user-1", 5, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 5-i-1 {
			t.Errorf("request %d: remaining = %d, want %d", i+1, res.Remaining, 5-i-1)
		}
	}

	res, err := s.Check(ctx, "op:minute", "user-1", 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("request over limit should be rejected")
	}
	if res.RetryAfterSeconds < 1 {
		t.Errorf("retry-after must be at least 1, got %d", res.RetryAfterSeconds)
	}
}

func TestMemoryStore_WindowReset(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s.Check(ctx, "op:minute", "user-1", 2, time.Minute)
	}
	res, _ := s.Check(ctx, "op:minute", "user-1", 2, time.Minute)
	if res.Allowed {
		t.Fatal("expected rejection at limit")
	}

	now = now.Add(time.Minute + time.Second)
	res, _ = s.Check(ctx, "op:minute", "user-1", 2, time.Minute)
	if !res.Allowed {
		t.Fatal("expected fresh window after reset")
	}
	if res.Remaining != 1 {
		t.Errorf("fresh window remaining = %d, want 1", res.Remaining)
	}
	if got, want := res.ResetAt, now.Add(time.Minute); !got.Equal(want) {
		t.Errorf("fresh window resetAt = %v, want %v", got, want)
	}
}

func TestMemoryStore_RetryAfterRounding(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Check(ctx, "op:minute", "user-1", 1, time.Minute)

	// 17.2s left in the window rounds up to 18.
	now = now.Add(42*time.Second + 800*time.Millisecond)
	res, _ := s.Check(ctx, "op:minute", "user-1", 1, time.Minute)
	if res.Allowed {
		t.Fatal("expected rejection")
	}
	if res.RetryAfterSeconds != 18 {
		t.Errorf("retryAfterSeconds = %d, want 18", res.RetryAfterSeconds)
	}
}

func TestMemoryStore_ScopesAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Check(ctx, "enhance:minute", "user-1", 1, time.Minute)
	res, _ := s.Check(ctx, "infer:minute", "user-1", 1, time.Minute)
	if !res.Allowed {
		t.Error("a different scope must not share the window")
	}
}

func TestMemoryStore_PrunesExpiredWindows(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < pruneThreshold; i++ {
		s.Check(ctx, "op:minute", fmt.Sprintf("key-%d", i), 1, time.Minute)
	}
	if got := len(s.scopes["op:minute"]); got != pruneThreshold {
		t.Fatalf("expected %d live windows, got %d", pruneThreshold, got)
	}

	now = now.Add(2 * time.Minute)
	s.Check(ctx, "op:minute", "fresh-key", 1, time.Minute)
	if got := len(s.scopes["op:minute"]); got != 1 {
		t.Errorf("expected expired windows swept, got %d entries", got)
	}
}

func TestMemoryStore_Concurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 20
	const perWorker = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				res, err := s.Check(ctx, "op:day", "shared", 600, 24*time.Hour)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 1000 requests against a limit of 600: exactly 600 may pass.
	if allowed != 600 {
		t.Errorf("allowed = %d, want exactly 600", allowed)
	}
}
