package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"
)

var enhanceQuota = Quota{Op: "enhance", PerMinute: 3, PerDay: 5}

func TestLimiter_MinuteWindowKeyedByIP(t *testing.T) {
	l := NewLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, enhanceQuota, "user-1", "203.0.113.1")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, d.Allowed, err)
		}
	}

	d, err := l.Check(ctx, enhanceQuota, "user-1", "203.0.113.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("fourth request in the minute should be rejected")
	}
	if d.Window != "minute" {
		t.Errorf("rejecting window = %q, want minute", d.Window)
	}
	if d.RetryAfterSeconds < 1 {
		t.Errorf("retry-after must be at least 1, got %d", d.RetryAfterSeconds)
	}

	// Same identity from a different IP gets a fresh minute window.
	d, err = l.Check(ctx, enhanceQuota, "user-1", "203.0.113.2")
	if err != nil || !d.Allowed {
		t.Errorf("different IP should have its own minute window: allowed=%v err=%v", d.Allowed, err)
	}
}

func TestLimiter_DayWindowIgnoresIP(t *testing.T) {
	l := NewLimiter(NewMemoryStore())
	ctx := context.Background()

	// Burn the daily quota from rotating IPs, staying under each minute cap.
	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4", "203.0.113.5"}
	for _, ip := range ips {
		d, err := l.Check(ctx, enhanceQuota, "user-1", ip)
		if err != nil || !d.Allowed {
			t.Fatalf("ip %s: allowed=%v err=%v", ip, d.Allowed, err)
		}
	}

	d, err := l.Check(ctx, enhanceQuota, "user-1", "203.0.113.6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("daily cap must hold across IPs")
	}
	if d.Window != "day" {
		t.Errorf("rejecting window = %q, want day", d.Window)
	}
}

func TestLimiter_MinuteRejectionSparesDayQuota(t *testing.T) {
	store := NewMemoryStore()
	l := NewLimiter(store)
	ctx := context.Background()

	q := Quota{Op: "enhance", PerMinute: 1, PerDay: 10}
	l.Check(ctx, q, "user-1", "203.0.113.1")
	d, _ := l.Check(ctx, q, "user-1", "203.0.113.1")
	if d.Allowed || d.Window != "minute" {
		t.Fatalf("expected minute rejection, got %+v", d)
	}

	dayKeys := store.scopes["enhance:day"]
	if w := dayKeys["user-1"]; w == nil || w.count != 1 {
		t.Errorf("minute rejection must not consume day quota, day count = %+v", w)
	}
}

func TestLimiter_ScopesPrefixedByOperation(t *testing.T) {
	store := NewMemoryStore()
	l := NewLimiter(store)
	ctx := context.Background()

	l.Check(ctx, Quota{Op: "enhance", PerMinute: 5, PerDay: 10}, "user-1", "203.0.113.1")
	l.Check(ctx, Quota{Op: "infer", PerMinute: 5, PerDay: 10}, "user-1", "203.0.113.1")

	for scope := range store.scopes {
		if !strings.HasPrefix(scope, "enhance:") && !strings.HasPrefix(scope, "infer:") {
			t.Errorf("unexpected scope %q", scope)
		}
	}
	if len(store.scopes) != 4 {
		t.Errorf("expected 4 scopes (2 ops x 2 windows), got %d", len(store.scopes))
	}
}

func TestLimiter_ResetAtFromMinuteWindow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	store.now = func() time.Time { return now }
	l := NewLimiter(store)

	d, err := l.Check(context.Background(), enhanceQuota, "user-1", "203.0.113.1")
	if err != nil || !d.Allowed {
		t.Fatalf("allowed=%v err=%v", d.Allowed, err)
	}
	if got, want := d.ResetAt, now.Add(time.Minute); !got.Equal(want) {
		t.Errorf("resetAt = %v, want %v", got, want)
	}
}
