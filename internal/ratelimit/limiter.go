package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Quota is the pair of windows guarding one operation.
type Quota struct {
	// Op names the operation, e.g. "enhance". It prefixes window scopes.
	Op        string
	PerMinute int64
	PerDay    int64
}

// Decision is the combined outcome of both windows for one request.
type Decision struct {
	Allowed bool
	// Window names the window that rejected: "minute" or "day".
	Window            string
	RetryAfterSeconds int64
	ResetAt           time.Time
}

// Limiter applies two fixed windows per operation: a short per-minute window
// keyed by identity and client IP, and a per-day window keyed by identity
// alone so rotating IPs cannot evade the daily cap.
type Limiter struct {
	store Store
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// Check consumes quota from both windows. The minute window is consulted
// first; a minute rejection leaves the day window untouched.
func (l *Limiter) Check(ctx context.Context, q Quota, rateKey, clientIP string) (Decision, error) {
	minute, err := l.store.Check(ctx, q.Op+":minute", fmt.Sprintf("%s:%s", rateKey, clientIP), q.PerMinute, time.Minute)
	if err != nil {
		return Decision{}, fmt.Errorf("check minute window: %w", err)
	}
	if !minute.Allowed {
		return Decision{
			Window:            "minute",
			RetryAfterSeconds: minute.RetryAfterSeconds,
			ResetAt:           minute.ResetAt,
		}, nil
	}

	day, err := l.store.Check(ctx, q.Op+":day", rateKey, q.PerDay, 24*time.Hour)
	if err != nil {
		return Decision{}, fmt.Errorf("check day window: %w", err)
	}
	if !day.Allowed {
		return Decision{
			Window:            "day",
			RetryAfterSeconds: day.RetryAfterSeconds,
			ResetAt:           day.ResetAt,
		}, nil
	}

	return Decision{Allowed: true, ResetAt: minute.ResetAt}, nil
}
