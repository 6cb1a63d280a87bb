package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Result is the outcome of a window check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	// RetryAfterSeconds is set only on rejection, minimum 1.
	RetryAfterSeconds int64
}

// Store counts requests inside fixed windows. Implementations must be safe
// for concurrent use.
type Store interface {
	// Check records a hit for (scope, key) and reports whether it fits the
	// limit for the current window.
	Check(ctx context.Context, scope, key string, limit int64, window time.Duration) (Result, error)
}

func retryAfterSeconds(resetAt, now time.Time) int64 {
	secs := int64(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// pruneThreshold bounds per-scope memory: once a scope holds this many keys,
// expired windows are swept before inserting a new one.
const pruneThreshold = 5000

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is the in-process default. Counts reset when the process
// restarts, which is acceptable for abuse prevention.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string]map[string]*memoryWindow
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scopes: make(map[string]map[string]*memoryWindow),
		now:    time.Now,
	}
}

func (s *MemoryStore) Check(_ context.Context, scope, key string, limit int64, window time.Duration) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.scopes[scope]
	if !ok {
		keys = make(map[string]*memoryWindow)
		s.scopes[scope] = keys
	}

	w, ok := keys[key]
	if !ok || !now.Before(w.resetAt) {
		if len(keys) >= pruneThreshold {
			for k, win := range keys {
				if !now.Before(win.resetAt) {
					delete(keys, k)
				}
			}
		}
		resetAt := now.Add(window)
		keys[key] = &memoryWindow{count: 1, resetAt: resetAt}
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: resetAt}, nil
	}

	if w.count >= limit {
		return Result{
			Allowed:           false,
			Remaining:         0,
			ResetAt:           w.resetAt,
			RetryAfterSeconds: retryAfterSeconds(w.resetAt, now),
		}, nil
	}

	w.count++
	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: w.resetAt}, nil
}
