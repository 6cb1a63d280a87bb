package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"regexp"
	"time"

	"github.com/promptforge/enhance-gateway/internal/config"
	"github.com/promptforge/enhance-gateway/internal/telemetry"
)

// overloadPattern matches the upstream's rate-limit failure messages.
var overloadPattern = regexp.MustCompile(`(?i)(^|\b)429(\b|$)|rate.?limit|too many requests|throttl`)

// UpstreamError carries the structured failure detail of an upstream call.
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "upstream error"
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// isOverload classifies a pre-stream failure as upstream overload: a 429
// status or code anywhere in the chain, or a rate-limit shaped message.
func isOverload(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		var ue *UpstreamError
		if errors.As(e, &ue) {
			if ue.StatusCode == 429 || ue.Code == "429" {
				return true
			}
		}
	}
	return overloadPattern.MatchString(err.Error())
}

// isOverloadEvent reports whether a first event is a terminal failure with a
// rate-limit shaped message.
func isOverloadEvent(ev *Event) bool {
	return ev.Type == EventTurnFailed && overloadPattern.MatchString(ev.ErrorMessage())
}

// Invoker wraps a Runtime with overload retries. The whole call is retried
// up to MaxRetries times, but only while no event has been observed for the
// attempt: once streaming has begun, a retry would duplicate partial output.
type Invoker struct {
	runtime Runtime
	cfg     func() *config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	// Overridable in tests.
	randFloat func() float64
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewInvoker(runtime Runtime, cfg func() *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) *Invoker {
	return &Invoker{
		runtime:   runtime,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		randFloat: rand.Float64,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff computes the attempt's delay: decorrelated jitter with exponential
// growth, capped at the configured ceiling.
func (i *Invoker) backoff(attempt int) time.Duration {
	retry := i.cfg().Retry
	secs := i.randFloat() * retry.BackoffBaseSeconds * math.Pow(2, float64(attempt))
	secs = math.Min(secs, retry.BackoffMaxSeconds)
	return time.Duration(secs * float64(time.Second))
}

// RunTurn starts the turn, retrying on overload while no event has been
// observed. If the first event was consumed for the overload check and no
// retry triggers, it is replayed so the caller never observes a gap.
func (i *Invoker) RunTurn(ctx context.Context, req TurnRequest) (EventStream, error) {
	maxRetries := i.cfg().Retry.MaxRetries

	for attempt := 0; ; attempt++ {
		stream, err := i.runtime.RunTurn(ctx, req)
		if err == nil {
			var first *Event
			first, err = stream.Next()
			if err == nil {
				if attempt < maxRetries && isOverloadEvent(first) {
					stream.Close()
					if derr := i.delayRetry(ctx, attempt, first.ErrorMessage()); derr != nil {
						return nil, derr
					}
					continue
				}
				return &replayStream{first: first, rest: stream}, nil
			}
			if errors.Is(err, io.EOF) {
				// Empty but clean stream: nothing to retry, nothing to replay.
				return stream, nil
			}
			stream.Close()
		}

		if attempt >= maxRetries || !isOverload(err) {
			return nil, err
		}
		if derr := i.delayRetry(ctx, attempt, err.Error()); derr != nil {
			return nil, derr
		}
	}
}

func (i *Invoker) delayRetry(ctx context.Context, attempt int, reason string) error {
	// A cancelled request must not start a backoff sleep.
	if err := ctx.Err(); err != nil {
		return err
	}
	d := i.backoff(attempt)
	i.logger.Warn("retrying overloaded upstream turn",
		"attempt", attempt+1,
		"backoff", d,
		"reason", reason,
	)
	if i.metrics != nil {
		i.metrics.RecordUpstreamRetry()
	}
	return i.sleep(ctx, d)
}

// replayStream yields the already-consumed first event before delegating.
type replayStream struct {
	first *Event
	rest  EventStream
}

func (s *replayStream) Next() (*Event, error) {
	if s.first != nil {
		ev := s.first
		s.first = nil
		return ev, nil
	}
	return s.rest.Next()
}

func (s *replayStream) Close() error { return s.rest.Close() }
