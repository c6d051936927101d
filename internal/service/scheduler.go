package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"roastbot/internal/core/domain"
	"roastbot/internal/metrics"
)

// ProcessFunc produces the Outcome of one target.
type ProcessFunc func(ctx context.Context, index int, target domain.Target) domain.Outcome

// RetryPolicy re-runs a target whose outcome failed for one of Reasons.
// Only the last attempt's Outcome is emitted.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Reasons     []string
}

func (p RetryPolicy) enabled() bool {
	return p.MaxAttempts > 1
}

func (p RetryPolicy) retryable(o domain.Outcome) bool {
	return o.Status == domain.OutcomeFailed && slices.Contains(p.Reasons, o.ErrorReason)
}

func (p RetryPolicy) backoff() retry.Backoff {
	d := p.Backoff
	if d <= 0 {
		d = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), retry.NewConstant(d))
}

// Scheduler admits targets in queue order with at most limit in flight.
type Scheduler struct {
	limit   int
	retry   RetryPolicy
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewScheduler creates a Scheduler. A limit below 1 is clamped to 1.
func NewScheduler(limit int, policy RetryPolicy, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{limit: limit, retry: policy, metrics: m, logger: logger}
}

// Run drives process over targets and returns a channel of outcomes in
// completion order. The channel is closed exactly once, after the last
// admitted target has produced its outcome.
//
// Cancelling ctx stops admission. Targets already admitted run to completion
// on a context that is not cancelled with ctx. onAdmit, if set, is called
// before each target starts.
func (s *Scheduler) Run(ctx context.Context, targets []domain.Target, process ProcessFunc, onAdmit func(index int)) <-chan domain.Outcome {
	out := make(chan domain.Outcome, s.limit)
	work := context.WithoutCancel(ctx)

	go func() {
		defer close(out)

		sem := semaphore.NewWeighted(int64(s.limit))
		var wg sync.WaitGroup

		admitted := 0
		for i, target := range targets {
			if ctx.Err() != nil {
				break
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			// Acquire may succeed on an already cancelled context.
			if ctx.Err() != nil {
				sem.Release(1)
				break
			}
			if onAdmit != nil {
				onAdmit(i)
			}
			admitted++

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				out <- s.runTarget(ctx, work, i, target, process)
			}()
		}

		if admitted < len(targets) {
			s.logger.Info().Int("admitted", admitted).Int("total", len(targets)).Msg("admission stopped")
		}
		wg.Wait()
	}()

	return out
}

func (s *Scheduler) runTarget(ctx, work context.Context, index int, target domain.Target, process ProcessFunc) domain.Outcome {
	if !s.retry.enabled() {
		o := process(work, index, target)
		o.Attempts = 1
		return o
	}

	var last domain.Outcome
	attempts := 0
	_ = retry.Do(ctx, s.retry.backoff(), func(context.Context) error {
		if attempts > 0 {
			s.metrics.Retried()
		}
		attempts++
		last = process(work, index, target)
		if s.retry.retryable(last) {
			return retry.RetryableError(errors.New(last.ErrorReason))
		}
		return nil
	})
	// Do skips the first attempt when ctx is already cancelled, but an
	// admitted target is always processed.
	if attempts == 0 {
		last = process(work, index, target)
		attempts = 1
	}
	last.Attempts = attempts
	return last
}
