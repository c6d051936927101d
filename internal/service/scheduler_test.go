package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"roastbot/internal/core/domain"
)

func makeTargets(n int) []domain.Target {
	out := make([]domain.Target, n)
	for i := range out {
		out[i] = domain.Target{Name: fmt.Sprintf("co-%d", i), Website: fmt.Sprintf("https://co-%d.example", i)}
	}
	return out
}

func drain(ch <-chan domain.Outcome) []domain.Outcome {
	var out []domain.Outcome
	for o := range ch {
		out = append(out, o)
	}
	return out
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 3, 10} {
		for _, size := range []int{0, 1, 50} {
			t.Run(fmt.Sprintf("limit=%d/size=%d", limit, size), func(t *testing.T) {
				var running, maxSeen atomic.Int32
				process := func(_ context.Context, i int, target domain.Target) domain.Outcome {
					cur := running.Add(1)
					for {
						old := maxSeen.Load()
						if cur <= old || maxSeen.CompareAndSwap(old, cur) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					running.Add(-1)
					return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeDone}
				}

				s := NewScheduler(limit, RetryPolicy{}, nil, zerolog.Nop())
				outcomes := drain(s.Run(context.Background(), makeTargets(size), process, nil))

				if len(outcomes) != size {
					t.Fatalf("outcomes = %d, want %d", len(outcomes), size)
				}
				if m := maxSeen.Load(); int(m) > limit {
					t.Fatalf("max concurrent = %d, want <= %d", m, limit)
				}
			})
		}
	}
}

func TestSchedulerExactlyOneOutcomePerTarget(t *testing.T) {
	targets := makeTargets(30)
	targets[7] = targets[3] // duplicates are processed independently

	process := func(_ context.Context, i int, target domain.Target) domain.Outcome {
		time.Sleep(time.Duration(i%5) * time.Millisecond)
		return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeDone}
	}
	s := NewScheduler(4, RetryPolicy{}, nil, zerolog.Nop())
	outcomes := drain(s.Run(context.Background(), targets, process, nil))

	seen := make(map[int]int)
	for _, o := range outcomes {
		seen[o.Index]++
		if o.Target != targets[o.Index] {
			t.Fatalf("outcome %d carries target %+v, want %+v", o.Index, o.Target, targets[o.Index])
		}
	}
	if len(seen) != len(targets) {
		t.Fatalf("distinct outcomes = %d, want %d", len(seen), len(targets))
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("target %d produced %d outcomes", i, n)
		}
	}
}

func TestSchedulerAdmitsInQueueOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int
	admit := func(i int) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
	}
	process := func(_ context.Context, i int, target domain.Target) domain.Outcome {
		time.Sleep(time.Duration((10-i)%4) * time.Millisecond)
		return domain.Outcome{Index: i, Target: target}
	}

	s := NewScheduler(3, RetryPolicy{}, nil, zerolog.Nop())
	drain(s.Run(context.Background(), makeTargets(10), process, admit))

	for i, got := range order {
		if got != i {
			t.Fatalf("admission order = %v", order)
		}
	}
}

func TestSchedulerCancellationStopsAdmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var started atomic.Int32
	twoStarted := make(chan struct{})

	process := func(pctx context.Context, i int, target domain.Target) domain.Outcome {
		if started.Add(1) == 2 {
			close(twoStarted)
		}
		<-release
		if pctx.Err() != nil {
			t.Errorf("in-flight processor saw cancellation: %v", pctx.Err())
		}
		return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeDone}
	}

	s := NewScheduler(2, RetryPolicy{}, nil, zerolog.Nop())
	results := s.Run(ctx, makeTargets(5), process, nil)

	<-twoStarted
	cancel()
	close(release)

	outcomes := drain(results)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if n := started.Load(); n != 2 {
		t.Fatalf("started = %d, want 2", n)
	}
}

func TestSchedulerRetryConvergesToOneOutcome(t *testing.T) {
	var calls atomic.Int32
	process := func(_ context.Context, i int, target domain.Target) domain.Outcome {
		if calls.Add(1) < 3 {
			return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeFailed, ErrorReason: domain.ReasonExtraction}
		}
		return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeDone}
	}

	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Reasons: []string{domain.ReasonExtraction}}
	s := NewScheduler(1, policy, nil, zerolog.Nop())
	outcomes := drain(s.Run(context.Background(), makeTargets(1), process, nil))

	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	if outcomes[0].Status != domain.OutcomeDone || outcomes[0].Attempts != 3 {
		t.Fatalf("outcome = %+v, want done after 3 attempts", outcomes[0])
	}
}

func TestSchedulerRetryIsBounded(t *testing.T) {
	var calls atomic.Int32
	process := func(_ context.Context, i int, target domain.Target) domain.Outcome {
		calls.Add(1)
		return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeFailed, ErrorReason: domain.ReasonExtraction}
	}

	policy := RetryPolicy{MaxAttempts: 2, Reasons: []string{domain.ReasonExtraction}}
	s := NewScheduler(2, policy, nil, zerolog.Nop())
	outcomes := drain(s.Run(context.Background(), makeTargets(3), process, nil))

	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if n := calls.Load(); n != 6 {
		t.Fatalf("process calls = %d, want 6", n)
	}
	for _, o := range outcomes {
		if o.Attempts != 2 || o.ErrorReason != domain.ReasonExtraction {
			t.Fatalf("outcome = %+v", o)
		}
	}
}

func TestSchedulerRetrySkipsOtherReasons(t *testing.T) {
	var calls atomic.Int32
	process := func(_ context.Context, i int, target domain.Target) domain.Outcome {
		calls.Add(1)
		return domain.Outcome{Index: i, Target: target, Status: domain.OutcomeFailed, ErrorReason: domain.ReasonNoContent}
	}

	policy := RetryPolicy{MaxAttempts: 4, Reasons: []string{domain.ReasonExtraction}}
	s := NewScheduler(1, policy, nil, zerolog.Nop())
	drain(s.Run(context.Background(), makeTargets(1), process, nil))

	if n := calls.Load(); n != 1 {
		t.Fatalf("process calls = %d, want 1", n)
	}
}
