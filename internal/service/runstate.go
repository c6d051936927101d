package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roastbot/internal/core/domain"
)

// run is the state machine and event log of one run. All mutable fields are
// guarded by mu; outcomes and log are only ever appended to.
type run struct {
	id          string
	source      domain.Source
	style       domain.Style
	maxSteps    int
	concurrency int
	targets     []domain.Target
	createdAt   time.Time

	subBuffer int
	onDrop    func()
	now       func() time.Time

	mu         sync.RWMutex
	state      domain.RunState
	outcomes   []domain.Outcome
	startedAt  time.Time
	finishedAt time.Time
	cancelled  bool
	errMsg     string
	log        []domain.Event
	subs       map[*Subscription]struct{}
	cancel     context.CancelFunc

	done chan struct{}
}

type runParams struct {
	id          string
	source      domain.Source
	style       domain.Style
	maxSteps    int
	concurrency int
	targets     []domain.Target
	subBuffer   int
	onDrop      func()
	now         func() time.Time
	cancel      context.CancelFunc
}

func newRun(p runParams) *run {
	if p.now == nil {
		p.now = time.Now
	}
	if p.subBuffer < 1 {
		p.subBuffer = 1
	}
	return &run{
		id:          p.id,
		source:      p.source,
		style:       p.style,
		maxSteps:    p.maxSteps,
		concurrency: p.concurrency,
		targets:     p.targets,
		createdAt:   p.now().UTC(),
		subBuffer:   p.subBuffer,
		onDrop:      p.onDrop,
		now:         p.now,
		state:       domain.RunPending,
		subs:        make(map[*Subscription]struct{}),
		cancel:      p.cancel,
		done:        make(chan struct{}),
	}
}

var transitions = map[domain.RunState][]domain.RunState{
	domain.RunPending: {domain.RunRunning, domain.RunFailed, domain.RunFinished},
	domain.RunRunning: {domain.RunFinished},
}

// transitionLocked moves the run to next. Caller holds mu.
func (r *run) transitionLocked(next domain.RunState) error {
	for _, allowed := range transitions[r.state] {
		if allowed == next {
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.state, next)
}

// markRunning records an admission. Only the first one changes state.
func (r *run) markRunning() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.RunRunning {
		return nil
	}
	if err := r.transitionLocked(domain.RunRunning); err != nil {
		return err
	}
	r.startedAt = r.now().UTC()
	return nil
}

// record appends an outcome and broadcasts it.
func (r *run) record(o domain.Outcome) (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return nil, fmt.Errorf("%w: outcome after %s", domain.ErrInvalidTransition, r.state)
	}
	if len(r.outcomes) >= len(r.targets) {
		return nil, fmt.Errorf("%w: more outcomes than targets", domain.ErrInvalidTransition)
	}
	r.outcomes = append(r.outcomes, o)
	ev := domain.OutcomeEvent{Seq: r.nextSeqLocked(), RunID: r.id, Outcome: o}
	r.publishLocked(ev)
	return ev, nil
}

// finish moves the run to finished once the scheduler has drained. A run
// with fewer outcomes than targets was cut short by cancellation.
func (r *run) finish() (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelled := len(r.outcomes) < len(r.targets)
	if r.state == domain.RunPending && !cancelled {
		return nil, fmt.Errorf("%w: finish before any admission", domain.ErrInvalidTransition)
	}
	if err := r.transitionLocked(domain.RunFinished); err != nil {
		return nil, err
	}
	r.cancelled = cancelled
	return r.terminateLocked(), nil
}

// fail marks a run whose target queue could not be built.
func (r *run) fail(reason string) (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(domain.RunFailed); err != nil {
		return nil, err
	}
	r.errMsg = reason
	return r.terminateLocked(), nil
}

func (r *run) terminateLocked() domain.Event {
	r.finishedAt = r.now().UTC()
	ev := domain.TerminalEvent{
		Seq:       r.nextSeqLocked(),
		RunID:     r.id,
		State:     r.state,
		Totals:    r.totalsLocked(),
		Cancelled: r.cancelled,
		Error:     r.errMsg,
	}
	r.publishLocked(ev)
	r.closeSubsLocked()
	close(r.done)
	return ev
}

// requestCancel stops admission. It reports false if the run already ended.
func (r *run) requestCancel() bool {
	r.mu.RLock()
	cancel, terminal := r.cancel, r.state.Terminal()
	r.mu.RUnlock()
	if terminal || cancel == nil {
		return false
	}
	cancel()
	return true
}

func (r *run) nextSeqLocked() uint64 {
	return uint64(len(r.log) + 1)
}

func (r *run) totalsLocked() domain.Totals {
	t := domain.Totals{Total: len(r.targets)}
	for _, o := range r.outcomes {
		switch o.Status {
		case domain.OutcomeDone:
			t.Done++
		case domain.OutcomeFailed:
			t.Failed++
		}
	}
	t.Pending = t.Total - t.Done - t.Failed
	return t
}

func (r *run) currentState() domain.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// snapshot copies the run. Outcomes are omitted when withOutcomes is false.
func (r *run) snapshot(withOutcomes bool) domain.RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := domain.RunSnapshot{
		ID:          r.id,
		Source:      r.source,
		Style:       r.style,
		MaxSteps:    r.maxSteps,
		Concurrency: r.concurrency,
		State:       r.state,
		Totals:      r.totalsLocked(),
		Cancelled:   r.cancelled,
		Error:       r.errMsg,
		CreatedAt:   r.createdAt,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		snap.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		snap.FinishedAt = &t
	}
	if withOutcomes {
		snap.Targets = append([]domain.Target(nil), r.targets...)
		snap.Outcomes = append([]domain.Outcome(nil), r.outcomes...)
	}
	return snap
}
