package service

import (
	"context"
	"errors"

	"roastbot/internal/core/domain"
)

// ErrSubscriberLagged is reported by Subscription.Err when the subscriber
// fell so far behind that its buffer overflowed. Resubscribe with the last
// seen sequence number to continue.
var ErrSubscriberLagged = errors.New("subscriber lagged behind and was dropped")

// Subscription is one observer of a run's events. The channel first yields
// every logged event after the requested sequence number, then live events,
// and closes after the terminal event.
type Subscription struct {
	r      *run
	ch     chan domain.Event
	closed bool  // guarded by r.mu
	err    error // guarded by r.mu
	stop   func() bool
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Err reports why the channel closed early. It is nil after a normal end.
func (s *Subscription) Err() error {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	return s.err
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.closeLocked(nil)
}

func (s *Subscription) closeLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	delete(s.r.subs, s)
	close(s.ch)
	if s.stop != nil {
		s.stop()
	}
}

// subscribe registers a subscriber under the same lock that appends to the
// log, so the replay and the live feed meet with no gap and no duplicate.
// The subscription is closed when ctx ends.
func (r *run) subscribe(ctx context.Context, after uint64) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var replay []domain.Event
	if after < uint64(len(r.log)) {
		replay = r.log[after:]
	}

	s := &Subscription{
		r:  r,
		ch: make(chan domain.Event, len(replay)+r.subBuffer),
	}
	for _, ev := range replay {
		s.ch <- ev
	}

	if r.state.Terminal() {
		s.closed = true
		close(s.ch)
		return s
	}

	r.subs[s] = struct{}{}
	s.stop = context.AfterFunc(ctx, s.Close)
	return s
}

// publishLocked appends ev to the log and offers it to every subscriber
// without blocking. Caller holds mu.
func (r *run) publishLocked(ev domain.Event) {
	r.log = append(r.log, ev)
	for s := range r.subs {
		select {
		case s.ch <- ev:
		default:
			s.closeLocked(ErrSubscriberLagged)
			if r.onDrop != nil {
				r.onDrop()
			}
		}
	}
}

func (r *run) closeSubsLocked() {
	for s := range r.subs {
		s.closeLocked(nil)
	}
}

func (r *run) subscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
