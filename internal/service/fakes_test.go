package service

import (
	"context"
	"errors"
	"sync"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
)

type fakeExtractor struct {
	fn func(ctx context.Context, pageURL string) (*ports.Extraction, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, pageURL string, _ int) (*ports.Extraction, error) {
	if f.fn != nil {
		return f.fn(ctx, pageURL)
	}
	return &ports.Extraction{
		Summary:    domain.PageSummary{Title: "Acme", Hero: "Ship faster", CTA: "Start"},
		Screenshot: []byte("png"),
	}, nil
}

type fakeCritic struct {
	fn func(ctx context.Context, summary domain.PageSummary) (string, error)
}

func (f *fakeCritic) Critique(ctx context.Context, summary domain.PageSummary, style domain.Style, _ int) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, summary)
	}
	return "A " + string(style) + " roast of " + summary.Title + ".", nil
}

type fakeStore struct {
	mu          sync.Mutex
	screenshots map[string][]byte
	traces      map[string][]byte
	failShots   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{screenshots: map[string][]byte{}, traces: map[string][]byte{}}
}

func (s *fakeStore) PutScreenshot(_ context.Context, runID, slug string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failShots {
		return "", errors.New("bucket unavailable")
	}
	key := "runs/" + runID + "/" + slug + "/step-1.png"
	s.screenshots[key] = data
	return "mem://" + key, nil
}

func (s *fakeStore) PutTrace(_ context.Context, runID, slug string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "runs/" + runID + "/" + slug + "/trace.json"
	s.traces[key] = data
	return "mem://" + key, nil
}

func (s *fakeStore) traceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.traces)
}

type fakeLister struct {
	targets []domain.Target
	err     error
}

func (l *fakeLister) List(_ context.Context, criteria ports.ListCriteria) ([]domain.Target, error) {
	if l.err != nil {
		return nil, l.err
	}
	if criteria.Limit > 0 && len(l.targets) > criteria.Limit {
		return l.targets[:criteria.Limit], nil
	}
	return l.targets, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) PublishEvent(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
