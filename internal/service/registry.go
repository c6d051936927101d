package service

import (
	"fmt"
	"sort"
	"sync"

	"roastbot/internal/core/domain"
)

// Registry maps run IDs to runs. Runs are never evicted.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*run
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*run)}
}

func (g *Registry) add(r *run) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.runs[r.id]; ok {
		return fmt.Errorf("run %s already registered", r.id)
	}
	g.runs[r.id] = r
	return nil
}

func (g *Registry) get(id string) (*run, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// list returns all runs, newest first.
func (g *Registry) list() []*run {
	g.mu.RLock()
	out := make([]*run, 0, len(g.runs))
	for _, r := range g.runs {
		out = append(out, r)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out
}

// Len returns the number of registered runs.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runs)
}
