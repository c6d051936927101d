// Package targetfile reads run targets from a YAML file:
//
//	targets:
//	  - name: acme
//	    website: acme.io
//	  - website: https://beta.dev
package targetfile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
)

type document struct {
	Targets []domain.Target `yaml:"targets"`
}

// Lister implements ports.Lister over criteria.Path.
type Lister struct{}

// List parses the file at criteria.Path and returns at most criteria.Limit
// targets (all when Limit is 0). Any entry without a valid website is an
// invalid request.
func (Lister) List(ctx context.Context, criteria ports.ListCriteria) ([]domain.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if criteria.Path == "" {
		return nil, fmt.Errorf("%w: no target file given", domain.ErrInvalidRequest)
	}
	data, err := os.ReadFile(criteria.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		return nil, err
	}
	return Parse(data, criteria.Limit)
}

// Parse decodes a target document.
func Parse(data []byte, limit int) ([]domain.Target, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse targets: %v", domain.ErrInvalidRequest, err)
	}

	targets := doc.Targets
	if limit > 0 && len(targets) > limit {
		targets = targets[:limit]
	}
	out := make([]domain.Target, 0, len(targets))
	for i, t := range targets {
		nt, err := domain.NewTarget(t.Website)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		if t.Name != "" {
			nt.Name = t.Name
		}
		out = append(out, nt)
	}
	return out, nil
}
