// Package ycdirectory lists companies from the Y Combinator directory.
package ycdirectory

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
	"roastbot/internal/pagesummary"
)

const (
	// DefaultBaseURL is the public directory root.
	DefaultBaseURL = "https://www.ycombinator.com"

	profileFetchers = 4
)

// Lister implements ports.Lister. It reads the directory page for profile
// links, then visits each profile for the company's own website.
type Lister struct {
	source  ports.PageSource
	baseURL *url.URL
	logger  zerolog.Logger
}

// NewLister creates a Lister. An empty baseURL selects DefaultBaseURL.
func NewLister(source ports.PageSource, baseURL string, logger zerolog.Logger) (*Lister, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}
	return &Lister{source: source, baseURL: u, logger: logger}, nil
}

// List returns up to criteria.Limit companies in directory order. Profiles
// that fail to load or have no website are skipped.
func (l *Lister) List(ctx context.Context, criteria ports.ListCriteria) ([]domain.Target, error) {
	dirURL := l.baseURL.JoinPath("companies")
	if criteria.Batch != "" {
		q := dirURL.Query()
		q.Set("batch", criteria.Batch)
		dirURL.RawQuery = q.Encode()
	}

	page, err := l.source.Fetch(ctx, dirURL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch directory: %w", err)
	}
	profiles, err := l.profileLinks(page, criteria.Limit)
	if err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	l.logger.Debug().Int("profiles", len(profiles)).Str("batch", criteria.Batch).Msg("directory listed")

	found := make([]*domain.Target, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profileFetchers)
	for i, profile := range profiles {
		g.Go(func() error {
			t, err := l.resolve(gctx, profile)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l.logger.Warn().Err(err).Str("profile", profile).Msg("skipping profile")
				return nil
			}
			found[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	targets := make([]domain.Target, 0, len(found))
	for _, t := range found {
		if t != nil {
			targets = append(targets, *t)
		}
	}
	return targets, nil
}

// profileLinks returns unique /companies/<slug> URLs in page order.
func (l *Lister) profileLinks(page []byte, limit int) ([]string, error) {
	links, err := pagesummary.Links(bytes.NewReader(page), l.baseURL)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, link := range links {
		if limit > 0 && len(out) >= limit {
			break
		}
		u, err := url.Parse(link)
		if err != nil || u.Host != l.baseURL.Host {
			continue
		}
		dir, slug := path.Split(strings.TrimRight(u.Path, "/"))
		if dir != "/companies/" || slug == "" {
			continue
		}
		u.RawQuery, u.Fragment = "", ""
		key := u.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out, nil
}

// resolve finds the first outbound link on a profile page.
func (l *Lister) resolve(ctx context.Context, profile string) (*domain.Target, error) {
	page, err := l.source.Fetch(ctx, profile)
	if err != nil {
		return nil, err
	}
	links, err := pagesummary.Links(bytes.NewReader(page), l.baseURL)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if !external(link, l.baseURL.Host) {
			continue
		}
		website, err := domain.NormalizeURL(link)
		if err != nil {
			continue
		}
		return &domain.Target{Name: path.Base(profile), Website: website}, nil
	}
	return nil, fmt.Errorf("no website on %s", profile)
}

func external(link, directoryHost string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if u.Host == directoryHost || strings.HasSuffix(host, "ycombinator.com") {
		return false
	}
	return !strings.Contains(host, "linkedin")
}
