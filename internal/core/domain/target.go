package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// NewTarget builds a Target from a user supplied URL. URLs without a scheme
// are assumed to be https. The name defaults to the host.
func NewTarget(raw string) (Target, error) {
	website, err := NormalizeURL(raw)
	if err != nil {
		return Target{}, err
	}
	return Target{Name: Slug(website), Website: website}, nil
}

// NormalizeURL trims raw and makes sure it is an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidRequest)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidRequest, raw)
	}
	return u.String(), nil
}

// Slug returns the host part of website, used to key artifacts.
func Slug(website string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(website, "https://"), "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "unknown"
	}
	return s
}

// Artifact file names within a target's directory.
const (
	ScreenshotFile = "step-1.png"
	TraceFile      = "trace.json"
)

// ArtifactKey returns the storage key of file for one target of a run.
func ArtifactKey(runID, slug, file string) string {
	return "runs/" + runID + "/" + slug + "/" + file
}
