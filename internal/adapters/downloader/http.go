package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"roastbot/internal/core/ports"
	"roastbot/internal/pagesummary"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxPageBytes     = 5 << 20
)

type redirectLimitKey struct{}

// HTTPDownloader implements ports.PageSource and ports.Extractor with plain
// HTTP GETs. It renders no JavaScript and takes no screenshots.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &HTTPDownloader{userAgent: defaultUserAgent}
	d.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			limit, ok := req.Context().Value(redirectLimitKey{}).(int)
			if !ok {
				limit = 10
			}
			if len(via) > limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		},
	}
	return d
}

// Fetch downloads the HTML of pageURL.
func (d *HTTPDownloader) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return body, nil
}

// Extract fetches pageURL and parses its summary. maxSteps caps the number
// of redirects followed.
func (d *HTTPDownloader) Extract(ctx context.Context, pageURL string, maxSteps int) (*ports.Extraction, error) {
	if maxSteps > 0 {
		ctx = context.WithValue(ctx, redirectLimitKey{}, maxSteps)
	}
	body, err := d.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	summary, err := pagesummary.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &ports.Extraction{Summary: summary}, nil
}
