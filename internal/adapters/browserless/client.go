package browserless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"roastbot/internal/core/ports"
	"roastbot/internal/pagesummary"
)

const (
	defaultBaseURL    = "https://production-sfo.browserless.io"
	navigationTimeout = 30 * time.Second
	viewportWidth     = 1280
	viewportHeight    = 720
)

// Client implements ports.Extractor and ports.PageSource on top of a remote
// headless browser exposing the browserless REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient creates a new Client. An empty baseURL selects the hosted service.
func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if token == "" {
		return nil, errors.New("browserless token not set")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int64  `json:"timeout"`
}

type viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type contentRequest struct {
	URL         string      `json:"url"`
	GotoOptions gotoOptions `json:"gotoOptions"`
}

type screenshotOptions struct {
	Type     string `json:"type"`
	FullPage bool   `json:"fullPage"`
}

type screenshotRequest struct {
	URL         string            `json:"url"`
	GotoOptions gotoOptions       `json:"gotoOptions"`
	Options     screenshotOptions `json:"options"`
	Viewport    viewport          `json:"viewport"`
}

func defaultGoto() gotoOptions {
	return gotoOptions{WaitUntil: "domcontentloaded", Timeout: navigationTimeout.Milliseconds()}
}

// Fetch returns the rendered HTML of pageURL.
func (c *Client) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return c.call(ctx, "/content", contentRequest{URL: pageURL, GotoOptions: defaultGoto()})
}

// Screenshot captures the first viewport of pageURL as PNG.
func (c *Client) Screenshot(ctx context.Context, pageURL string) ([]byte, error) {
	return c.call(ctx, "/screenshot", screenshotRequest{
		URL:         pageURL,
		GotoOptions: defaultGoto(),
		Options:     screenshotOptions{Type: "png"},
		Viewport:    viewport{Width: viewportWidth, Height: viewportHeight},
	})
}

// Extract loads pageURL once for its content and once for a screenshot, in
// parallel. A failed screenshot is logged and does not fail the extraction.
// Each call is a single navigation, so maxSteps is not consulted.
func (c *Client) Extract(ctx context.Context, pageURL string, _ int) (*ports.Extraction, error) {
	var (
		html []byte
		shot []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		html, err = c.Fetch(gctx, pageURL)
		return err
	})
	g.Go(func() error {
		var err error
		shot, err = c.Screenshot(gctx, pageURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", pageURL).Msg("screenshot failed")
			shot = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", pageURL, err)
	}

	summary, err := pagesummary.ParseBytes(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return &ports.Extraction{Summary: summary, Screenshot: shot}, nil
}

func (c *Client) call(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s%s?token=%s", c.baseURL, path, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, c.redact(path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.redact(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("browserless %s: status %d, body: %s", path, resp.StatusCode, string(respBody))
	}
	return io.ReadAll(resp.Body)
}

// redact drops the query string, and with it the token, from transport
// errors. Their text ends up in outcomes served over the API.
func (c *Client) redact(path string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: c.baseURL + path, Err: uerr.Err}
	}
	if strings.Contains(err.Error(), c.token) {
		return fmt.Errorf("browserless %s: request failed", path)
	}
	return err
}
