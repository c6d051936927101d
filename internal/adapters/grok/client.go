// Package grok generates roasts through an OpenAI-compatible chat
// completions endpoint (xAI Grok by default).
package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"roastbot/internal/core/domain"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"
	defaultModel   = "grok-3"
	maxTokens      = 80
	maxRoastRunes  = 180
)

const systemPrompt = `You are "LandingPageRoaster", a witty but constructive copy editor.
Your job: write ONE short sentence that roasts a startup's LANDING PAGE ONLY.

Rules:
- Focus purely on the page UX/copy: hero clarity, value prop, visual hierarchy, CTA, contrast/legibility, nav clutter, jargon.
- No attacks on people, founders, or sensitive attributes.
- No company-level accusations (e.g., "scam", "fraud", "stealing data").
- No profanity or slurs. Be playful, not mean.
- Don't invent facts beyond the provided summary.
- Output MUST be at most 180 characters and exactly one sentence (no lists, no line breaks).
- Add ONE tasteful emoji max if it strengthens the punch; otherwise none.

Tone presets:
- spicy: playful jab with edge; still professional.
- kind: gentle nudge, encouraging.
- deadpan: dry, minimal, slightly ironic.

Return ONLY the sentence, no preamble, no quotes.`

const userTemplate = `Write a one-sentence roast of this startup's LANDING PAGE using the tone: %s.
Base it ONLY on this extracted summary (title/hero/cta may be empty strings):

Summary JSON:
%s

Remember: at most 180 chars; exactly one sentence; landing page only.`

// Config configures the Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client implements ports.Critic.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("grok api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Temperature returns the sampling temperature used for style.
func Temperature(style domain.Style) float64 {
	switch style {
	case domain.StyleSpicy:
		return 0.9
	case domain.StyleKind:
		return 0.6
	default:
		return 0.7
	}
}

// Critique asks the model for a one-sentence roast of summary. The prompt is
// single-shot, so maxSteps is not consulted.
func (c *Client) Critique(ctx context.Context, summary domain.PageSummary, style domain.Style, _ int) (string, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: Temperature(style),
		MaxTokens:   maxTokens,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userTemplate, style, summaryJSON)},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completion: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return Tidy(out.Choices[0].Message.Content), nil
}

// Tidy folds text onto one line, caps it at 180 characters and trims
// repeated trailing punctuation.
func Tidy(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > maxRoastRunes {
		runes := []rune(text)
		text = strings.TrimRight(string(runes[:maxRoastRunes-3]), " ") + "…"
	}
	for strings.HasSuffix(text, "..") || strings.HasSuffix(text, "!!") || strings.HasSuffix(text, "??") {
		text = text[:len(text)-1]
	}
	return text
}
