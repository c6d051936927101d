package domain

import (
	"fmt"
	"time"
)

// Style selects the tone of a generated critique.
type Style string

const (
	StyleSpicy   Style = "spicy"
	StyleKind    Style = "kind"
	StyleDeadpan Style = "deadpan"
)

// ParseStyle validates s. An empty string selects the default spicy tone.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case "":
		return StyleSpicy, nil
	case StyleSpicy, StyleKind, StyleDeadpan:
		return Style(s), nil
	default:
		return "", fmt.Errorf("%w: unknown style %q", ErrInvalidRequest, s)
	}
}

// Source names where a run's targets come from.
type Source string

const (
	SourceYC     Source = "yc"
	SourceCustom Source = "custom"
	SourceFile   Source = "file" // local YAML target list, CLI only
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunPending  RunState = "pending"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunFailed   RunState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunFinished || s == RunFailed
}

// OutcomeStatus is the per-target result status.
type OutcomeStatus string

const (
	OutcomeDone   OutcomeStatus = "done"
	OutcomeFailed OutcomeStatus = "failed"
)

// Per-target failure categories carried in Outcome.ErrorReason.
const (
	ReasonExtraction = "extraction_error"
	ReasonNoContent  = "no_content"
	ReasonGeneration = "generation_error"
)

// Target is one company to roast. Identity is its position in the run queue.
type Target struct {
	Name    string `json:"name" yaml:"name"`
	Website string `json:"website" yaml:"website"`
}

// PageSummary is the structured data pulled from a landing page.
type PageSummary struct {
	Title string `json:"title"`
	Hero  string `json:"hero"`
	CTA   string `json:"cta"`
}

// HasContent reports whether the page yielded anything worth critiquing.
func (p PageSummary) HasContent() bool {
	return p.Title != "" || p.Hero != ""
}

// Outcome is the terminal result of processing one target.
type Outcome struct {
	Index         int           `json:"index"`
	Target        Target        `json:"target"`
	Status        OutcomeStatus `json:"status"`
	Roast         string        `json:"roast,omitempty"`
	ScreenshotURL string        `json:"screenshot_url,omitempty"`
	ErrorReason   string        `json:"error_reason,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty"`
	Summary       *PageSummary  `json:"summary,omitempty"`
	Attempts      int           `json:"attempts"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// Totals aggregates outcome counts for a run.
type Totals struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// YCParams filters the YC company directory.
type YCParams struct {
	Batch string `json:"batch,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// CustomParams carries an explicit URL list.
type CustomParams struct {
	URLs []string `json:"urls"`
}

// FileParams points at a YAML target list.
type FileParams struct {
	Path string `json:"path"`
}

// RunRequest is the input for creating a run.
type RunRequest struct {
	Source      Source       `json:"source"`
	YC          YCParams     `json:"yc"`
	Custom      CustomParams `json:"custom"`
	File        FileParams   `json:"-"`
	Style       string       `json:"style,omitempty"`
	MaxSteps    int          `json:"max_steps,omitempty"`
	Concurrency int          `json:"concurrency,omitempty"`
}

// RunTicket is returned when a run is accepted.
type RunTicket struct {
	RunID     string   `json:"run_id"`
	Status    RunState `json:"status"`
	StreamURL string   `json:"stream_url"`
}

// RunSnapshot is a consistent copy of a run's state.
type RunSnapshot struct {
	ID          string     `json:"run_id"`
	Source      Source     `json:"source"`
	Style       Style      `json:"style"`
	MaxSteps    int        `json:"max_steps"`
	Concurrency int        `json:"concurrency"`
	State       RunState   `json:"status"`
	Targets     []Target   `json:"targets,omitempty"`
	Outcomes    []Outcome  `json:"outcomes,omitempty"`
	Totals      Totals     `json:"totals"`
	Cancelled   bool       `json:"cancelled"`
	Error       string     `json:"error_message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"completed_at,omitempty"`
}
