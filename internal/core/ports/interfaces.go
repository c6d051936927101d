package ports

import (
	"context"

	"roastbot/internal/core/domain"
)

// ListCriteria filters a directory listing.
type ListCriteria struct {
	Batch string // YC batch such as "S24"; empty lists all
	Limit int
	Path  string // target file, for file-backed listers
}

// Lister defines the contract for producing a run's candidate targets.
type Lister interface {
	// List returns targets in the order they should be processed.
	List(ctx context.Context, criteria ListCriteria) ([]domain.Target, error)
}

// PageSource fetches the raw HTML of a page.
type PageSource interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// Extraction is what a page extractor returns for one URL.
type Extraction struct {
	Summary    domain.PageSummary
	Screenshot []byte // PNG, may be empty
}

// Extractor defines the contract for visiting a landing page.
type Extractor interface {
	// Extract loads pageURL and returns its summary and screenshot.
	// maxSteps bounds any multi-step navigation the implementation performs.
	Extract(ctx context.Context, pageURL string, maxSteps int) (*Extraction, error)
}

// Critic defines the contract for generating a roast.
type Critic interface {
	Critique(ctx context.Context, summary domain.PageSummary, style domain.Style, maxSteps int) (string, error)
}

// ArtifactStore defines the contract for persisting run artifacts.
type ArtifactStore interface {
	// PutScreenshot stores a PNG and returns a URL that retrieves it.
	PutScreenshot(ctx context.Context, runID, slug string, data []byte) (string, error)

	// PutTrace stores the JSON trace of one target.
	PutTrace(ctx context.Context, runID, slug string, data []byte) (string, error)
}

// EventSink receives a copy of every run event after it is logged.
type EventSink interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}
