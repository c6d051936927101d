// Package wire defines the JSON records streamed to observers of a run.
package wire

import (
	"encoding/json"
	"fmt"

	"roastbot/internal/core/domain"
)

// Company identifies the target an outcome belongs to.
type Company struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// OutcomeRecord is the stream form of domain.OutcomeEvent.
type OutcomeRecord struct {
	Type          string              `json:"type"`
	Seq           uint64              `json:"seq"`
	RunID         string              `json:"run_id"`
	Index         int                 `json:"index"`
	Company       Company             `json:"company"`
	Roast         string              `json:"roast,omitempty"`
	ScreenshotURL string              `json:"screenshot_url,omitempty"`
	Status        string              `json:"status"`
	ErrorReason   string              `json:"error_reason,omitempty"`
	Summary       *domain.PageSummary `json:"summary,omitempty"`
}

// TerminalRecord is the stream form of domain.TerminalEvent.
type TerminalRecord struct {
	Type        string `json:"type"`
	Seq         uint64 `json:"seq"`
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	Total       int    `json:"total"`
	Done        int    `json:"done"`
	Failed      int    `json:"failed"`
	Cancelled   bool   `json:"cancelled"`
	ErrorReason string `json:"error_reason,omitempty"`
}

// Record converts ev into its stream form.
func Record(ev domain.Event) (any, error) {
	switch e := ev.(type) {
	case domain.OutcomeEvent:
		o := e.Outcome
		return OutcomeRecord{
			Type:          string(domain.EventOutcome),
			Seq:           e.Seq,
			RunID:         e.RunID,
			Index:         o.Index,
			Company:       Company{Name: companyName(o), Website: o.Target.Website},
			Roast:         o.Roast,
			ScreenshotURL: o.ScreenshotURL,
			Status:        string(o.Status),
			ErrorReason:   o.ErrorReason,
			Summary:       o.Summary,
		}, nil
	case domain.TerminalEvent:
		return TerminalRecord{
			Type:        string(domain.EventTerminal),
			Seq:         e.Seq,
			RunID:       e.RunID,
			Status:      string(e.State),
			Total:       e.Totals.Total,
			Done:        e.Totals.Done,
			Failed:      e.Totals.Failed,
			Cancelled:   e.Cancelled,
			ErrorReason: e.Error,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}
}

// companyName prefers the page title of a done outcome over the target name.
func companyName(o domain.Outcome) string {
	if o.Status == domain.OutcomeDone && o.Summary != nil && o.Summary.Title != "" {
		return o.Summary.Title
	}
	return o.Target.Name
}

// Marshal encodes ev as a JSON stream record.
func Marshal(ev domain.Event) ([]byte, error) {
	rec, err := Record(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}
