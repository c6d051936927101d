package domain

import (
	"errors"
	"testing"
)

func TestNewTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Target
		wantErr bool
	}{
		{name: "full url", raw: "https://acme.io/pricing", want: Target{Name: "acme.io", Website: "https://acme.io/pricing"}},
		{name: "bare host", raw: "  acme.io ", want: Target{Name: "acme.io", Website: "https://acme.io"}},
		{name: "http kept", raw: "http://www.acme.io", want: Target{Name: "www.acme.io", Website: "http://www.acme.io"}},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "ftp", raw: "ftp://acme.io", wantErr: true},
		{name: "no host", raw: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTarget(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseStyle(t *testing.T) {
	if s, err := ParseStyle(""); err != nil || s != StyleSpicy {
		t.Fatalf("empty style = %q, %v", s, err)
	}
	if s, err := ParseStyle("deadpan"); err != nil || s != StyleDeadpan {
		t.Fatalf("deadpan = %q, %v", s, err)
	}
	if _, err := ParseStyle("savage"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestPageSummaryHasContent(t *testing.T) {
	if (PageSummary{CTA: "Sign up"}).HasContent() {
		t.Fatal("cta alone should not count as content")
	}
	if !(PageSummary{Hero: "Ship faster"}).HasContent() {
		t.Fatal("hero should count as content")
	}
}
