package ycdirectory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
)

type fakeSource struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeSource) Fetch(_ context.Context, pageURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, pageURL)
	page, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("404 %s", pageURL)
	}
	return []byte(page), nil
}

const directory = `<html><body>
<a href="/companies/acme">Acme</a>
<a href="/companies/acme">Acme again</a>
<a href="/companies/industry/fintech">Fintech</a>
<a href="/companies/broken">Broken</a>
<a href="/companies/beta">Beta</a>
<a href="/companies/ghost">Ghost</a>
<a href="/jobs">Jobs</a>
</body></html>`

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[string]string{
		"http://yc.test/companies":           directory,
		"http://yc.test/companies?batch=S24": directory,
		"http://yc.test/companies/acme": `<a href="/companies">Back</a>
<a href="https://www.linkedin.com/company/acme">LinkedIn</a>
<a href="https://acme.io">acme.io</a>`,
		"http://yc.test/companies/beta":  `<a href="https://beta.dev/">beta.dev</a>`,
		"http://yc.test/companies/ghost": `<a href="https://www.ycombinator.com/jobs">Jobs</a>`,
	}}
}

func TestList(t *testing.T) {
	src := newFakeSource()
	l, err := NewLister(src, "http://yc.test", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	got, err := l.List(context.Background(), ports.ListCriteria{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.Target{
		{Name: "acme", Website: "https://acme.io"},
		{Name: "beta", Website: "https://beta.dev/"},
	}
	if len(got) != len(want) {
		t.Fatalf("targets = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("target %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestListLimitAndBatch(t *testing.T) {
	src := newFakeSource()
	l, _ := NewLister(src, "http://yc.test/", zerolog.Nop())

	got, err := l.List(context.Background(), ports.ListCriteria{Batch: "S24", Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Name != "acme" {
		t.Fatalf("targets = %+v", got)
	}
	if src.fetched[0] != "http://yc.test/companies?batch=S24" {
		t.Fatalf("directory url = %q", src.fetched[0])
	}
}

func TestListDirectoryError(t *testing.T) {
	l, _ := NewLister(&fakeSource{}, "http://yc.test", zerolog.Nop())
	if _, err := l.List(context.Background(), ports.ListCriteria{Limit: 5}); err == nil {
		t.Fatal("expected error when the directory cannot be fetched")
	}
}
