package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
	"roastbot/internal/metrics"
	"roastbot/internal/service"
)

type stubExtractor struct {
	gate chan struct{}
}

func (s *stubExtractor) Extract(ctx context.Context, pageURL string, _ int) (*ports.Extraction, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &ports.Extraction{Summary: domain.PageSummary{Title: pageURL, Hero: "hero"}}, nil
}

type stubCritic struct{}

func (stubCritic) Critique(context.Context, domain.PageSummary, domain.Style, int) (string, error) {
	return "Your hero is shy.", nil
}

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestAPI(t *testing.T, gate chan struct{}) (*httptest.Server, *service.Orchestrator) {
	t.Helper()
	m := metrics.New()
	proc := service.NewProcessor(&stubExtractor{gate: gate}, stubCritic{}, nil, service.ProcessorConfig{}, m, zerolog.Nop())
	orch := service.NewOrchestrator(proc, nil, service.Options{}, m, zerolog.Nop())
	srv := httptest.NewServer(Router(orch, RouterOptions{
		Metrics:      m.Handler(),
		RunRateLimit: 100,
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return fixedNow },
	}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return srv, orch
}

func postRun(t *testing.T, srv *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/run", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func createRun(t *testing.T, srv *httptest.Server, urls ...string) domain.RunTicket {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"source": "custom", "custom": map[string]any{"urls": urls}})
	resp, data := postRun(t, srv, string(body))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	var ticket domain.RunTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return ticket
}

func TestHealth(t *testing.T) {
	srv, _ := newTestAPI(t, nil)
	for path, want := range map[string]string{"/health": "healthy", "/ready": "ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		var got healthResponse
		err = json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d, err %v", path, resp.StatusCode, err)
		}
		if got.Status != want || !got.Timestamp.Equal(fixedNow) {
			t.Fatalf("%s: %+v", path, got)
		}
	}
}

func TestCreateRunInvalid(t *testing.T) {
	srv, orch := newTestAPI(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{name: "empty urls", body: `{"source":"custom","custom":{"urls":[]}}`},
		{name: "unknown style", body: `{"source":"custom","custom":{"urls":["acme.io"]},"style":"brutal"}`},
		{name: "unknown field", body: `{"source":"custom","nope":1}`},
		{name: "not json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := postRun(t, srv, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var got errorResponse
			if err := json.Unmarshal(data, &got); err != nil || got.Error != "invalid_request" {
				t.Fatalf("body = %s", data)
			}
		})
	}
	if n := orch.Registry().Len(); n != 0 {
		t.Fatalf("registry has %d runs", n)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	srv, orch := newTestAPI(t, nil)
	ticket := createRun(t, srv, "acme.io", "beta.dev")
	if ticket.Status != domain.RunRunning || ticket.StreamURL != "/stream/"+ticket.RunID {
		t.Fatalf("ticket = %+v", ticket)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := orch.Wait(ctx, ticket.RunID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	resp, err := http.Get(srv.URL + "/runs/" + ticket.RunID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap domain.RunSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != domain.RunFinished || len(snap.Outcomes) != 2 || snap.Totals.Done != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	resp2, err := http.Get(srv.URL + "/runs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var list []domain.RunSnapshot
	if err := json.NewDecoder(resp2.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, err %v", list, err)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestAPI(t, nil)
	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/runs/missing"},
		{http.MethodPost, "/runs/missing/cancel"},
		{http.MethodGet, "/stream/missing"},
	} {
		r, _ := http.NewRequest(req.method, srv.URL+req.path, nil)
		resp, err := http.DefaultClient.Do(r)
		if err != nil {
			t.Fatal(err)
		}
		var got errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound || got.Error != "not_found" {
			t.Fatalf("%s %s: status %d, body %+v", req.method, req.path, resp.StatusCode, got)
		}
	}
}

func TestCancelRun(t *testing.T) {
	gate := make(chan struct{})
	srv, orch := newTestAPI(t, gate)
	ticket := createRun(t, srv, "a.io", "b.io", "c.io", "d.io", "e.io")

	resp, err := http.Post(srv.URL+"/runs/"+ticket.RunID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := orch.Wait(ctx, ticket.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != domain.RunFinished || !snap.Cancelled || len(snap.Outcomes) >= 5 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// readStream collects records until the server closes the socket.
func readStream(t *testing.T, srv *httptest.Server, path string) ([]map[string]any, websocket.StatusCode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var records []map[string]any
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return records, websocket.CloseStatus(err)
		}
		var rec map[string]any
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		records = append(records, rec)
	}
}

func TestStreamReplay(t *testing.T) {
	srv, orch := newTestAPI(t, nil)
	ticket := createRun(t, srv, "a.io", "b.io", "c.io")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := orch.Wait(ctx, ticket.RunID); err != nil {
		t.Fatal(err)
	}

	records, status := readStream(t, srv, ticket.StreamURL)
	if status != websocket.StatusNormalClosure {
		t.Fatalf("close status = %v", status)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	for i, rec := range records[:3] {
		if rec["type"] != "outcome" || rec["status"] != "done" || rec["seq"] != float64(i+1) {
			t.Fatalf("record %d = %v", i, rec)
		}
	}
	last := records[3]
	if last["type"] != "terminal" || last["status"] != "finished" || last["total"] != float64(3) || last["done"] != float64(3) {
		t.Fatalf("terminal = %v", last)
	}

	resumed, _ := readStream(t, srv, ticket.StreamURL+"?after=2")
	if len(resumed) != 2 || resumed[0]["seq"] != float64(3) {
		t.Fatalf("resumed = %v", resumed)
	}
}

func TestStreamLive(t *testing.T) {
	gate := make(chan struct{})
	srv, _ := newTestAPI(t, gate)
	ticket := createRun(t, srv, "a.io", "b.io")

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()
	records, status := readStream(t, srv, ticket.StreamURL)
	if status != websocket.StatusNormalClosure {
		t.Fatalf("close status = %v", status)
	}
	if len(records) != 3 || records[2]["type"] != "terminal" {
		t.Fatalf("records = %v", records)
	}
}

func TestStreamBadAfter(t *testing.T) {
	srv, _ := newTestAPI(t, nil)
	ticket := createRun(t, srv, "a.io")
	resp, err := http.Get(srv.URL + ticket.StreamURL + "?after=-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestAPI(t, nil)
	createRun(t, srv, "a.io")
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "roastbot_runs_created_total 1") {
		t.Fatalf("metrics missing run counter:\n%s", body)
	}
}
