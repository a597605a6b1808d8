package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/commontrace/tracehook/internal/config"
)

func newTestClient(url string) *Client {
	return New(&config.API{BaseURL: url, APIKey: "test-key", Timeout: "3s"})
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/traces/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing API key header")
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["q"] != "python asyncio" {
			t.Errorf("q = %v", body["q"])
		}
		if body["limit"] != float64(3) {
			t.Errorf("limit = %v", body["limit"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []Trace{{ID: "t-1", Title: "Event loop pitfalls"}},
		})
	}))
	defer srv.Close()

	traces, err := newTestClient(srv.URL).Search(context.Background(), "python asyncio", []string{"python"}, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(traces) != 1 || traces[0].ID != "t-1" {
		t.Errorf("traces = %+v", traces)
	}
}

func TestSearchCarriesProjectContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Context ProjectContext `json:"context"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Context.Language != "go" || body.Context.SessionCount != 7 {
			t.Errorf("context = %+v", body.Context)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": []Trace{}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "q", nil, &ProjectContext{Language: "go", SessionCount: 7})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestContribute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/traces" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "t-99"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).Contribute(context.Background(), ContributeRequest{
		Title: "Fix flaky socket test", SolutionText: "Pin the port",
	})
	if err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if id != "t-99" {
		t.Errorf("id = %s", id)
	}
}

func TestContributeRequiresTitleAndSolution(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	if _, err := c.Contribute(context.Background(), ContributeRequest{Title: "x"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestVoteDirectionValidated(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	if err := c.Vote(context.Background(), "t-1", "sideways", ""); err == nil {
		t.Error("expected direction validation error")
	}
}

func TestAPIErrorSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid key"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListTags(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid key") {
		t.Errorf("err = %v", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("COMMONTRACE_API_KEY", "")
	c := New(&config.API{BaseURL: "http://unused.invalid"})
	if c.Available() {
		t.Fatal("client should not be available without a key")
	}
	if _, err := c.Search(context.Background(), "q", nil, nil); err == nil {
		t.Error("expected error without API key")
	}
}

func TestStalledServerTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(&config.API{BaseURL: srv.URL, APIKey: "k", Timeout: "50ms"})
	start := time.Now()
	_, err := c.Search(context.Background(), "q", nil, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, deadline not applied", elapsed)
	}
}

func TestFormatTraces(t *testing.T) {
	out := FormatTraces([]Trace{
		{ID: "t-1", Title: "DNS caching gotcha", SolutionText: "Set the TTL explicitly"},
		{Title: ""},
	})
	if !strings.Contains(out, "1. [DNS caching gotcha]") {
		t.Errorf("output missing first entry: %q", out)
	}
	if !strings.Contains(out, "2. [Untitled]") {
		t.Errorf("output missing untitled fallback: %q", out)
	}
	if !strings.Contains(out, "(trace ID: t-1)") {
		t.Errorf("output missing trace id: %q", out)
	}
}
