package mcptools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/config"
	"github.com/commontrace/tracehook/internal/kb"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *kb.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return kb.New(&config.API{BaseURL: srv.URL, APIKey: "test-key"})
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchToolRequiresQuery(t *testing.T) {
	tool := NewSearchTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid arguments")
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("expected error result for missing query")
	}
}

func TestSearchToolSplitsTags(t *testing.T) {
	var gotTags []string
	tool := NewSearchTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tags []string `json:"tags"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotTags = body.Tags
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []kb.Trace{{ID: "t1", Title: "fix", SolutionText: "do x"}},
		})
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "pool exhausted",
		"tags":  "python, asyncpg ,",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(res))
	}
	if len(gotTags) != 2 || gotTags[0] != "python" || gotTags[1] != "asyncpg" {
		t.Errorf("tags = %v, want [python asyncpg]", gotTags)
	}
	if !strings.Contains(resultText(res), "t1") {
		t.Errorf("result missing trace id: %s", resultText(res))
	}
}

func TestSearchToolEmptyResults(t *testing.T) {
	tool := NewSearchTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": []kb.Trace{}})
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "anything"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "No traces found") {
		t.Errorf("result = %s", resultText(res))
	}
}

func TestGetToolRequiresID(t *testing.T) {
	tool := NewGetTool(newTestClient(t, nil))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("expected error result for missing trace_id")
	}
}

func TestGetToolFormatsTrace(t *testing.T) {
	tool := NewGetTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/traces/t42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(kb.Trace{
			ID:           "t42",
			Title:        "Fix the thing",
			ContextText:  "it was broken",
			SolutionText: "turn it off and on",
			Tags:         []string{"ops"},
		})
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"trace_id": "t42"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	for _, want := range []string{"Fix the thing", "it was broken", "turn it off and on", "ops"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q: %s", want, text)
		}
	}
}

func TestContributeToolRequiresAllFields(t *testing.T) {
	tool := NewContributeTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid arguments")
	}))

	cases := []map[string]interface{}{
		{"context": "c", "solution": "s"},
		{"title": "t", "solution": "s"},
		{"title": "t", "context": "c"},
	}
	for _, args := range cases {
		res, err := tool.Handle(context.Background(), makeReq(args))
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if !res.IsError {
			t.Errorf("expected error result for args %v", args)
		}
	}
}

func TestContributeToolReturnsID(t *testing.T) {
	tool := NewContributeTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body kb.ContributeRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Title != "t" || body.SolutionText != "s" {
			t.Errorf("payload = %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "new-id"})
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"title": "t", "context": "c", "solution": "s",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "new-id") {
		t.Errorf("result = %s", resultText(res))
	}
}

func TestVoteToolValidatesDirection(t *testing.T) {
	tool := NewVoteTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid arguments")
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"trace_id": "t1", "direction": "sideways",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("expected error result for bad direction")
	}
}

func TestVoteToolUp(t *testing.T) {
	tool := NewVoteTool(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/t1/vote") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"trace_id": "t1", "direction": "up",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Errorf("unexpected error result: %s", resultText(res))
	}
}

func TestAmendToolRequiresSolution(t *testing.T) {
	tool := NewAmendTool(newTestClient(t, nil))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"trace_id": "t1"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("expected error result for missing solution")
	}
}

func TestServerRegistersTools(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewServer(cfg, "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestToolDefinitions(t *testing.T) {
	client := kb.New(&config.API{BaseURL: "http://localhost:0"})
	cases := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewSearchTool(client).Definition(), "search_traces", []string{"query"}},
		{NewGetTool(client).Definition(), "get_trace", []string{"trace_id"}},
		{NewContributeTool(client).Definition(), "contribute_trace", []string{"title", "context", "solution"}},
		{NewVoteTool(client).Definition(), "vote_trace", []string{"trace_id", "direction"}},
		{NewTagsTool(client).Definition(), "list_tags", nil},
		{NewAmendTool(client).Definition(), "amend_trace", []string{"trace_id", "solution"}},
	}
	for _, tc := range cases {
		if tc.def.Name != tc.name {
			t.Errorf("tool name = %q, want %q", tc.def.Name, tc.name)
		}
		for _, param := range tc.required {
			if _, ok := tc.def.InputSchema.Properties[param]; !ok {
				t.Errorf("%s missing parameter %q", tc.name, param)
			}
		}
	}
}
