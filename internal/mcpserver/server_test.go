package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/metrics"
	"github.com/starford/othala/internal/resolver"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/testutil"
	"github.com/starford/othala/internal/vaultservice"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	db := testutil.TestDB(t)
	vaultDir, provider := testutil.TestVault(t)
	res := resolver.New(nil)
	c := cache.New(1 << 20)
	mtr := metrics.New()
	eng := search.New(db, c, mtr, search.Options{Fuzzy: true})
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ix := indexer.New(db, provider, res, c, mtr, logger)
	svc := vaultservice.New(db, provider, res, eng, ix)

	return New(svc), vaultDir
}

func syncVault(t *testing.T, srv *Server) {
	t.Helper()
	if _, err := srv.svc.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error
	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "resolve_note":
		result, err = srv.resolveNote(ctx, req)
	case "get_note":
		result, err = srv.getNote(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "rebuild_index":
		result, err = srv.rebuildIndex(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchNotesTool(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteNote(t, vaultDir, "a.md", "# Grocery List\n\nmilk and eggs")
	testutil.WriteNote(t, vaultDir, "b.md", "# Other\n\nnothing relevant")
	syncVault(t, srv)

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "grocery"})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var res search.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if res.TotalMatched != 1 || res.Hits[0].Document.Path != "a.md" {
		t.Errorf("result = %+v", res)
	}
}

func TestSearchNotesToolWithFilter(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteNote(t, vaultDir, "projects/p.md", "# P\n\ntopic words")
	testutil.WriteNote(t, vaultDir, "journal/j.md", "# J\n\ntopic words")
	syncVault(t, srv)

	r := callTool(t, srv, "search_notes", map[string]interface{}{
		"query":  "topic",
		"filter": `{"folders": ["projects"]}`,
	})
	var res search.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if res.TotalMatched != 1 || res.Hits[0].Document.Path != "projects/p.md" {
		t.Errorf("filtered result = %+v", res)
	}

	bad := callTool(t, srv, "search_notes", map[string]interface{}{
		"filter": `{"tag_mode": "bogus"}`,
	})
	if !bad.IsError {
		t.Error("invalid filter must produce a tool error")
	}
}

func TestResolveNoteTool(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteNote(t, vaultDir, "projects/draft.md", "---\ntitle: Draft\n---\n\none")
	testutil.WriteNote(t, vaultDir, "journal/draft.md", "---\ntitle: Draft\n---\n\ntwo")
	syncVault(t, srv)

	r := callTool(t, srv, "resolve_note", map[string]interface{}{"title": "Draft"})
	var res vaultservice.TitleResolution
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if !res.Ambiguous || len(res.Candidates) != 2 {
		t.Errorf("resolution = %+v", res)
	}
}

func TestReadAndGetNoteTools(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteNote(t, vaultDir, "note.md", "# Note\n\nhello body")
	syncVault(t, srv)

	read := callTool(t, srv, "read_note", map[string]interface{}{"path": "note.md"})
	if !strings.Contains(resultText(read), "hello body") {
		t.Errorf("read_note = %q", resultText(read))
	}

	get := callTool(t, srv, "get_note", map[string]interface{}{"path": "note.md"})
	var detail vaultservice.DocumentDetail
	if err := json.Unmarshal([]byte(resultText(get)), &detail); err != nil {
		t.Fatalf("get_note not JSON: %v", err)
	}
	if detail.Document.Title != "Note" || detail.Content != "" {
		t.Errorf("detail = %+v", detail)
	}

	missing := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !missing.IsError {
		t.Error("missing note must produce a tool error")
	}
}

func TestRebuildIndexTool(t *testing.T) {
	srv, vaultDir := testServer(t)
	testutil.WriteNote(t, vaultDir, "a.md", "# A\n\nbody")

	r := callTool(t, srv, "rebuild_index", nil)
	if r.IsError {
		t.Fatalf("rebuild error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "1 documents") {
		t.Errorf("rebuild output = %q", resultText(r))
	}
}
