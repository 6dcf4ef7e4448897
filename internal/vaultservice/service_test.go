package vaultservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/metrics"
	"github.com/starford/othala/internal/query"
	"github.com/starford/othala/internal/resolver"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/testutil"
)

func testService(t *testing.T) (*Service, string) {
	t.Helper()
	db := testutil.TestDB(t)
	vaultDir, provider := testutil.TestVault(t)
	res := resolver.New(nil)
	c := cache.New(1 << 20)
	mtr := metrics.New()
	eng := search.New(db, c, mtr, search.Options{Fuzzy: true})
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ix := indexer.New(db, provider, res, c, mtr, logger)
	return New(db, provider, res, eng, ix), vaultDir
}

func TestScanThenSearch(t *testing.T) {
	svc, vaultDir := testService(t)
	testutil.WriteNote(t, vaultDir, "a.md", "# Recipes\n\npasta with garlic")

	if _, err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	res, err := svc.Search(context.Background(), "pasta", query.FilterSpec{}, "", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalMatched != 1 || res.Hits[0].Document.Title != "Recipes" {
		t.Errorf("search result = %+v", res)
	}
}

func TestResolveTitleOutcomes(t *testing.T) {
	svc, vaultDir := testService(t)
	testutil.WriteNote(t, vaultDir, "projects/draft.md", "---\ntitle: Draft\n---\n\none")
	testutil.WriteNote(t, vaultDir, "journal/draft.md", "---\ntitle: Draft\n---\n\ntwo")
	testutil.WriteNote(t, vaultDir, "solo.md", "---\ntitle: Solo\n---\n\nthree")
	if _, err := svc.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	found, err := svc.ResolveTitle(context.Background(), "Solo")
	if err != nil {
		t.Fatal(err)
	}
	if !found.Found || found.Document == nil || found.Document.Path != "solo.md" {
		t.Errorf("found = %+v", found)
	}

	amb, err := svc.ResolveTitle(context.Background(), "Draft")
	if err != nil {
		t.Fatal(err)
	}
	if !amb.Ambiguous || len(amb.Candidates) != 2 {
		t.Errorf("ambiguous = %+v", amb)
	}

	qualified, err := svc.ResolveTitle(context.Background(), amb.Candidates[0])
	if err != nil {
		t.Fatal(err)
	}
	if !qualified.Found {
		t.Errorf("qualified candidate should resolve: %+v", qualified)
	}

	miss, err := svc.ResolveTitle(context.Background(), "Sol")
	if err != nil {
		t.Fatal(err)
	}
	if miss.Found || miss.Ambiguous {
		t.Errorf("miss = %+v", miss)
	}
	if len(miss.Similar) == 0 {
		t.Error("miss should carry fuzzy suggestions")
	}
}

func TestGetMetadataAndReadDocument(t *testing.T) {
	svc, vaultDir := testService(t)
	testutil.WriteNote(t, vaultDir, "linked.md", "# Linked\n\nbody")
	testutil.WriteNote(t, vaultDir, "source.md", "# Source\n\nsee [[Linked]]")
	if _, err := svc.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	meta, err := svc.GetDocumentMetadata(context.Background(), "source.md")
	if err != nil {
		t.Fatalf("GetDocumentMetadata: %v", err)
	}
	if meta.Content != "" {
		t.Error("metadata must not carry content")
	}
	if len(meta.Outgoing) != 1 || !meta.Outgoing[0].Resolved() {
		t.Errorf("outgoing = %+v", meta.Outgoing)
	}

	full, err := svc.ReadDocument(context.Background(), "source.md")
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if full.Content == "" {
		t.Error("ReadDocument must return content")
	}

	incoming, err := svc.GetDocumentMetadata(context.Background(), "linked.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming.Incoming) != 1 {
		t.Errorf("incoming = %+v", incoming.Incoming)
	}

	if _, err := svc.GetDocumentMetadata(context.Background(), "missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing doc: err = %v, want ErrNotFound", err)
	}
}

func TestNotifyFlow(t *testing.T) {
	svc, vaultDir := testService(t)
	testutil.WriteNote(t, vaultDir, "n.md", "# N\n\nbody")

	if err := svc.NotifyChanged(context.Background(), "n.md"); err != nil {
		t.Fatalf("NotifyChanged: %v", err)
	}
	if n, _ := svc.DocumentCount(context.Background()); n != 1 {
		t.Errorf("count = %d", n)
	}
	if err := svc.NotifyRemoved(context.Background(), "n.md"); err != nil {
		t.Fatalf("NotifyRemoved: %v", err)
	}
	if n, _ := svc.DocumentCount(context.Background()); n != 0 {
		t.Errorf("count after removal = %d", n)
	}
}

func TestRebuildIndexThroughService(t *testing.T) {
	svc, vaultDir := testService(t)
	testutil.WriteNote(t, vaultDir, "n.md", "# N\n\nbody")

	if err := svc.RebuildIndex(context.Background()); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if n, _ := svc.DocumentCount(context.Background()); n != 1 {
		t.Errorf("count after rebuild = %d", n)
	}
}
