package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T, excluded ...string) (string, *FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, excluded)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListFingerprintsMarkdownOnly(t *testing.T) {
	dir, fs := testFS(t)
	write(t, dir, "a.md", "alpha")
	write(t, dir, "sub/b.md", "beta")
	write(t, dir, "image.png", "not markdown")

	metas, perrs, err := fs.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(perrs) != 0 {
		t.Fatalf("unexpected path errors: %v", perrs)
	}
	if len(metas) != 2 {
		t.Fatalf("metas = %d, want 2", len(metas))
	}
	for _, m := range metas {
		if m.Fingerprint == "" {
			t.Errorf("missing fingerprint for %s", m.Path)
		}
		if filepath.Ext(m.Path) != ".md" {
			t.Errorf("non-markdown file listed: %s", m.Path)
		}
	}
}

func TestListFingerprintTracksContent(t *testing.T) {
	dir, fs := testFS(t)
	write(t, dir, "n.md", "one")

	before, _, err := fs.List("")
	if err != nil {
		t.Fatal(err)
	}
	write(t, dir, "n.md", "two")
	after, _, err := fs.List("")
	if err != nil {
		t.Fatal(err)
	}
	if before[0].Fingerprint == after[0].Fingerprint {
		t.Error("fingerprint must change with content")
	}

	write(t, dir, "n.md", "one")
	again, _, err := fs.List("")
	if err != nil {
		t.Fatal(err)
	}
	if before[0].Fingerprint != again[0].Fingerprint {
		t.Error("identical content must reproduce the fingerprint")
	}
}

func TestExcludedFoldersInvisible(t *testing.T) {
	dir, fs := testFS(t, ".obsidian", "templates")
	write(t, dir, "visible.md", "body")
	write(t, dir, ".obsidian/cache.md", "body")
	write(t, dir, "templates/daily.md", "body")

	metas, _, err := fs.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].Path != "visible.md" {
		t.Errorf("metas = %+v, want only visible.md", metas)
	}

	if !fs.Excluded(".obsidian/cache.md") || !fs.Excluded("templates") {
		t.Error("Excluded should cover configured prefixes")
	}
	if fs.Excluded("visible.md") {
		t.Error("Excluded must not cover regular paths")
	}
}

func TestReadRejectsTraversal(t *testing.T) {
	_, fs := testFS(t)
	if _, err := fs.Read("../outside.md"); err == nil {
		t.Error("path traversal must be rejected")
	}
	if _, err := fs.Read("/etc/passwd"); err == nil {
		t.Error("absolute paths must be rejected")
	}
}

func TestWriteAtomicRoundTrip(t *testing.T) {
	dir, fs := testFS(t)
	if err := fs.Write("deep/new.md", []byte("content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := fs.Read("deep/new.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("round trip = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "deep"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory entries = %d, want 1", len(entries))
	}
}
