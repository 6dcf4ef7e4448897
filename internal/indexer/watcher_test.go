package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/othala/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatal(msg)
}

func startWatcher(t *testing.T, ix *Indexer, vaultDir string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ix.Watch(ctx, vaultDir)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher a moment to register directories.
	time.Sleep(100 * time.Millisecond)
}

func TestWatcherIndexesNewFile(t *testing.T) {
	ix, vaultDir, db, _, _ := testIndexer(t)
	startWatcher(t, ix, vaultDir)

	testutil.WriteNote(t, vaultDir, "watched.md", "# Watched\n\nbody")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetByPath("watched.md")
		return err == nil
	}, "new file was not indexed")
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	ix, vaultDir, db, _, _ := testIndexer(t)

	testutil.WriteNote(t, vaultDir, "doomed.md", "# Doomed\n\nbody")
	if _, err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, ix, vaultDir)

	if err := os.Remove(filepath.Join(vaultDir, "doomed.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := db.Count()
		return n == 0
	}, "deleted file was not dropped from the index")
}

func TestWatcherFollowsRename(t *testing.T) {
	ix, vaultDir, db, _, _ := testIndexer(t)

	testutil.WriteNote(t, vaultDir, "before.md", "# Before\n\nbody")
	if _, err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, ix, vaultDir)

	if err := os.Rename(
		filepath.Join(vaultDir, "before.md"),
		filepath.Join(vaultDir, "after.md"),
	); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		if _, err := db.GetByPath("before.md"); err == nil {
			return false
		}
		_, err := db.GetByPath("after.md")
		return err == nil
	}, "rename was not reconciled")
}

func TestWatcherPicksUpNewDirectory(t *testing.T) {
	ix, vaultDir, db, _, _ := testIndexer(t)
	startWatcher(t, ix, vaultDir)

	if err := os.MkdirAll(filepath.Join(vaultDir, "newdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Small pause so the directory watch is in place before the file lands.
	time.Sleep(100 * time.Millisecond)
	testutil.WriteNote(t, vaultDir, "newdir/inside.md", "# Inside\n\nbody")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetByPath("newdir/inside.md")
		return err == nil
	}, "file in new directory was not indexed")
}
