package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// How long after a rename burst before the reconciliation scan runs.
const reconcileDelay = 200 * time.Millisecond

// excluder is implemented by providers that hide folders from indexing.
type excluder interface {
	Excluded(rel string) bool
}

// Watch runs an fsnotify watcher on the vault root and feeds change
// events into the indexer until ctx is cancelled.
//
// Directories created at runtime are added to the watch list and their
// contents indexed. Rename events fire on the old path only; the entry
// is dropped immediately and a debounced reconciliation scan picks up
// the file at its new location (or wherever else the burst left disk).
func (ix *Indexer) Watch(ctx context.Context, vaultRoot string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	ix.logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			ix.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, syncErr := ix.Sync(ctx); syncErr != nil && ctx.Err() == nil {
				ix.logger.Warn("watcher: reconcile failed", slog.String("error", syncErr.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						ix.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					ix.indexNewDir(vaultRoot, absPath)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if ex, ok := ix.provider.(excluder); ok && ex.Excluded(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if idxErr := ix.NotifyChanged(rel); idxErr != nil {
					ix.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				ix.logger.Debug("watcher: indexed", slog.String("path", rel))

			case ev.Op&fsnotify.Remove != 0:
				if delErr := ix.NotifyRemoved(rel); delErr != nil {
					ix.logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				ix.logger.Debug("watcher: removed", slog.String("path", rel))

			case ev.Op&fsnotify.Rename != 0:
				if delErr := ix.NotifyRemoved(rel); delErr != nil {
					ix.logger.Warn("watcher: rename drop failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					ix.logger.Debug("watcher: rename old dropped", slog.String("path", rel))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexNewDir indexes any .md files already present in a directory that
// appeared at runtime (created or moved in wholesale).
func (ix *Indexer) indexNewDir(vaultRoot, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ex, ok := ix.provider.(excluder); ok && ex.Excluded(rel) {
			return nil
		}
		if idxErr := ix.NotifyChanged(rel); idxErr != nil {
			ix.logger.Warn("watcher: index from new dir failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
		} else {
			ix.logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
