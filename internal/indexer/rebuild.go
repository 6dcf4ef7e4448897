package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/othala/internal/fingerprint"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/parser"
	"github.com/starford/othala/internal/resolver"
)

// Rebuild reconstructs the index from scratch beside the live one, then
// substitutes it atomically. Reads keep serving the old index during
// the whole build; incremental updates are held off by the indexer
// mutex. On cancellation or failure the partial build is discarded and
// the previous index stays authoritative.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tmpPath := ix.store.Path() + ".rebuild"
	removeSidecars(tmpPath)

	err := ix.rebuildInto(ctx, tmpPath)
	if err != nil {
		removeSidecars(tmpPath)
		ix.countRebuild(rebuildStatus(err))
		return err
	}

	if err := ix.store.Adopt(tmpPath); err != nil {
		removeSidecars(tmpPath)
		ix.countRebuild("failed")
		return err
	}

	// Derived views follow the new store wholesale.
	titles, err := ix.store.Titles()
	if err != nil {
		return fmt.Errorf("rebuild: reload titles: %w", err)
	}
	entries := make([]resolver.Entry, len(titles))
	for i, t := range titles {
		entries[i] = resolver.Entry{ID: t.ID, Title: t.Title, Folder: t.Folder, Path: t.Path}
	}
	ix.resolver.Rebuild(entries)
	ix.cache.Purge()
	ix.updateGauge()
	ix.countRebuild("ok")
	ix.logger.Info("rebuild: done", slog.Int("documents", len(entries)))
	return nil
}

// rebuildInto populates a fresh index file from the current vault
// listing and closes it, ready for adoption. Paths already known to the
// live index keep their identifier and creation timestamp; new paths
// get identifiers above the old maximum, so an id handed out before the
// rebuild never names a different document after it.
func (ix *Indexer) rebuildInto(ctx context.Context, tmpPath string) error {
	metas, perrs, err := ix.provider.List("")
	if err != nil {
		return fmt.Errorf("rebuild: list vault: %w", err)
	}
	for _, pe := range perrs {
		ix.logger.Warn("rebuild: unreadable file", slog.String("path", pe.Path), slog.String("error", pe.Err.Error()))
	}

	idents, err := ix.store.PathIdentities()
	if err != nil {
		return fmt.Errorf("rebuild: load identities: %w", err)
	}
	var nextID int64
	for _, ident := range idents {
		if ident.ID > nextID {
			nextID = ident.ID
		}
	}

	tmp, err := index.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("rebuild: open scratch index: %w", err)
	}
	defer tmp.Close()

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, readErr := ix.provider.Read(m.Path)
		if readErr != nil {
			ix.logger.Warn("rebuild: read failed", slog.String("path", m.Path), slog.String("error", readErr.Error()))
			continue
		}
		res, parseErr := parser.Parse(data)
		if parseErr != nil {
			ix.logger.Warn("rebuild: parse failed", slog.String("path", m.Path), slog.String("error", parseErr.Error()))
			continue
		}

		title := res.Title
		if title == "" {
			title = stem(m.Path)
		}
		doc := models.Document{
			Path:        m.Path,
			Title:       title,
			Folder:      folderOf(m.Path),
			Fingerprint: fingerprint.Sum(data),
			WordCount:   res.WordCount,
			LinkCount:   len(res.Links),
			HasTasks:    res.HasTasks,
			Tags:        res.Tags,
			UpdatedAt:   m.UpdatedAt,
		}
		if ident, ok := idents[m.Path]; ok {
			doc.ID = ident.ID
			doc.CreatedAt = ident.CreatedAt
		} else {
			nextID++
			doc.ID = nextID
		}
		postings := make([]models.Posting, len(res.Terms))
		for i, t := range res.Terms {
			postings[i] = models.Posting{Term: t.Text, Position: t.Position, Weight: t.Weight}
		}
		edges := make([]models.LinkEdge, len(res.Links))
		for i, l := range res.Links {
			edges[i] = models.LinkEdge{TargetTitle: l.Target, Kind: l.Kind, Context: l.Context}
		}

		if _, upErr := tmp.UpsertDocument(doc, postings, edges); upErr != nil {
			ix.logger.Warn("rebuild: upsert failed", slog.String("path", m.Path), slog.String("error", upErr.Error()))
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rebuild: close scratch index: %w", err)
	}
	return nil
}

func rebuildStatus(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "failed"
}

func (ix *Indexer) countRebuild(status string) {
	if ix.mtr != nil {
		ix.mtr.RebuildsTotal.WithLabelValues(status).Inc()
	}
}

// removeSidecars drops a SQLite file and its WAL companions.
func removeSidecars(p string) {
	_ = os.Remove(p)
	_ = os.Remove(p + "-wal")
	_ = os.Remove(p + "-shm")
}
