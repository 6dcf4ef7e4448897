// Package indexer keeps the SQLite index, the title resolver, and the
// result cache consistent with the vault on disk. It owns every write
// path: the startup scan, single-file notifications, the filesystem
// watcher, and full rebuilds. One document failing to parse or read
// never aborts a batch; the failure is counted and the rest proceeds.
package indexer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/fingerprint"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/metrics"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/parser"
	"github.com/starford/othala/internal/resolver"
	"github.com/starford/othala/internal/storage"
)

// Indexer serializes all index mutations through one mutex so
// incremental updates and rebuilds never interleave. Readers are not
// blocked; they see either the pre- or post-mutation snapshot.
type Indexer struct {
	store    *index.DB
	provider storage.Provider
	resolver *resolver.Resolver
	cache    *cache.Cache
	mtr      *metrics.Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

// New wires an indexer over its collaborators. mtr may be nil.
func New(store *index.DB, provider storage.Provider, res *resolver.Resolver, c *cache.Cache, mtr *metrics.Metrics, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:    store,
		provider: provider,
		resolver: res,
		cache:    c,
		mtr:      mtr,
		logger:   logger,
	}
}

// Summary reports what one batch pass did.
type Summary struct {
	Indexed int
	Removed int
	Failed  int
}

// Sync scans the vault and applies every detected change. Cancellation
// is honored between documents: already-applied changes stay applied
// and the index remains consistent, just behind disk.
func (ix *Indexer) Sync(ctx context.Context) (*Summary, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	changes, err := Scan(ix.store, ix.provider)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, pe := range changes.Errors {
		ix.logger.Warn("sync: unreadable file", slog.String("path", pe.Path), slog.String("error", pe.Err.Error()))
		ix.countFailure()
		sum.Failed++
	}

	for _, p := range append(append([]string{}, changes.Added...), changes.Modified...) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := ix.indexPath(p); err != nil {
			ix.logger.Warn("sync: index failed", slog.String("path", p), slog.String("error", err.Error()))
			ix.countFailure()
			sum.Failed++
			continue
		}
		sum.Indexed++
	}

	for _, p := range changes.Removed {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := ix.removePath(p); err != nil {
			ix.logger.Warn("sync: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			sum.Failed++
			continue
		}
		sum.Removed++
	}

	ix.updateGauge()
	ix.logger.Info("sync: done",
		slog.Int("indexed", sum.Indexed),
		slog.Int("removed", sum.Removed),
		slog.Int("failed", sum.Failed))
	return sum, nil
}

// NotifyChanged reindexes a single file after an external change
// report. A file that turns out to be gone is treated as a removal.
func (ix *Indexer) NotifyChanged(p string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	err := ix.indexPath(p)
	if err != nil && isNotExist(err) {
		return ix.removeKnown(p)
	}
	if err != nil {
		ix.countFailure()
		return err
	}
	ix.updateGauge()
	return nil
}

// NotifyRemoved drops a single file from the index. Unknown paths are
// a no-op: the notification may race a scan that already removed it.
func (ix *Indexer) NotifyRemoved(p string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeKnown(p)
}

func (ix *Indexer) removeKnown(p string) error {
	err := ix.removePath(p)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	ix.updateGauge()
	return nil
}

// indexPath reads, parses, and upserts one document, then propagates
// the change to the resolver and the cache. Callers hold ix.mu.
func (ix *Indexer) indexPath(p string) error {
	data, err := ix.provider.Read(p)
	if err != nil {
		return err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	title := res.Title
	if title == "" {
		// Untitled notes fall back to the file name.
		title = stem(p)
	}

	doc := models.Document{
		Path:        p,
		Title:       title,
		Folder:      folderOf(p),
		Fingerprint: fingerprint.Sum(data),
		WordCount:   res.WordCount,
		LinkCount:   len(res.Links),
		HasTasks:    res.HasTasks,
		Tags:        res.Tags,
	}

	postings := make([]models.Posting, len(res.Terms))
	for i, t := range res.Terms {
		postings[i] = models.Posting{Term: t.Text, Position: t.Position, Weight: t.Weight}
	}
	edges := make([]models.LinkEdge, len(res.Links))
	for i, l := range res.Links {
		edges[i] = models.LinkEdge{TargetTitle: l.Target, Kind: l.Kind, Context: l.Context}
	}

	up, err := ix.store.UpsertDocument(doc, postings, edges)
	if err != nil {
		return err
	}
	if up.Unchanged {
		return nil
	}

	ix.resolver.Apply(resolver.Change{Entry: resolver.Entry{
		ID:     up.Doc.ID,
		Title:  up.Doc.Title,
		Folder: up.Doc.Folder,
		Path:   up.Doc.Path,
	}})
	ix.cache.Invalidate(up.Doc)
	if ix.mtr != nil {
		ix.mtr.DocsIndexedTotal.Inc()
	}
	ix.logger.Debug("indexed", slog.String("path", p), slog.Bool("created", up.Created))
	return nil
}

// removePath drops one document. Callers hold ix.mu.
func (ix *Indexer) removePath(p string) error {
	doc, err := ix.store.GetByPath(p)
	if err != nil {
		return err
	}
	if err := ix.store.RemoveDocument(doc.ID); err != nil {
		return err
	}
	ix.resolver.Apply(resolver.Change{Removed: true, Entry: resolver.Entry{ID: doc.ID}})
	ix.cache.Invalidate(*doc)
	if ix.mtr != nil {
		ix.mtr.DocsRemovedTotal.Inc()
	}
	ix.logger.Debug("removed", slog.String("path", p))
	return nil
}

func (ix *Indexer) updateGauge() {
	if ix.mtr == nil {
		return
	}
	if n, err := ix.store.Count(); err == nil {
		ix.mtr.DocumentsGauge.Set(float64(n))
	}
}

func (ix *Indexer) countFailure() {
	if ix.mtr != nil {
		ix.mtr.IndexFailuresTotal.Inc()
	}
}

// folderOf returns the immediate parent folder name of a vault path,
// "" at the vault root.
func folderOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return path.Base(dir)
}

func stem(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
