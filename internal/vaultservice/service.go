// Package vaultservice is the coordination surface over the index
// core: it owns the read paths (search, resolve, metadata, content)
// and delegates every mutation to the indexer. Callers never touch the
// store, resolver, or cache directly.
package vaultservice

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/query"
	"github.com/starford/othala/internal/resolver"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/storage"
)

// DocumentDetail is the full representation of one note: the indexed
// record plus raw content and link neighborhood.
type DocumentDetail struct {
	Document  models.Document   `json:"document"`
	Content   string            `json:"content,omitempty"`
	Outgoing  []models.LinkEdge `json:"outgoing"`
	Incoming  []models.LinkEdge `json:"incoming"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// TitleResolution is the typed outcome of a title lookup.
type TitleResolution struct {
	Found      bool             `json:"found"`
	Ambiguous  bool             `json:"ambiguous"`
	Document   *models.Document `json:"document,omitempty"`
	Candidates []string         `json:"candidates,omitempty"`
	Similar    []string         `json:"similar,omitempty"`
}

// Store is the slice of the index store the service reads from.
type Store interface {
	GetDocument(id int64) (*models.Document, error)
	GetByPath(path string) (*models.Document, error)
	EdgesFrom(id int64) ([]models.LinkEdge, error)
	EdgesTo(id int64) ([]models.LinkEdge, error)
	Count() (int, error)
}

// Service coordinates the index core for external callers.
type Service struct {
	store    Store
	provider storage.Provider
	resolver *resolver.Resolver
	engine   *search.Engine
	indexer  *indexer.Indexer
}

// New creates the service over its collaborators.
func New(store Store, provider storage.Provider, res *resolver.Resolver, engine *search.Engine, ix *indexer.Indexer) *Service {
	return &Service{
		store:    store,
		provider: provider,
		resolver: res,
		engine:   engine,
		indexer:  ix,
	}
}

// Scan brings the index up to date with the vault on disk.
func (s *Service) Scan(ctx context.Context) (*indexer.Summary, error) {
	return s.indexer.Sync(ctx)
}

// NotifyChanged reindexes one file after an external change report.
func (s *Service) NotifyChanged(_ context.Context, path string) error {
	return s.indexer.NotifyChanged(path)
}

// NotifyRemoved drops one file from the index.
func (s *Service) NotifyRemoved(_ context.Context, path string) error {
	return s.indexer.NotifyRemoved(path)
}

// RebuildIndex reconstructs the index from scratch while reads keep
// serving the previous one.
func (s *Service) RebuildIndex(ctx context.Context) error {
	return s.indexer.Rebuild(ctx)
}

// Search runs a hybrid keyword-plus-filter query.
func (s *Service) Search(ctx context.Context, keywords string, spec query.FilterSpec, sortKey string, limit, offset int) (*search.Result, error) {
	return s.engine.Search(ctx, keywords, spec, sortKey, limit, offset)
}

// ResolveTitle maps a human-supplied title to a document. Ambiguity is
// reported with folder-qualified candidates rather than guessed away;
// a miss carries fuzzy suggestions.
func (s *Service) ResolveTitle(_ context.Context, title string) (*TitleResolution, error) {
	res := s.resolver.Resolve(title)
	switch res.Kind {
	case resolver.Found:
		doc, err := s.store.GetDocument(res.ID)
		if err != nil {
			return nil, err
		}
		return &TitleResolution{Found: true, Document: doc}, nil
	case resolver.Ambiguous:
		return &TitleResolution{Ambiguous: true, Candidates: res.Candidates}, nil
	default:
		return &TitleResolution{Similar: res.Similar}, nil
	}
}

// GetDocumentMetadata returns the indexed record and link neighborhood
// without file content.
func (s *Service) GetDocumentMetadata(_ context.Context, path string) (*DocumentDetail, error) {
	doc, err := s.store.GetByPath(path)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(doc, nil)
}

// ReadDocument returns the record plus raw content, read through
// storage so the bytes are current even if the index lags.
func (s *Service) ReadDocument(_ context.Context, path string) (*DocumentDetail, error) {
	doc, err := s.store.GetByPath(path)
	if err != nil {
		return nil, err
	}
	data, err := s.provider.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(doc, data)
}

// DocumentCount returns the number of live documents.
func (s *Service) DocumentCount(_ context.Context) (int, error) {
	return s.store.Count()
}

func (s *Service) buildDetail(doc *models.Document, content []byte) (*DocumentDetail, error) {
	out, err := s.store.EdgesFrom(doc.ID)
	if err != nil {
		return nil, err
	}
	in, err := s.store.EdgesTo(doc.ID)
	if err != nil {
		return nil, err
	}
	d := &DocumentDetail{
		Document:  *doc,
		Outgoing:  nonNilSlice(out),
		Incoming:  nonNilSlice(in),
		FetchedAt: time.Now(),
	}
	if content != nil {
		d.Content = string(content)
	}
	return d, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
