// Package search implements the hybrid search path: keyword scoring
// over the postings index with term-variant expansion, fuzzy title
// matching, structured filtering, and result caching. Relevance is
// computed before filters narrow the candidate set, so a document's
// score never depends on which filters accompany the query.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/singleflight"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/metrics"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/query"
)

// Bonus applied when a term fuzzily matches a document title, scaled by
// the term weight. Kept below a single title posting (weight 2.0) so an
// exact occurrence always outranks a fuzzy title hit.
const fuzzyTitleBonus = 1.5

// Options tune the engine.
type Options struct {
	// Fuzzy enables term-variant expansion and fuzzy title matching.
	Fuzzy bool
	// CaseSensitive restricts fuzzy title matching to exact-case
	// subsequences. Postings are always matched case-normalized.
	CaseSensitive bool
}

// Hit is one scored result.
type Hit struct {
	Document models.Document `json:"document"`
	Score    float64         `json:"score"`
}

// Result is one page of hits plus the size of the full match set.
type Result struct {
	Hits         []Hit `json:"hits"`
	TotalMatched int   `json:"total_matched"`
}

// Engine executes hybrid queries against the index store.
type Engine struct {
	store *index.DB
	cache *cache.Cache
	mtr   *metrics.Metrics
	opts  Options
	group singleflight.Group
}

// New creates an engine. mtr may be nil when instrumentation is off.
func New(store *index.DB, c *cache.Cache, mtr *metrics.Metrics, opts Options) *Engine {
	return &Engine{store: store, cache: c, mtr: mtr, opts: opts}
}

// Search runs keywords plus a structured filter and returns one page.
// Empty keywords with an empty filter list the whole vault. Identical
// concurrent queries share one execution; repeated queries hit the
// cache until an overlapping document changes.
func (e *Engine) Search(ctx context.Context, keywords string, spec query.FilterSpec, sortKey string, limit, offset int) (*Result, error) {
	start := time.Now()

	compiled, err := query.Build(spec, sortKey)
	if err != nil {
		e.countQuery("error")
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sig := compiled.Signature(keywords, limit, offset)
	if v, ok := e.cache.Get(sig); ok {
		e.observe("hit", start)
		res := v.(*Result)
		e.countQuery(outcome(res))
		return res, nil
	}

	// Set only when this call's closure actually executed the query;
	// singleflight sharers and an inner cache hit leave it false.
	var executed bool
	v, err, _ := e.group.Do(sig, func() (interface{}, error) {
		// A concurrent duplicate may have populated the cache while
		// this call waited on the group.
		if v, ok := e.cache.Get(sig); ok {
			return v, nil
		}
		executed = true
		// Captured before any store read: an invalidation between here
		// and Put voids the store instead of reinstating stale results.
		gen := e.cache.Generation()
		res, execErr := e.execute(ctx, keywords, compiled, limit, offset)
		if execErr != nil {
			return nil, execErr
		}
		e.cache.Put(sig, res, approxSize(res), compiled.Scope(), gen)
		return res, nil
	})
	if err != nil {
		e.countQuery("error")
		return nil, err
	}

	status := "hit"
	if executed {
		status = "miss"
	}
	e.observe(status, start)
	res := v.(*Result)
	e.countQuery(outcome(res))
	return res, nil
}

func (e *Engine) execute(ctx context.Context, keywords string, compiled *query.Compiled, limit, offset int) (*Result, error) {
	terms := ExpandTerms(keywords, e.opts.Fuzzy)

	var hits []Hit
	if len(terms) == 0 {
		docs, err := e.store.AllDocuments(compiled)
		if err != nil {
			return nil, err
		}
		hits = make([]Hit, len(docs))
		for i, d := range docs {
			hits[i] = Hit{Document: d}
		}
	} else {
		scored, err := e.score(ctx, terms)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(scored))
		for id := range scored {
			ids = append(ids, id)
		}
		docs, err := e.store.DocumentsByIDs(ids)
		if err != nil {
			return nil, err
		}
		for id, score := range scored {
			doc, ok := docs[id]
			if !ok || !compiled.Match(doc) {
				continue
			}
			hits = append(hits, Hit{Document: doc, Score: score})
		}
	}

	sortHits(hits, effectiveSort(compiled.SortKey, len(terms) > 0))

	total := len(hits)
	if offset >= total {
		hits = nil
	} else {
		hits = hits[offset:]
		if len(hits) > limit {
			hits = hits[:limit]
		}
	}

	page := make([]Hit, len(hits))
	copy(page, hits)
	return &Result{Hits: page, TotalMatched: total}, nil
}

// score aggregates posting weights per document across all term
// variants, then adds fuzzy title bonuses. A document must match at
// least one variant of every term to stay in the candidate set.
func (e *Engine) score(ctx context.Context, terms []SearchTerm) (map[int64]float64, error) {
	var titles []index.TitleEntry
	if e.opts.Fuzzy {
		var err error
		titles, err = e.store.Titles()
		if err != nil {
			return nil, err
		}
	}

	total := make(map[int64]float64)
	matched := make(map[int64]int) // doc -> number of terms it matched

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perTerm := make(map[int64]float64)
		for _, v := range term.Variants {
			postings, err := e.store.PostingsFor(v.Text)
			if err != nil {
				return nil, err
			}
			for _, p := range postings {
				perTerm[p.DocID] += p.Weight * v.Factor
			}
		}
		for _, id := range e.fuzzyTitleIDs(term.Original, titles) {
			perTerm[id] += fuzzyTitleBonus
		}
		for id, s := range perTerm {
			total[id] += s * term.Weight
			matched[id]++
		}
	}

	// AND semantics across terms.
	for id, n := range matched {
		if n < len(terms) {
			delete(total, id)
		}
	}
	return total, nil
}

// fuzzyTitleIDs returns documents whose title fuzzily matches the term.
func (e *Engine) fuzzyTitleIDs(term string, titles []index.TitleEntry) []int64 {
	if !e.opts.Fuzzy || len(titles) == 0 {
		return nil
	}
	names := make([]string, len(titles))
	for i, t := range titles {
		if e.opts.CaseSensitive {
			names[i] = t.Title
		} else {
			names[i] = strings.ToLower(t.Title)
		}
	}
	needle := term
	if !e.opts.CaseSensitive {
		needle = strings.ToLower(term)
	}
	var ids []int64
	for _, m := range fuzzy.Find(needle, names) {
		ids = append(ids, titles[m.Index].ID)
	}
	return ids
}

// effectiveSort resolves the relevance key: without keywords every
// score is zero, so listing falls back to recency.
func effectiveSort(key string, hasKeywords bool) string {
	if key == query.SortRelevance && !hasKeywords {
		return query.SortModified
	}
	return key
}

// sortHits orders hits by the sort key with the document identifier as
// the final tie-break, so equal keys still page deterministically.
func sortHits(hits []Hit, key string) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		switch key {
		case query.SortRelevance:
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case query.SortModified:
			if !a.Document.UpdatedAt.Equal(b.Document.UpdatedAt) {
				return a.Document.UpdatedAt.After(b.Document.UpdatedAt)
			}
		case query.SortCreated:
			if !a.Document.CreatedAt.Equal(b.Document.CreatedAt) {
				return a.Document.CreatedAt.After(b.Document.CreatedAt)
			}
		case query.SortTitle:
			at, bt := strings.ToLower(a.Document.Title), strings.ToLower(b.Document.Title)
			if at != bt {
				return at < bt
			}
		case query.SortSize:
			if a.Document.WordCount != b.Document.WordCount {
				return a.Document.WordCount > b.Document.WordCount
			}
		}
		return a.Document.ID < b.Document.ID
	})
}

// approxSize estimates the in-memory footprint of a result for the
// cache's byte budget. Rough is fine; the budget is a soft bound.
func approxSize(res *Result) int64 {
	size := int64(64)
	for _, h := range res.Hits {
		size += 160 // struct overhead per hit
		size += int64(len(h.Document.Path) + len(h.Document.Title) + len(h.Document.Folder) + len(h.Document.Fingerprint))
		for _, t := range h.Document.Tags {
			size += int64(len(t) + 16)
		}
	}
	return size
}

func outcome(res *Result) string {
	if res.TotalMatched == 0 {
		return "zero_result"
	}
	return "ok"
}

func (e *Engine) observe(cacheStatus string, start time.Time) {
	if e.mtr == nil {
		return
	}
	e.mtr.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if cacheStatus == "hit" {
		e.mtr.CacheHitsTotal.Inc()
	} else {
		e.mtr.CacheMissesTotal.Inc()
	}
}

func (e *Engine) countQuery(out string) {
	if e.mtr == nil {
		return
	}
	e.mtr.SearchQueriesTotal.WithLabelValues(out).Inc()
}
