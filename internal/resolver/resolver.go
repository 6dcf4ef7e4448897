// Package resolver maps human-supplied titles to document identifiers.
// Titles are not unique across folders; duplicates are disambiguated by
// a deterministic folder-qualified key derived from (immediate parent
// folder, title). The resolver is a derived, rebuildable view over the
// index store and never mutates it.
package resolver

import (
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Resolution kinds.
type Kind int

const (
	Found Kind = iota
	Ambiguous
	NotFound
)

// Resolution is the typed result of a title lookup. Ambiguity is not an
// error: the caller branches on Kind and may retry with one of the
// folder-qualified Candidates.
type Resolution struct {
	Kind       Kind
	ID         int64
	Candidates []string // folder-qualified keys, sorted, set when Ambiguous
	Similar    []string // fuzzy suggestions, set when NotFound
}

// Entry is one live document as the resolver sees it.
type Entry struct {
	ID     int64
	Title  string
	Folder string
	Path   string
}

// Resolver holds the in-memory title index.
type Resolver struct {
	mu      sync.RWMutex
	byTitle map[string][]Entry // bare title -> entries sharing it
	byQual  map[string]Entry   // folder-qualified key -> entry
	byID    map[int64]Entry
}

// New builds a resolver from the title projection of every live
// document.
func New(entries []Entry) *Resolver {
	r := &Resolver{}
	r.reset(entries)
	return r
}

// Rebuild replaces the whole title index. Used after a full index
// rebuild; incremental changes go through Apply.
func (r *Resolver) Rebuild(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset(entries)
}

func (r *Resolver) reset(entries []Entry) {
	r.byTitle = make(map[string][]Entry, len(entries))
	r.byQual = make(map[string]Entry, len(entries))
	r.byID = make(map[int64]Entry, len(entries))
	for _, e := range entries {
		r.insert(e)
	}
}

func (r *Resolver) insert(e Entry) {
	r.byTitle[e.Title] = append(r.byTitle[e.Title], e)
	r.byQual[QualifiedKey(e.Folder, e.Title)] = e
	r.byID[e.ID] = e
}

func (r *Resolver) remove(id int64) {
	e, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byQual, QualifiedKey(e.Folder, e.Title))
	peers := r.byTitle[e.Title]
	for i, p := range peers {
		if p.ID == id {
			peers = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(peers) == 0 {
		delete(r.byTitle, e.Title)
	} else {
		r.byTitle[e.Title] = peers
	}
}

// QualifiedKey is the deterministic composite key for duplicate titles:
// "folder/title", or the bare title at the vault root. Only the
// immediate containing folder participates, so same-named notes in
// deep paths sharing a leaf folder name still collide; that is a known
// limitation, not a silent fix.
func QualifiedKey(folder, title string) string {
	if folder == "" {
		return title
	}
	return folder + "/" + title
}

// Resolve maps a title to exactly one identifier. A folder-qualified
// title ("folder/title") matches exactly; a bare title shared by more
// than one document yields Ambiguous with the qualified candidates
// rather than a guess. Resolve is idempotent: it never mutates state.
func (r *Resolver) Resolve(title string) Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.Contains(title, "/") {
		if e, ok := r.byQual[title]; ok {
			return Resolution{Kind: Found, ID: e.ID}
		}
	}

	entries := r.byTitle[title]
	switch len(entries) {
	case 0:
		return Resolution{Kind: NotFound, Similar: r.suggest(title, 5)}
	case 1:
		return Resolution{Kind: Found, ID: entries[0].ID}
	default:
		candidates := make([]string, len(entries))
		for i, e := range entries {
			candidates[i] = QualifiedKey(e.Folder, e.Title)
		}
		sort.Strings(candidates)
		return Resolution{Kind: Ambiguous, Candidates: candidates}
	}
}

// suggest returns up to n fuzzy title matches for a miss. Callers hold
// at least a read lock.
func (r *Resolver) suggest(title string, n int) []string {
	titles := make([]string, 0, len(r.byTitle))
	for t := range r.byTitle {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	matches := fuzzy.Find(title, titles)
	out := make([]string, 0, n)
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) == n {
			break
		}
	}
	return out
}

// Change is one incremental mutation reported by the indexer.
type Change struct {
	Removed bool
	Entry   Entry // the document's current identity; for Removed only ID is used
}

// Apply diffs a single document change into the title index. Updates
// (including renames and moves) are a remove of the old identity and an
// insert of the new one.
func (r *Resolver) Apply(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(c.Entry.ID)
	if !c.Removed {
		r.insert(c.Entry)
	}
}

// Len returns the number of live documents indexed.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
