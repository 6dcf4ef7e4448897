// Package query compiles structured filter specifications into
// executable predicates over the index store. Contradictory or unknown
// options are rejected at build time with a descriptive error; they are
// never silently coerced into an empty result.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// Tag combinators.
const (
	TagModeAny = "any"
	TagModeAll = "all"
)

// Sort keys accepted by the search engine.
const (
	SortRelevance = "relevance"
	SortModified  = "modified"
	SortCreated   = "created"
	SortTitle     = "title"
	SortSize      = "size"
)

// FilterSpec is the closed set of recognized filters. Date bounds
// accept anything dateparse understands ("2024-01-15", "Jan 2 2024",
// RFC3339). Folder scoping is prefix-based and includes subfolders.
// Nil numeric and boolean fields mean "no constraint".
type FilterSpec struct {
	TagsInclude    []string `json:"tags_include,omitempty"`
	TagsExclude    []string `json:"tags_exclude,omitempty"`
	TagMode        string   `json:"tag_mode,omitempty"` // "any" (default) or "all"
	CreatedAfter   string   `json:"created_after,omitempty"`
	CreatedBefore  string   `json:"created_before,omitempty"`
	ModifiedAfter  string   `json:"modified_after,omitempty"`
	ModifiedBefore string   `json:"modified_before,omitempty"`
	Folders        []string `json:"folders,omitempty"`
	FoldersExclude []string `json:"folders_exclude,omitempty"`
	MinWords       *int     `json:"min_words,omitempty"`
	MaxWords       *int     `json:"max_words,omitempty"`
	MinLinks       *int     `json:"min_links,omitempty"`
	MaxLinks       *int     `json:"max_links,omitempty"`
	HasTasks       *bool    `json:"has_tasks,omitempty"`
}

// Compiled is an executable filter plus its declared scope. It
// implements the store's Filter interface: SQL pre-prunes on the
// structured columns, Match is the authoritative predicate.
type Compiled struct {
	spec           FilterSpec
	createdAfter   time.Time
	createdBefore  time.Time
	modifiedAfter  time.Time
	modifiedBefore time.Time
	SortKey        string
	scope          Scope
}

// Scope is the conservative envelope of documents a compiled filter
// could possibly match: folder prefixes when the filter names folders,
// the entire vault otherwise. The result cache uses it for
// invalidation, deliberately over-approximating so a stale entry is
// never served.
type Scope struct {
	FolderPrefixes []string // empty means the entire vault
}

// Contains reports whether doc could fall inside the scope.
func (s Scope) Contains(doc models.Document) bool {
	return s.ContainsPath(doc.Path)
}

// ContainsPath is Contains for a bare vault-relative path.
func (s Scope) ContainsPath(p string) bool {
	if len(s.FolderPrefixes) == 0 {
		return true
	}
	for _, f := range s.FolderPrefixes {
		if strings.HasPrefix(p, f+"/") {
			return true
		}
	}
	return false
}

// Build validates and compiles a filter specification with a sort key.
// An empty sortKey defaults to relevance (the engine falls back to
// modified time when there are no keywords to rank by).
func Build(spec FilterSpec, sortKey string) (*Compiled, error) {
	if spec.TagMode == "" {
		spec.TagMode = TagModeAny
	}
	if sortKey == "" {
		sortKey = SortRelevance
	}

	if err := validation.Validate(spec.TagMode,
		validation.In(TagModeAny, TagModeAll)); err != nil {
		return nil, fmt.Errorf("%w: tag_mode %q (want %q or %q)", apperr.ErrInvalidFilter, spec.TagMode, TagModeAny, TagModeAll)
	}
	if err := validation.Validate(sortKey,
		validation.In(SortRelevance, SortModified, SortCreated, SortTitle, SortSize)); err != nil {
		return nil, fmt.Errorf("%w: unknown sort key %q", apperr.ErrInvalidFilter, sortKey)
	}

	for _, t := range spec.TagsInclude {
		for _, x := range spec.TagsExclude {
			if t == x {
				return nil, fmt.Errorf("%w: tag %q is both included and excluded", apperr.ErrInvalidFilter, t)
			}
		}
	}

	spec.Folders = cleanFolders(spec.Folders)
	spec.FoldersExclude = cleanFolders(spec.FoldersExclude)
	for _, f := range spec.Folders {
		for _, x := range spec.FoldersExclude {
			if f == x {
				return nil, fmt.Errorf("%w: folder %q is both included and excluded", apperr.ErrInvalidFilter, f)
			}
		}
	}

	c := &Compiled{spec: spec, SortKey: sortKey}
	var err error
	if c.createdAfter, err = parseBound("created_after", spec.CreatedAfter); err != nil {
		return nil, err
	}
	if c.createdBefore, err = parseBound("created_before", spec.CreatedBefore); err != nil {
		return nil, err
	}
	if c.modifiedAfter, err = parseBound("modified_after", spec.ModifiedAfter); err != nil {
		return nil, err
	}
	if c.modifiedBefore, err = parseBound("modified_before", spec.ModifiedBefore); err != nil {
		return nil, err
	}
	if !c.createdAfter.IsZero() && !c.createdBefore.IsZero() && c.createdAfter.After(c.createdBefore) {
		return nil, fmt.Errorf("%w: created_after is later than created_before", apperr.ErrInvalidFilter)
	}
	if !c.modifiedAfter.IsZero() && !c.modifiedBefore.IsZero() && c.modifiedAfter.After(c.modifiedBefore) {
		return nil, fmt.Errorf("%w: modified_after is later than modified_before", apperr.ErrInvalidFilter)
	}

	if err := checkRange("words", spec.MinWords, spec.MaxWords); err != nil {
		return nil, err
	}
	if err := checkRange("links", spec.MinLinks, spec.MaxLinks); err != nil {
		return nil, err
	}

	c.scope = Scope{FolderPrefixes: spec.Folders}
	return c, nil
}

func cleanFolders(folders []string) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		f = strings.Trim(strings.ReplaceAll(f, "\\", "/"), "/ ")
		if f != "" {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func parseBound(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: cannot parse %q as a date", apperr.ErrInvalidFilter, field, value)
	}
	return t, nil
}

func checkRange(name string, min, max *int) error {
	if min != nil && *min < 0 {
		return fmt.Errorf("%w: min_%s is negative", apperr.ErrInvalidFilter, name)
	}
	if max != nil && *max < 0 {
		return fmt.Errorf("%w: max_%s is negative", apperr.ErrInvalidFilter, name)
	}
	if min != nil && max != nil && *min > *max {
		return fmt.Errorf("%w: min_%s exceeds max_%s", apperr.ErrInvalidFilter, name, name)
	}
	return nil
}

// Scope returns the declared scope for cache invalidation.
func (c *Compiled) Scope() Scope { return c.scope }

// Spec returns the normalized specification the filter was built from.
func (c *Compiled) Spec() FilterSpec { return c.spec }

// Match is the authoritative predicate over a document record.
func (c *Compiled) Match(d models.Document) bool {
	if !c.scope.ContainsPath(d.Path) {
		return false
	}
	for _, x := range c.spec.FoldersExclude {
		if strings.HasPrefix(d.Path, x+"/") {
			return false
		}
	}

	if len(c.spec.TagsInclude) > 0 {
		if c.spec.TagMode == TagModeAll {
			for _, want := range c.spec.TagsInclude {
				if !hasTag(d.Tags, want) {
					return false
				}
			}
		} else {
			any := false
			for _, want := range c.spec.TagsInclude {
				if hasTag(d.Tags, want) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	}
	for _, banned := range c.spec.TagsExclude {
		if hasTag(d.Tags, banned) {
			return false
		}
	}

	if !c.createdAfter.IsZero() && d.CreatedAt.Before(c.createdAfter) {
		return false
	}
	if !c.createdBefore.IsZero() && d.CreatedAt.After(c.createdBefore) {
		return false
	}
	if !c.modifiedAfter.IsZero() && d.UpdatedAt.Before(c.modifiedAfter) {
		return false
	}
	if !c.modifiedBefore.IsZero() && d.UpdatedAt.After(c.modifiedBefore) {
		return false
	}

	if c.spec.MinWords != nil && d.WordCount < *c.spec.MinWords {
		return false
	}
	if c.spec.MaxWords != nil && d.WordCount > *c.spec.MaxWords {
		return false
	}
	if c.spec.MinLinks != nil && d.LinkCount < *c.spec.MinLinks {
		return false
	}
	if c.spec.MaxLinks != nil && d.LinkCount > *c.spec.MaxLinks {
		return false
	}
	if c.spec.HasTasks != nil && d.HasTasks != *c.spec.HasTasks {
		return false
	}
	return true
}

// SQL returns a conservative WHERE clause over the structured columns
// so the store can prune without scanning postings. Tag membership is
// left to Match (tags are stored as JSON).
func (c *Compiled) SQL() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if len(c.spec.Folders) > 0 {
		ors := make([]string, len(c.spec.Folders))
		for i, f := range c.spec.Folders {
			ors[i] = "path LIKE ?"
			args = append(args, f+"/%")
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	for _, x := range c.spec.FoldersExclude {
		clauses = append(clauses, "path NOT LIKE ?")
		args = append(args, x+"/%")
	}
	if !c.createdAfter.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, c.createdAfter)
	}
	if !c.createdBefore.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, c.createdBefore)
	}
	if !c.modifiedAfter.IsZero() {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, c.modifiedAfter)
	}
	if !c.modifiedBefore.IsZero() {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, c.modifiedBefore)
	}
	if c.spec.MinWords != nil {
		clauses = append(clauses, "word_count >= ?")
		args = append(args, *c.spec.MinWords)
	}
	if c.spec.MaxWords != nil {
		clauses = append(clauses, "word_count <= ?")
		args = append(args, *c.spec.MaxWords)
	}
	if c.spec.MinLinks != nil {
		clauses = append(clauses, "link_count >= ?")
		args = append(args, *c.spec.MinLinks)
	}
	if c.spec.MaxLinks != nil {
		clauses = append(clauses, "link_count <= ?")
		args = append(args, *c.spec.MaxLinks)
	}
	if c.spec.HasTasks != nil {
		clauses = append(clauses, "has_tasks = ?")
		args = append(args, *c.spec.HasTasks)
	}

	return strings.Join(clauses, " AND "), args
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
