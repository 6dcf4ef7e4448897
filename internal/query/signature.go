package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/othala/internal/fingerprint"
)

// Signature returns a normalized, order-independent key for a query:
// the same keywords in any order, the same filter with fields listed in
// any order, the same sort and page always hash to the same signature.
// The result cache keys on it.
func (c *Compiled) Signature(keywords string, limit, offset int) string {
	terms := strings.Fields(strings.ToLower(keywords))
	sort.Strings(terms)

	spec := c.spec
	incTags := append([]string(nil), spec.TagsInclude...)
	excTags := append([]string(nil), spec.TagsExclude...)
	sort.Strings(incTags)
	sort.Strings(excTags)

	parts := []string{
		"kw=" + strings.Join(terms, ","),
		"tags+=" + strings.Join(incTags, ","),
		"tags-=" + strings.Join(excTags, ","),
		"tagmode=" + spec.TagMode,
		"ca=" + canonTime(c.createdAfter),
		"cb=" + canonTime(c.createdBefore),
		"ma=" + canonTime(c.modifiedAfter),
		"mb=" + canonTime(c.modifiedBefore),
		"dirs+=" + strings.Join(spec.Folders, ","), // already sorted by Build
		"dirs-=" + strings.Join(spec.FoldersExclude, ","),
		"words=" + canonBound(spec.MinWords) + ".." + canonBound(spec.MaxWords),
		"links=" + canonBound(spec.MinLinks) + ".." + canonBound(spec.MaxLinks),
		"tasks=" + canonFlag(spec.HasTasks),
		"sort=" + c.SortKey,
		fmt.Sprintf("page=%d+%d", limit, offset),
	}
	return fingerprint.Sum([]byte(strings.Join(parts, "|")))
}

func canonTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func canonBound(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func canonFlag(v *bool) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%t", *v)
}
