package cache

import (
	"fmt"
	"strings"
	"testing"

	"github.com/starford/othala/internal/models"
)

// prefixScope matches documents under one folder prefix.
type prefixScope struct {
	prefix string
}

func (s prefixScope) Contains(doc models.Document) bool {
	return strings.HasPrefix(doc.Path, s.prefix+"/")
}

// vaultScope matches everything.
type vaultScope struct{}

func (vaultScope) Contains(models.Document) bool { return true }

func TestGetReturnsStoredValue(t *testing.T) {
	c := New(1024)
	c.Put("sig", "result", 100, vaultScope{}, c.Generation())

	v, ok := c.Get("sig")
	if !ok || v.(string) != "result" {
		t.Errorf("Get = %v, %v", v, ok)
	}
	if _, ok := c.Get("other"); ok {
		t.Error("unknown signature must miss")
	}
}

func TestByteBudgetEvictsOldest(t *testing.T) {
	c := New(300)
	c.Put("a", "va", 100, vaultScope{}, c.Generation())
	c.Put("b", "vb", 100, vaultScope{}, c.Generation())
	c.Put("c", "vc", 100, vaultScope{}, c.Generation())

	// Touch "a" so "b" is the least recently used.
	c.Get("a")
	c.Put("d", "vd", 100, vaultScope{}, c.Generation())

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	for _, sig := range []string{"a", "c", "d"} {
		if _, ok := c.Get(sig); !ok {
			t.Errorf("entry %q should have survived", sig)
		}
	}
	if st := c.Snapshot(); st.UsedBytes > 300 {
		t.Errorf("used bytes %d exceed budget", st.UsedBytes)
	}
}

func TestOversizedValueNotCached(t *testing.T) {
	c := New(100)
	c.Put("big", "value", 200, vaultScope{}, c.Generation())
	if _, ok := c.Get("big"); ok {
		t.Error("value larger than the budget must not be cached")
	}
}

func TestZeroBudgetDisables(t *testing.T) {
	c := New(0)
	c.Put("sig", "v", 1, vaultScope{}, c.Generation())
	if _, ok := c.Get("sig"); ok {
		t.Error("zero budget must disable caching")
	}
}

func TestInvalidateByScope(t *testing.T) {
	c := New(4096)
	c.Put("projects", "vp", 10, prefixScope{"projects"}, c.Generation())
	c.Put("journal", "vj", 10, prefixScope{"journal"}, c.Generation())
	c.Put("vault", "vv", 10, vaultScope{}, c.Generation())

	removed := c.Invalidate(models.Document{Path: "projects/note.md"})
	if removed != 2 {
		t.Errorf("Invalidate removed %d entries, want 2", removed)
	}
	if _, ok := c.Get("projects"); ok {
		t.Error("overlapping folder scope must be invalidated")
	}
	if _, ok := c.Get("vault"); ok {
		t.Error("whole-vault scope must be invalidated by any change")
	}
	if _, ok := c.Get("journal"); !ok {
		t.Error("disjoint folder scope must survive")
	}
}

func TestStalePutAfterInvalidationDropped(t *testing.T) {
	c := New(1024)

	// A query misses, captures the generation, and computes its result
	// against the index. The document mutates (and invalidates) before
	// the result is stored.
	if _, ok := c.Get("sig"); ok {
		t.Fatal("empty cache must miss")
	}
	gen := c.Generation()
	c.Invalidate(models.Document{Path: "projects/note.md"})

	c.Put("sig", "computed against old index", 10, vaultScope{}, gen)
	if _, ok := c.Get("sig"); ok {
		t.Error("result computed before an invalidation must not be stored after it")
	}

	// The next computation observes the post-mutation generation and
	// caches normally.
	gen = c.Generation()
	c.Put("sig", "fresh", 10, vaultScope{}, gen)
	if v, ok := c.Get("sig"); !ok || v.(string) != "fresh" {
		t.Errorf("fresh result should cache: %v, %v", v, ok)
	}
}

func TestStalePutAfterPurgeDropped(t *testing.T) {
	c := New(1024)
	gen := c.Generation()
	c.Purge()
	c.Put("sig", "stale", 10, vaultScope{}, gen)
	if _, ok := c.Get("sig"); ok {
		t.Error("result computed before a purge must not be stored after it")
	}
}

func TestNilScopeAlwaysInvalidated(t *testing.T) {
	c := New(1024)
	c.Put("sig", "v", 10, nil, c.Generation())
	if n := c.Invalidate(models.Document{Path: "any.md"}); n != 1 {
		t.Errorf("nil scope: removed %d, want 1", n)
	}
}

func TestPurge(t *testing.T) {
	c := New(1024)
	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("s%d", i), i, 10, vaultScope{}, c.Generation())
	}
	c.Purge()
	st := c.Snapshot()
	if st.Entries != 0 || st.UsedBytes != 0 {
		t.Errorf("after purge: %+v", st)
	}
}

func TestReplaceUpdatesAccounting(t *testing.T) {
	c := New(1024)
	c.Put("sig", "old", 100, vaultScope{}, c.Generation())
	c.Put("sig", "new", 50, vaultScope{}, c.Generation())

	v, ok := c.Get("sig")
	if !ok || v.(string) != "new" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	if st := c.Snapshot(); st.UsedBytes != 50 || st.Entries != 1 {
		t.Errorf("accounting after replace: %+v", st)
	}
}
