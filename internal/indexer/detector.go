package indexer

import (
	"sort"

	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/storage"
)

// Changes is the classified diff between the vault on disk and the
// index: paths to (re)index, paths to drop, and per-file listing errors
// that did not abort the scan. Slices are sorted for deterministic
// application order.
type Changes struct {
	Added    []string
	Modified []string
	Removed  []string
	Errors   []storage.PathError
}

// Empty reports whether the scan found nothing to do.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Scan diffs the storage listing against the stored fingerprints. A
// file is Modified only when its content fingerprint differs; touched
// but byte-identical files produce no event.
func Scan(db *index.DB, provider storage.Provider) (*Changes, error) {
	metas, perrs, err := provider.List("")
	if err != nil {
		return nil, err
	}
	known, err := db.AllFingerprints()
	if err != nil {
		return nil, err
	}

	c := &Changes{Errors: perrs}
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		prev, ok := known[m.Path]
		switch {
		case !ok:
			c.Added = append(c.Added, m.Path)
		case prev != m.Fingerprint:
			c.Modified = append(c.Modified, m.Path)
		}
	}
	for p := range known {
		if _, ok := disk[p]; !ok {
			c.Removed = append(c.Removed, p)
		}
	}

	sort.Strings(c.Added)
	sort.Strings(c.Modified)
	sort.Strings(c.Removed)
	return c, nil
}
