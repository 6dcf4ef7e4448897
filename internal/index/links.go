package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/othala/internal/models"
)

// EdgesFrom returns the outgoing edges of a document.
func (db *DB) EdgesFrom(id int64) ([]models.LinkEdge, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return queryEdges(db.conn, `source_id = ?`, id)
}

// EdgesTo returns the resolved incoming edges of a document.
func (db *DB) EdgesTo(id int64) ([]models.LinkEdge, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return queryEdges(db.conn, `target_id = ?`, id)
}

// UnresolvedEdges returns every edge whose target title matches no live
// document. These are pending references, not errors; they re-resolve
// when a matching document appears.
func (db *DB) UnresolvedEdges() ([]models.LinkEdge, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return queryEdges(db.conn, `target_id IS NULL`)
}

func queryEdges(q querier, where string, args ...interface{}) ([]models.LinkEdge, error) {
	rows, err := q.Query(`SELECT source_id, target_id, target_title, kind, context FROM links WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("index: edges: %w", err)
	}
	defer rows.Close()

	var out []models.LinkEdge
	for rows.Next() {
		var e models.LinkEdge
		var target sql.NullInt64
		if err := rows.Scan(&e.SourceID, &target, &e.TargetTitle, &e.Kind, &e.Context); err != nil {
			return nil, err
		}
		if target.Valid {
			e.TargetID = target.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// edgeKey identifies an edge within its source document.
type edgeKey struct {
	target string
	kind   string
}

// diffEdges reconciles a document's outgoing edges with the freshly
// parsed set, keyed by (target title, kind). Kept edges retain their
// resolution state; only the context snippet is refreshed when it
// moved. New edges start unresolved and are resolved afterwards.
func diffEdges(tx *sql.Tx, sourceID int64, edges []models.LinkEdge) error {
	rows, err := tx.Query(`SELECT target_title, kind, context FROM links WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("index: load edges: %w", err)
	}
	old := make(map[edgeKey]string)
	for rows.Next() {
		var title, kind, context string
		if err := rows.Scan(&title, &kind, &context); err != nil {
			rows.Close()
			return err
		}
		old[edgeKey{title, kind}] = context
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	fresh := make(map[edgeKey]models.LinkEdge, len(edges))
	for _, e := range edges {
		fresh[edgeKey{e.TargetTitle, e.Kind}] = e
	}

	for key := range old {
		if _, ok := fresh[key]; !ok {
			if _, err := tx.Exec(`DELETE FROM links WHERE source_id = ? AND target_title = ? AND kind = ?`,
				sourceID, key.target, key.kind); err != nil {
				return fmt.Errorf("index: delete edge: %w", err)
			}
		}
	}

	for key, e := range fresh {
		if oldCtx, ok := old[key]; ok {
			if oldCtx != e.Context {
				if _, err := tx.Exec(`UPDATE links SET context = ? WHERE source_id = ? AND target_title = ? AND kind = ?`,
					e.Context, sourceID, key.target, key.kind); err != nil {
					return fmt.Errorf("index: update edge context: %w", err)
				}
			}
			continue
		}
		if _, err := tx.Exec(`INSERT INTO links (source_id, target_id, target_title, kind, context) VALUES (?, NULL, ?, ?, ?)`,
			sourceID, e.TargetTitle, e.Kind, e.Context); err != nil {
			return fmt.Errorf("index: insert edge: %w", err)
		}
	}
	return nil
}

// resolveTarget maps a link target to a document identifier. A target
// resolves only when it names exactly one live document, by title first
// and then by path stem ("folder/note" or "note" without .md); an
// ambiguous target stays unresolved.
func resolveTarget(tx *sql.Tx, target string) (int64, bool, error) {
	id, n, err := lookupIDs(tx, `SELECT id FROM documents WHERE title = ? LIMIT 2`, target)
	if err != nil {
		return 0, false, err
	}
	if n == 1 {
		return id, true, nil
	}
	if n > 1 {
		return 0, false, nil
	}
	id, n, err = lookupIDs(tx, `SELECT id FROM documents WHERE path = ? OR path LIKE '%/' || ? ESCAPE '\' LIMIT 2`,
		target+".md", escapeLike(target)+".md")
	if err != nil {
		return 0, false, err
	}
	if n == 1 {
		return id, true, nil
	}
	return 0, false, nil
}

// escapeLike neutralizes LIKE wildcards in a literal operand, so a
// target like "100% done" matches only itself.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func lookupIDs(tx *sql.Tx, query string, args ...interface{}) (int64, int, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("index: resolve target: %w", err)
	}
	defer rows.Close()
	var first int64
	n := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, 0, err
		}
		if n == 0 {
			first = id
		}
		n++
	}
	return first, n, rows.Err()
}

// resolveOutgoing attempts to resolve every unresolved edge leaving a
// document.
func resolveOutgoing(tx *sql.Tx, sourceID int64) error {
	rows, err := tx.Query(`SELECT rowid, target_title FROM links WHERE source_id = ? AND target_id IS NULL`, sourceID)
	if err != nil {
		return fmt.Errorf("index: unresolved outgoing: %w", err)
	}
	type pending struct {
		rowid int64
		title string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.rowid, &p.title); err != nil {
			rows.Close()
			return err
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range todo {
		id, ok, err := resolveTarget(tx, p.title)
		if err != nil {
			return err
		}
		if ok {
			if _, err := tx.Exec(`UPDATE links SET target_id = ? WHERE rowid = ?`, id, p.rowid); err != nil {
				return fmt.Errorf("index: resolve outgoing: %w", err)
			}
		}
	}
	return nil
}

// reresolveIncoming re-evaluates incoming edges after a document is
// created or retitled: edges previously resolved to it are re-checked
// against its new identity (falling back to unresolved), and pending
// edges naming the new title or stem get a chance to resolve.
func reresolveIncoming(tx *sql.Tx, doc models.Document, oldTitle string) error {
	// Edges currently pointing here may name the old title.
	rows, err := tx.Query(`SELECT rowid, target_title FROM links WHERE target_id = ?`, doc.ID)
	if err != nil {
		return fmt.Errorf("index: incoming edges: %w", err)
	}
	type edge struct {
		rowid int64
		title string
	}
	var incoming []edge
	for rows.Next() {
		var e edge
		if err := rows.Scan(&e.rowid, &e.title); err != nil {
			rows.Close()
			return err
		}
		incoming = append(incoming, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	stem := pathStem(doc.Path)
	for _, e := range incoming {
		if e.title == doc.Title || e.title == stem || e.title == pathNoExt(doc.Path) {
			continue
		}
		id, ok, resolveErr := resolveTarget(tx, e.title)
		if resolveErr != nil {
			return resolveErr
		}
		var val interface{}
		if ok {
			val = id
		}
		if _, err := tx.Exec(`UPDATE links SET target_id = ? WHERE rowid = ?`, val, e.rowid); err != nil {
			return fmt.Errorf("index: re-resolve incoming: %w", err)
		}
	}

	// Pending edges naming the new identity.
	for _, name := range []string{doc.Title, stem, pathNoExt(doc.Path)} {
		if name == "" {
			continue
		}
		if err := resolvePending(tx, name); err != nil {
			return err
		}
	}
	// The old title may still match another document.
	if oldTitle != "" && oldTitle != doc.Title {
		if err := resolvePending(tx, oldTitle); err != nil {
			return err
		}
	}
	return nil
}

// resolvePending resolves every unresolved edge whose target names the
// given title, if the title now identifies exactly one document.
func resolvePending(tx *sql.Tx, title string) error {
	if title == "" {
		return nil
	}
	id, ok, err := resolveTarget(tx, title)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := tx.Exec(`UPDATE links SET target_id = ? WHERE target_id IS NULL AND target_title = ?`, id, title); err != nil {
		return fmt.Errorf("index: resolve pending: %w", err)
	}
	return nil
}
