package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

const docColumns = `id, path, title, folder, fingerprint, word_count, link_count, has_tasks, tags, created_at, updated_at`

// UpsertResult reports what a transactional upsert did.
type UpsertResult struct {
	Doc          models.Document
	Created      bool
	TitleChanged bool
	OldTitle     string
	OldFolder    string
	Unchanged    bool // fingerprint matched, nothing mutated
}

// UpsertDocument inserts or updates one document together with its
// postings and outgoing edges, in a single transaction: either the
// whole diff applies or none of it does. An existing record keeps its
// identifier and creation timestamp; postings and edges are diffed per
// term / per target rather than wholesale replaced. An unchanged
// fingerprint short-circuits with no mutation at all.
//
// Incoming edges from other documents are re-evaluated when the
// document is created or its title changes, so pending references
// resolve and stale ones revert to unresolved.
func (db *DB) UpsertDocument(doc models.Document, postings []models.Posting, edges []models.LinkEdge) (*UpsertResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	prev, err := getDocWhere(tx, "path = ?", doc.Path)
	if err != nil && err != apperr.ErrNotFound {
		return nil, err
	}
	exists := err == nil

	if exists && prev.Fingerprint == doc.Fingerprint {
		return &UpsertResult{Doc: *prev, Unchanged: true}, nil
	}

	res := &UpsertResult{}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	tagsJSON, _ := json.Marshal(nonNil(doc.Tags))

	if exists {
		doc.ID = prev.ID
		doc.CreatedAt = prev.CreatedAt
		_, err = tx.Exec(`
			UPDATE documents
			SET title = ?, folder = ?, fingerprint = ?, word_count = ?,
			    link_count = ?, has_tasks = ?, tags = ?, updated_at = ?
			WHERE id = ?
		`, doc.Title, doc.Folder, doc.Fingerprint, doc.WordCount,
			doc.LinkCount, doc.HasTasks, string(tagsJSON), doc.UpdatedAt, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("index: update document: %w", err)
		}
		res.TitleChanged = prev.Title != doc.Title
		res.OldTitle = prev.Title
		res.OldFolder = prev.Folder
	} else {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = doc.UpdatedAt
		}
		if doc.ID != 0 {
			// Explicit identifier, used by rebuilds to carry identities
			// from the previous index into the fresh one.
			_, execErr := tx.Exec(`
				INSERT INTO documents (id, path, title, folder, fingerprint, word_count, link_count, has_tasks, tags, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, doc.ID, doc.Path, doc.Title, doc.Folder, doc.Fingerprint, doc.WordCount,
				doc.LinkCount, doc.HasTasks, string(tagsJSON), doc.CreatedAt, doc.UpdatedAt)
			if execErr != nil {
				return nil, fmt.Errorf("index: insert document: %w", execErr)
			}
		} else {
			r, execErr := tx.Exec(`
				INSERT INTO documents (path, title, folder, fingerprint, word_count, link_count, has_tasks, tags, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, doc.Path, doc.Title, doc.Folder, doc.Fingerprint, doc.WordCount,
				doc.LinkCount, doc.HasTasks, string(tagsJSON), doc.CreatedAt, doc.UpdatedAt)
			if execErr != nil {
				return nil, fmt.Errorf("index: insert document: %w", execErr)
			}
			doc.ID, err = r.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("index: insert id: %w", err)
			}
		}
		res.Created = true
	}

	if err := diffPostings(tx, doc.ID, postings); err != nil {
		return nil, err
	}
	if err := diffEdges(tx, doc.ID, edges); err != nil {
		return nil, err
	}
	if err := resolveOutgoing(tx, doc.ID); err != nil {
		return nil, err
	}
	if res.Created || res.TitleChanged {
		if err := reresolveIncoming(tx, doc, res.OldTitle); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("index: commit upsert: %w", err)
	}
	res.Doc = doc
	return res, nil
}

// RemoveDocument deletes a document, its postings, and its outgoing
// edges atomically. Incoming edges from other documents revert to
// unresolved references; edges that can now resolve to a previously
// shadowed duplicate title are re-pointed.
func (db *DB) RemoveDocument(id int64) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := getDocWhere(tx, "id = ?", id)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM postings WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete postings: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete outgoing links: %w", err)
	}
	if _, err := tx.Exec(`UPDATE links SET target_id = NULL WHERE target_id = ?`, id); err != nil {
		return fmt.Errorf("index: unresolve incoming links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}

	// A duplicate title shadowed by this document may be unique now.
	if err := resolvePending(tx, doc.Title); err != nil {
		return err
	}
	if stem := pathStem(doc.Path); stem != doc.Title {
		if err := resolvePending(tx, stem); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit remove: %w", err)
	}
	return nil
}

// GetDocument returns the record for id, or apperr.ErrNotFound.
func (db *DB) GetDocument(id int64) (*models.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return getDocWhere(db.conn, "id = ?", id)
}

// GetByPath returns the record at the given vault-relative path.
func (db *DB) GetByPath(p string) (*models.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return getDocWhere(db.conn, "path = ?", p)
}

// AllFingerprints returns path -> fingerprint for every live document.
// The change detector diffs this against the on-disk state.
func (db *DB) AllFingerprints() (map[string]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT path, fingerprint FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all fingerprints: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, fp string
		if err := rows.Scan(&p, &fp); err != nil {
			return nil, err
		}
		out[p] = fp
	}
	return out, rows.Err()
}

// Identity is the stable part of a document record: the identifier and
// creation timestamp assigned when its path was first indexed.
type Identity struct {
	ID        int64
	CreatedAt time.Time
}

// PathIdentities returns path -> identity for every live document.
// Rebuilds carry these into the fresh index so identifiers and creation
// timestamps survive the substitution.
func (db *DB) PathIdentities() (map[string]Identity, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT path, id, created_at FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: path identities: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Identity)
	for rows.Next() {
		var p string
		var ident Identity
		if err := rows.Scan(&p, &ident.ID, &ident.CreatedAt); err != nil {
			return nil, err
		}
		out[p] = ident
	}
	return out, rows.Err()
}

// TitleEntry is the slim projection the resolver builds its index from.
type TitleEntry struct {
	ID     int64
	Title  string
	Folder string
	Path   string
}

// Titles returns the title projection of every live document.
func (db *DB) Titles() ([]TitleEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT id, title, folder, path FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: titles: %w", err)
	}
	defer rows.Close()
	var out []TitleEntry
	for rows.Next() {
		var e TitleEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Folder, &e.Path); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Filter pre-prunes and then authoritatively matches documents.
// Compiled query predicates implement it; SQL() returns a conservative
// WHERE clause over the structured columns (folder, dates, counts) so
// AllDocuments never scans postings when no keyword is involved, and
// Match re-checks everything including tag membership.
type Filter interface {
	SQL() (where string, args []interface{})
	Match(models.Document) bool
}

// AllDocuments returns every live document matching f (all documents
// when f is nil), ordered by identifier.
func (db *DB) AllDocuments(f Filter) ([]models.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	q := `SELECT ` + docColumns + ` FROM documents`
	var args []interface{}
	if f != nil {
		if where, wargs := f.SQL(); where != "" {
			q += ` WHERE ` + where
			args = wargs
		}
	}
	q += ` ORDER BY id`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: all documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, scanErr := scanDoc(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if f != nil && !f.Match(*doc) {
			continue
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// DocumentsByIDs loads the given records in one query.
func (db *DB) DocumentsByIDs(ids []int64) (map[int64]models.Document, error) {
	if len(ids) == 0 {
		return map[int64]models.Document{}, nil
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.conn.Query(`SELECT `+docColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: documents by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.Document, len(ids))
	for rows.Next() {
		doc, scanErr := scanDoc(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out[doc.ID] = *doc
	}
	return out, rows.Err()
}

// Count returns the number of live documents.
func (db *DB) Count() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocRow(s rowScanner) (*models.Document, error) {
	var doc models.Document
	var tagsJSON string
	err := s.Scan(&doc.ID, &doc.Path, &doc.Title, &doc.Folder, &doc.Fingerprint,
		&doc.WordCount, &doc.LinkCount, &doc.HasTasks, &tagsJSON,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &doc.Tags); err != nil {
		doc.Tags = nil
	}
	return &doc, nil
}

func scanDoc(rows *sql.Rows) (*models.Document, error) {
	doc, err := scanDocRow(rows)
	if err != nil {
		return nil, fmt.Errorf("index: scan document: %w", err)
	}
	return doc, nil
}

func getDocWhere(q querier, where string, args ...interface{}) (*models.Document, error) {
	row := q.QueryRow(`SELECT `+docColumns+` FROM documents WHERE `+where, args...)
	doc, err := scanDocRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return doc, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func pathStem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, ".md")
}

func pathNoExt(p string) string {
	return strings.TrimSuffix(p, ".md")
}
