package index

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/othala/internal/models"
)

// PostingsFor returns every posting for a case-normalized term, one row
// per occurrence. Postings are deleted atomically with their document,
// so every DocID returned refers to a live record.
func (db *DB) PostingsFor(term string) ([]models.Posting, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT term, doc_id, pos, weight FROM postings WHERE term = ?`, term)
	if err != nil {
		return nil, fmt.Errorf("index: postings for %q: %w", term, err)
	}
	defer rows.Close()

	var out []models.Posting
	for rows.Next() {
		var p models.Posting
		if err := rows.Scan(&p.Term, &p.DocID, &p.Position, &p.Weight); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// diffPostings reconciles the stored postings of a document with the
// freshly parsed set: terms that vanished are deleted, new terms are
// inserted, and terms whose occurrence list shifted are rewritten.
// Untouched terms cost nothing.
func diffPostings(tx *sql.Tx, docID int64, postings []models.Posting) error {
	oldSigs, err := postingSignatures(tx, docID)
	if err != nil {
		return err
	}

	newGroups := make(map[string][]models.Posting)
	for _, p := range postings {
		newGroups[p.Term] = append(newGroups[p.Term], p)
	}
	newSigs := make(map[string]string, len(newGroups))
	for term, group := range newGroups {
		newSigs[term] = groupSignature(group)
	}

	for term, oldSig := range oldSigs {
		if newSig, ok := newSigs[term]; !ok || newSig != oldSig {
			if _, err := tx.Exec(`DELETE FROM postings WHERE doc_id = ? AND term = ?`, docID, term); err != nil {
				return fmt.Errorf("index: delete postings for %q: %w", term, err)
			}
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO postings (term, doc_id, pos, weight) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare posting insert: %w", err)
	}
	defer stmt.Close()

	for term, group := range newGroups {
		if oldSig, ok := oldSigs[term]; ok && oldSig == newSigs[term] {
			continue
		}
		for _, p := range group {
			if _, err := stmt.Exec(term, docID, p.Position, p.Weight); err != nil {
				return fmt.Errorf("index: insert posting: %w", err)
			}
		}
	}
	return nil
}

// postingSignatures returns term -> occurrence signature for a document.
func postingSignatures(tx *sql.Tx, docID int64) (map[string]string, error) {
	rows, err := tx.Query(`SELECT term, pos, weight FROM postings WHERE doc_id = ? ORDER BY term, pos`, docID)
	if err != nil {
		return nil, fmt.Errorf("index: load postings: %w", err)
	}
	defer rows.Close()

	groups := make(map[string][]models.Posting)
	for rows.Next() {
		var p models.Posting
		if err := rows.Scan(&p.Term, &p.Position, &p.Weight); err != nil {
			return nil, err
		}
		groups[p.Term] = append(groups[p.Term], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sigs := make(map[string]string, len(groups))
	for term, group := range groups {
		sigs[term] = groupSignature(group)
	}
	return sigs, nil
}

// groupSignature encodes one term's occurrence list so two lists
// compare equal iff positions and weights match.
func groupSignature(group []models.Posting) string {
	sort.Slice(group, func(i, j int) bool { return group[i].Position < group[j].Position })
	var b strings.Builder
	for _, p := range group {
		b.WriteString(strconv.Itoa(p.Position))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(p.Weight, 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}
