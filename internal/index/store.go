// Package index provides the SQLite-backed document store: records,
// inverted postings, and link edges. It is the single source of truth;
// the resolver and result cache hold derived, rebuildable views.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	path        TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	folder      TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	word_count  INTEGER NOT NULL DEFAULT 0,
	link_count  INTEGER NOT NULL DEFAULT 0,
	has_tasks   INTEGER NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_title   ON documents(title);
CREATE INDEX IF NOT EXISTS idx_documents_folder  ON documents(folder);
CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

CREATE TABLE IF NOT EXISTS postings (
	term   TEXT NOT NULL,
	doc_id INTEGER NOT NULL,
	pos    INTEGER NOT NULL,
	weight REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_postings_term ON postings(term);
CREATE INDEX IF NOT EXISTS idx_postings_doc  ON postings(doc_id);

CREATE TABLE IF NOT EXISTS links (
	source_id    INTEGER NOT NULL,
	target_id    INTEGER,
	target_title TEXT NOT NULL,
	kind         TEXT NOT NULL DEFAULT 'wikilink',
	context      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);
CREATE INDEX IF NOT EXISTS idx_links_title  ON links(target_title);
`

// DB wraps a sql.DB with index-specific operations. The mutex only
// guards the connection pointer: Adopt swaps it during a rebuild while
// readers on the old connection drain. Row-level consistency comes from
// SQLite transactions and WAL snapshot isolation.
type DB struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

func openConn(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return conn, nil
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := openConn(path)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Adopt atomically substitutes the database file with the one at
// tmpPath (a fully built replacement index, already closed by its
// builder) and reopens. In-flight readers finish against the old
// connection before the swap starts; a failure at any point restores
// the previous file, which stays authoritative.
func (db *DB) Adopt(tmpPath string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Closing checkpoints and releases the old WAL sidecars.
	_ = db.conn.Close()

	backup := db.path + ".old"
	if err := os.Rename(db.path, backup); err != nil && !os.IsNotExist(err) {
		conn, openErr := openConn(db.path)
		if openErr != nil {
			return fmt.Errorf("index: adopt backup failed and reopen failed: %w", openErr)
		}
		db.conn = conn
		return fmt.Errorf("index: adopt backup: %w", err)
	}

	restore := func() {
		_ = os.Rename(backup, db.path)
	}

	if err := os.Rename(tmpPath, db.path); err != nil {
		restore()
		conn, openErr := openConn(db.path)
		if openErr == nil {
			db.conn = conn
		}
		return fmt.Errorf("index: adopt rename: %w", err)
	}

	newConn, err := openConn(db.path)
	if err != nil {
		restore()
		conn, openErr := openConn(db.path)
		if openErr == nil {
			db.conn = conn
		}
		return fmt.Errorf("index: adopt reopen: %w", err)
	}
	db.conn = newConn
	_ = os.Remove(backup)
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}
