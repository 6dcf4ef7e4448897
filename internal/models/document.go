// Package models defines the domain types for Othala.
package models

import "time"

// Document is the indexed record for one vault note. The ID is assigned
// by the store on first insert and is never reused; all other components
// refer to documents by it.
type Document struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Folder      string    `json:"folder"` // immediate parent folder name, "" at vault root
	Fingerprint string    `json:"fingerprint"`
	WordCount   int       `json:"word_count"`
	LinkCount   int       `json:"link_count"`
	HasTasks    bool      `json:"has_tasks"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Posting is one occurrence of a term in a document. Title tokens carry
// a higher weight than body tokens; the search engine aggregates weight
// per document at query time.
type Posting struct {
	Term     string  `json:"term"`
	DocID    int64   `json:"doc_id"`
	Position int     `json:"position"`
	Weight   float64 `json:"weight"`
}

// Link kinds.
const (
	LinkKindWiki  = "wikilink"
	LinkKindEmbed = "embed"
)

// LinkEdge is a directed edge in the note graph. TargetID is zero while
// the target title does not match any live document; the edge is kept
// as an unresolved reference and re-evaluated when titles change.
type LinkEdge struct {
	SourceID    int64  `json:"source_id"`
	TargetID    int64  `json:"target_id,omitempty"`
	TargetTitle string `json:"target_title"`
	Kind        string `json:"kind"`
	Context     string `json:"context,omitempty"`
}

// Resolved reports whether the edge currently points at a live document.
func (e LinkEdge) Resolved() bool { return e.TargetID != 0 }

// FileMeta is the lightweight per-file record returned by storage listings.
type FileMeta struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	UpdatedAt   time.Time `json:"updated_at"`
}
