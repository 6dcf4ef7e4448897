package mcpserver

// FilterReference documents the search_notes filter object for LLM
// consumers. Unknown fields and contradictory combinations are rejected
// with a descriptive error, never silently ignored.
const FilterReference = `# Othala Search Filter Reference

The ` + "`" + `filter` + "`" + ` argument of ` + "`" + `search_notes` + "`" + ` is a JSON object. All fields are
optional; an empty object (or no filter at all) matches every note.

` + "```" + `json
{
  "tags_include": ["project-x", "meeting-notes"],
  "tags_exclude": ["archive"],
  "tag_mode": "any",
  "created_after": "2025-01-01",
  "created_before": "2025-06-30",
  "modified_after": "Jan 2 2025",
  "modified_before": "2025-06-30T18:00:00Z",
  "folders": ["projects", "journal/2025"],
  "folders_exclude": ["projects/archive"],
  "min_words": 100,
  "max_words": 5000,
  "min_links": 1,
  "max_links": 50,
  "has_tasks": true
}
` + "```" + `

## Rules

1. **Tags** combine with ` + "`" + `tag_mode` + "`" + `: ` + "`" + `"any"` + "`" + ` (default) matches notes carrying
   at least one included tag, ` + "`" + `"all"` + "`" + ` requires every one. A tag listed in
   both include and exclude is an error.
2. **Dates** accept most common formats (ISO dates, RFC3339, "Jan 2 2006").
   An after-bound later than its before-bound is an error.
3. **Folders** are vault-relative prefixes and include all subfolders.
   A folder both included and excluded is an error.
4. **Counts** (` + "`" + `min_words` + "`" + `/` + "`" + `max_words` + "`" + `, ` + "`" + `min_links` + "`" + `/` + "`" + `max_links` + "`" + `) are inclusive
   bounds; a min above its max is an error.
5. **Sort** is passed separately: ` + "`" + `relevance` + "`" + ` (default), ` + "`" + `modified` + "`" + `,
   ` + "`" + `created` + "`" + `, ` + "`" + `title` + "`" + `, or ` + "`" + `size` + "`" + `. Without keywords, relevance falls back
   to most recently modified.
`
