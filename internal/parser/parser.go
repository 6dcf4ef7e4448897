// Package parser derives structured metadata from raw Markdown content:
// frontmatter, title, tags, link references, task markers, and the
// indexable term list. Parsing is deterministic and total: malformed
// markup degrades to plain text, it never raises. Tag and link
// extraction run as independent scanners over the same text so a
// malformed tag cannot suppress link extraction.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/othala/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	taskRe     = regexp.MustCompile(`(?m)^\s*[-*+]\s\[[ xX]\]`)
)

// Link is one outgoing reference found in the body.
type Link struct {
	Target  string
	Kind    string // models.LinkKindWiki or models.LinkKindEmbed
	Context string // trimmed text surrounding the reference
}

// Term is one indexable token occurrence.
type Term struct {
	Text     string
	Position int
	Weight   float64
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Tags        []string
	Links       []Link
	HasTasks    bool
	WordCount   int
	Terms       []Term
}

// Term weights. Title tokens rank above body tokens when the search
// engine aggregates per-document scores.
const (
	TitleTermWeight = 2.0
	BodyTermWeight  = 1.0
)

// Parse extracts the structured record fields from raw Markdown bytes.
// Same bytes always produce the same Result.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	title := deriveTitle(fm, body)
	r := &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       title,
		Tags:        extractTags(body, fm),
		Links:       ExtractLinks(body),
		HasTasks:    taskRe.MatchString(body),
		WordCount:   len(strings.Fields(body)),
	}
	r.Terms = tokenize(title, body)
	return r, nil
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the Markdown body. Missing or invalid frontmatter
// degrades to treating the whole content as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}

	return fm, body
}

// ExtractLinks returns deduplicated wikilink and embed targets with the
// text surrounding each first occurrence.
func ExtractLinks(body string) []Link {
	matches := wikilinkRe.FindAllStringSubmatchIndex(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []Link
	for _, m := range matches {
		kind := models.LinkKindWiki
		if body[m[2]:m[3]] == "!" {
			kind = models.LinkKindEmbed
		}
		raw := body[m[4]:m[5]]
		// Handle aliases: [[Target|Alias]] resolves to Target.
		target := raw
		if i := strings.Index(raw, "|"); i >= 0 {
			target = raw[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		key := kind + "\x00" + target
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Link{
			Target:  target,
			Kind:    kind,
			Context: linkContext(body, m[0], m[1]),
		})
	}
	return out
}

// linkContext returns the line-bounded snippet around [start,end),
// capped at 60 runes on each side.
func linkContext(body string, start, end int) string {
	lo := strings.LastIndexByte(body[:start], '\n') + 1
	hi := end + strings.IndexByte(body[end:]+"\n", '\n')
	snippet := body[lo:hi]
	runes := []rune(snippet)
	if len(runes) > 160 {
		runes = runes[:160]
	}
	return strings.TrimSpace(string(runes))
}

// extractTags collects #tags from body and from the frontmatter "tags"
// field, deduplicated, in first-seen order.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string

	if fm != nil {
		if raw, ok := fm["tags"]; ok {
			switch v := raw.(type) {
			case []interface{}:
				for _, item := range v {
					if s, ok := item.(string); ok {
						s = strings.TrimSpace(s)
						if s != "" {
							if _, dup := seen[s]; !dup {
								seen[s] = struct{}{}
								out = append(out, s)
							}
						}
					}
				}
			}
		}
	}

	matches := tagRe.FindAllStringSubmatch(body, -1)
	for _, m := range matches {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first H1 heading, otherwise empty string. Callers fall back to the
// file name stem.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
