package parser

import (
	"testing"

	"github.com/starford/othala/internal/models"
)

func TestParseFrontmatterTitleAndTags(t *testing.T) {
	data := []byte(`---
title: My Note
tags:
  - alpha
  - beta
---

# Heading

Body text with #inline-tag here.
`)
	res, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Title != "My Note" {
		t.Errorf("title = %q, want %q", res.Title, "My Note")
	}
	want := map[string]bool{"alpha": true, "beta": true, "inline-tag": true}
	if len(res.Tags) != 3 {
		t.Fatalf("tags = %v, want 3 entries", res.Tags)
	}
	for _, tag := range res.Tags {
		if !want[tag] {
			t.Errorf("unexpected tag %q", tag)
		}
	}
}

func TestParseTitleFallsBackToHeading(t *testing.T) {
	res, err := Parse([]byte("# First Heading\n\nbody"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Title != "First Heading" {
		t.Errorf("title = %q, want %q", res.Title, "First Heading")
	}
}

func TestParseMalformedFrontmatterDegrades(t *testing.T) {
	data := []byte("---\ntitle: [unclosed\n---\n\n# Heading\n\nSee [[Other Note]].")
	res, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse should not fail on bad YAML: %v", err)
	}
	// Bad YAML drops the frontmatter but never the body scanners.
	if len(res.Links) != 1 || res.Links[0].Target != "Other Note" {
		t.Errorf("links = %+v, want one link to Other Note", res.Links)
	}
	if res.Title != "Heading" {
		t.Errorf("title = %q, want %q", res.Title, "Heading")
	}
}

func TestExtractLinksKindsAndAliases(t *testing.T) {
	body := "See [[Target]] and ![[Image Note]] and [[Target|display text]]."
	links := ExtractLinks(body)

	var wiki, embed int
	for _, l := range links {
		switch l.Kind {
		case models.LinkKindWiki:
			wiki++
			if l.Target != "Target" {
				t.Errorf("wiki target = %q", l.Target)
			}
		case models.LinkKindEmbed:
			embed++
			if l.Target != "Image Note" {
				t.Errorf("embed target = %q", l.Target)
			}
		}
	}
	// [[Target]] and [[Target|display]] dedupe to one wiki edge.
	if wiki != 1 || embed != 1 {
		t.Errorf("wiki = %d, embed = %d, want 1 and 1", wiki, embed)
	}
}

func TestParseTasks(t *testing.T) {
	withTasks, _ := Parse([]byte("- [ ] open item\n- [x] done item"))
	if !withTasks.HasTasks {
		t.Error("expected HasTasks for checkbox list")
	}
	without, _ := Parse([]byte("- plain list item"))
	if without.HasTasks {
		t.Error("plain list must not count as tasks")
	}
}

func TestTokenizeWeightsAndPositions(t *testing.T) {
	res, err := Parse([]byte("---\ntitle: Alpha Beta\n---\n\ngamma delta"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	byTerm := make(map[string]Term)
	for _, term := range res.Terms {
		byTerm[term.Text] = term
	}
	if byTerm["alpha"].Weight != TitleTermWeight {
		t.Errorf("title term weight = %v, want %v", byTerm["alpha"].Weight, TitleTermWeight)
	}
	if byTerm["gamma"].Weight != BodyTermWeight {
		t.Errorf("body term weight = %v, want %v", byTerm["gamma"].Weight, BodyTermWeight)
	}
	if byTerm["alpha"].Position >= byTerm["gamma"].Position {
		t.Error("title terms must precede body terms in position order")
	}
}

func TestNormalizeFoldsDiacriticsAndCase(t *testing.T) {
	cases := map[string]string{
		"Café":   "cafe",
		"NAÏVE":  "naive",
		"Привет": "привет",
		"plain":  "plain",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	data := []byte("---\ntitle: Same\n---\n\nSame #tag [[Link]] body")
	a, _ := Parse(data)
	b, _ := Parse(data)
	if a.Title != b.Title || a.WordCount != b.WordCount || len(a.Terms) != len(b.Terms) {
		t.Error("identical bytes must parse identically")
	}
}
