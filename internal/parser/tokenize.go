package parser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	// Markdown punctuation stripped before tokenizing the body.
	markupRe = regexp.MustCompile("[#*`>\\[\\]()!|]")

	// NFKD decompose, drop combining marks, recompose. Folds diacritics
	// so "café" and "cafe" index to the same term.
	foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize returns the canonical index form of a token: diacritics
// folded, lowercased. Search-side term expansion uses the same form so
// postings lookups stay exact.
func Normalize(token string) string {
	folded, _, err := transform.String(foldTransformer, token)
	if err != nil {
		folded = token
	}
	return strings.ToLower(folded)
}

// tokenize emits the indexable term occurrences for a document: title
// tokens first (higher weight), then body tokens, with a single running
// position counter. Tokens shorter than two runes are dropped.
func tokenize(title, body string) []Term {
	var terms []Term
	pos := 0

	emit := func(text string, weight float64) {
		for _, tok := range tokenRe.FindAllString(text, -1) {
			if len([]rune(tok)) < 2 {
				pos++
				continue
			}
			terms = append(terms, Term{Text: Normalize(tok), Position: pos, Weight: weight})
			pos++
		}
	}

	emit(title, TitleTermWeight)
	emit(markupRe.ReplaceAllString(body, " "), BodyTermWeight)
	return terms
}
