package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/starford/othala/internal/parser"
)

var (
	quotedRe = regexp.MustCompile(`"([^"]*)"`)
	wordRe   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Weight of exact vs expanded term forms. Alternate forms (translit,
// stemmed) match at reduced weight so near-matches rank below literal
// hits.
const (
	exactFactor   = 1.0
	variantFactor = 0.5

	phraseWeight = 2.0
	wordWeight   = 1.0
)

// Variant is one index-normalized form a search term expands to.
type Variant struct {
	Text   string
	Factor float64
}

// SearchTerm is one user keyword (word or quoted phrase) with its
// expansion set.
type SearchTerm struct {
	Original string
	Weight   float64
	Variants []Variant
}

// ExpandTerms splits keywords into quoted phrases and words, then
// expands each into the alternate forms the index may hold: the
// normalized literal, Cyrillic/Latin transliterations, and stripped
// morphological stems. Expansion is skipped when fuzzy matching is off.
func ExpandTerms(keywords string, fuzzy bool) []SearchTerm {
	var terms []SearchTerm

	for _, m := range quotedRe.FindAllStringSubmatch(keywords, -1) {
		phrase := strings.TrimSpace(m[1])
		if phrase == "" {
			continue
		}
		terms = append(terms, expandOne(phrase, phraseWeight, fuzzy))
	}
	remaining := quotedRe.ReplaceAllString(keywords, " ")
	for _, w := range wordRe.FindAllString(remaining, -1) {
		if len([]rune(w)) < 2 {
			continue
		}
		terms = append(terms, expandOne(w, wordWeight, fuzzy))
	}
	return terms
}

func expandOne(original string, weight float64, fuzzy bool) SearchTerm {
	term := SearchTerm{Original: original, Weight: weight}

	seen := make(map[string]struct{})
	add := func(text string, factor float64) {
		text = parser.Normalize(text)
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		term.Variants = append(term.Variants, Variant{Text: text, Factor: factor})
	}

	// Phrases match the index word by word, each at phrase weight.
	words := wordRe.FindAllString(original, -1)
	for _, w := range words {
		add(w, exactFactor)
	}

	if fuzzy {
		for _, w := range words {
			add(transliterate(w), variantFactor)
			for _, stem := range stems(w) {
				add(stem, variantFactor)
			}
		}
	}
	return term
}

// Cyrillic to Latin transliteration. Multi-rune sequences sorted
// longest-first for the reverse direction.
var cyrToLat = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ы': "y", 'э': "e", 'ю': "yu", 'я': "ya",
}

var latToCyr = func() []struct {
	seq string
	out rune
} {
	pairs := []struct {
		seq string
		out rune
	}{}
	for r, s := range cyrToLat {
		pairs = append(pairs, struct {
			seq string
			out rune
		}{s, r})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i].seq) != len(pairs[j].seq) {
			return len(pairs[i].seq) > len(pairs[j].seq)
		}
		return pairs[i].seq < pairs[j].seq
	})
	return pairs
}()

// transliterate maps a term across the Cyrillic/Latin boundary so a
// query in one script finds notes written in the other. Returns the
// input unchanged when nothing maps.
func transliterate(term string) string {
	lower := strings.ToLower(term)
	if strings.ContainsFunc(lower, func(r rune) bool { _, ok := cyrToLat[r]; return ok }) {
		var b strings.Builder
		for _, r := range lower {
			if lat, ok := cyrToLat[r]; ok {
				b.WriteString(lat)
			} else {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	for _, p := range latToCyr {
		if strings.Contains(lower, p.seq) {
			return strings.Replace(lower, p.seq, string(p.out), 1)
		}
	}
	return term
}

// Common inflection endings stripped to approximate a stem.
var (
	rusEndings = []string{"ами", "ять", "ться", "ение", "ost", "ть", "сь", "ся", "ие", "ый", "ая", "ое", "ые", "ов", "ам", "ах", "ем", "ет"}
	engEndings = []string{"ation", "tion", "sion", "ing", "est", "ed", "er", "ly", "es", "s"}
)

// stems returns candidate roots of a term by stripping one common
// ending. A root must keep at least two runes beyond the ending.
func stems(term string) []string {
	lower := strings.ToLower(term)
	var out []string
	for _, endings := range [][]string{rusEndings, engEndings} {
		for _, end := range endings {
			if strings.HasSuffix(lower, end) && len([]rune(lower)) > len([]rune(end))+2 {
				out = append(out, strings.TrimSuffix(lower, end))
			}
		}
	}
	return out
}
