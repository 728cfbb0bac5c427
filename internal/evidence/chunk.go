package evidence

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minChunk = 20
	maxChunk = 800
	maxTerms = 12
)

var paragraphSep = regexp.MustCompile(`\n[ \t]*\n`)

// Chunk splits extracted text into paragraph snippets. Short paragraphs are
// merged forward; long ones are split on word boundaries.
func Chunk(text string) []string {
	var (
		out []string
		cur string
	)
	for _, p := range paragraphSep.Split(text, -1) {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		if cur == "" {
			cur = p
		} else {
			cur += " " + p
		}
		if len(cur) >= minChunk {
			out = append(out, splitLong(cur)...)
			cur = ""
		}
	}
	if cur != "" {
		if n := len(out); n > 0 && len(out[n-1])+1+len(cur) <= maxChunk {
			out[n-1] += " " + cur
		} else {
			out = append(out, cur)
		}
	}
	return out
}

func splitLong(s string) []string {
	var out []string
	for len(s) > maxChunk {
		cut := strings.LastIndexByte(s[:maxChunk], ' ')
		if cut <= 0 {
			cut = maxChunk
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "are": true, "was": true, "were": true, "have": true, "has": true,
	"you": true, "your": true, "our": true, "will": true, "into": true, "about": true,
	"role": true, "team": true, "work": true, "experience": true,
}

// Terms tokenizes a query into lowercase search terms.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		if utf8.RuneCountInString(f) < 3 && !strings.ContainsAny(f, "+#") && f != "go" && f != "ai" && f != "ml" {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

// Rank orders snippets by the number of distinct terms they contain, newest
// first on ties, and drops snippets matching nothing. With no terms the most
// recent snippets are returned.
func Rank(snippets []Snippet, terms []string, limit int) []Snippet {
	type scored struct {
		s     Snippet
		score int
	}
	ranked := make([]scored, 0, len(snippets))
	for _, s := range snippets {
		score := 0
		if len(terms) > 0 {
			lower := strings.ToLower(s.Text)
			for _, t := range terms {
				if strings.Contains(lower, t) {
					score++
				}
			}
			if score == 0 {
				continue
			}
		}
		ranked = append(ranked, scored{s: s, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].s.CreatedAt.Equal(ranked[j].s.CreatedAt) {
			return ranked[i].s.CreatedAt.After(ranked[j].s.CreatedAt)
		}
		return ranked[i].s.Position < ranked[j].s.Position
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Snippet, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.s)
	}
	return out
}
