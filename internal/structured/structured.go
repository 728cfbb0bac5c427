// Package structured derives an ordered section view from raw document
// content and applies section-level edits back onto it.
package structured

import (
	"regexp"
	"strconv"
	"strings"

	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/telemetry"
)

// CatchAllKey names the single section produced when raw content has no headings.
const CatchAllKey = "document"

// Section is one titled region of a document.
type Section struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Document is the derived section projection of a document's content.
type Document struct {
	Sections []Section `json:"sections"`
}

// Source is the raw content of a document. Résumés carry LaTeX, proposals
// carry an ordered list of sections.
type Source struct {
	Latex    string    `json:"latex,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// IsSectioned reports whether the source is a sectioned proposal body.
func (s Source) IsSectioned() bool {
	return len(s.Sections) > 0 && strings.TrimSpace(s.Latex) == ""
}

// Clone returns a deep copy of the source.
func (s Source) Clone() Source {
	out := Source{Latex: s.Latex}
	if s.Sections != nil {
		out.Sections = append([]Section(nil), s.Sections...)
	}
	return out
}

// Clone returns a deep copy of the projection.
func (d Document) Clone() Document {
	if d.Sections == nil {
		return Document{}
	}
	return Document{Sections: append([]Section(nil), d.Sections...)}
}

// Find returns the first section whose key or title matches keyOrTitle.
func (d Document) Find(keyOrTitle string) (Section, bool) {
	idx := findSection(d.Sections, keyOrTitle)
	if idx < 0 {
		return Section{}, false
	}
	return d.Sections[idx], true
}

// Keys lists section keys in order.
func (d Document) Keys() []string {
	out := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		out = append(out, s.Key)
	}
	return out
}

// EnsureStructured returns a projection consistent with src. An existing
// projection that already matches is returned unchanged; otherwise one is
// derived. Content that cannot be split yields a single catch-all section.
func EnsureStructured(src Source, existing *Document) (doc Document) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Error("structured.derive_failed", map[string]any{"error": rec})
			doc = catchAll(src)
		}
	}()

	derived := derive(src)
	if existing != nil && equalSections(existing.Sections, derived.Sections) {
		return existing.Clone()
	}
	return derived
}

func derive(src Source) Document {
	if src.IsSectioned() {
		return Document{Sections: NormalizeSections(src.Sections)}
	}
	spans := latexSpans(src.Latex)
	if len(spans) == 0 {
		return catchAll(src)
	}
	sections := make([]Section, 0, len(spans))
	seen := make(map[string]int, len(spans))
	for i, sp := range spans {
		sections = append(sections, Section{
			Key:     uniqueKey(seen, Slug(sp.title), i),
			Title:   sp.title,
			Content: strings.TrimSpace(src.Latex[sp.bodyStart:sp.bodyEnd]),
		})
	}
	return Document{Sections: sections}
}

func catchAll(src Source) Document {
	text := src.Latex
	if text == "" && len(src.Sections) > 0 {
		text = Render(src)
	}
	if strings.TrimSpace(text) == "" {
		return Document{Sections: []Section{}}
	}
	return Document{Sections: []Section{{Key: CatchAllKey, Title: "Document", Content: strings.TrimSpace(text)}}}
}

// NormalizeSections fills missing keys and titles and de-duplicates keys.
func NormalizeSections(in []Section) []Section {
	out := make([]Section, 0, len(in))
	seen := make(map[string]int, len(in))
	for i, s := range in {
		title := strings.TrimSpace(s.Title)
		key := Slug(s.Key)
		if key == "" {
			key = Slug(title)
		}
		if title == "" {
			title = strings.TrimSpace(s.Key)
		}
		out = append(out, Section{
			Key:     uniqueKey(seen, key, i),
			Title:   title,
			Content: s.Content,
		})
	}
	return out
}

var (
	latexCommandRe = regexp.MustCompile(`\\[a-zA-Z]+\*?`)
	nonSlugRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slug turns a heading into a stable section key, e.g. "Work Experience" -> "work_experience".
func Slug(title string) string {
	s := latexCommandRe.ReplaceAllString(title, " ")
	s = strings.NewReplacer("{", " ", "}", " ", "&", " and ").Replace(s)
	s = strings.ToLower(s)
	s = nonSlugRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

func uniqueKey(seen map[string]int, key string, idx int) string {
	if key == "" {
		key = "section_" + strconv.Itoa(idx+1)
	}
	seen[key]++
	if n := seen[key]; n > 1 {
		return key + "_" + strconv.Itoa(n)
	}
	return key
}

func findSection(sections []Section, keyOrTitle string) int {
	want := strings.TrimSpace(keyOrTitle)
	if want == "" {
		return -1
	}
	slug := Slug(want)
	for i, s := range sections {
		if s.Key == want || strings.EqualFold(strings.TrimSpace(s.Title), want) {
			return i
		}
	}
	if slug == "" {
		return -1
	}
	for i, s := range sections {
		if s.Key == slug || Slug(s.Title) == slug {
			return i
		}
	}
	return -1
}

func equalSections(a, b []Section) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplySectionContentToSections returns a copy of sections with the content
// of the section matching keyOrTitle replaced. Order and every other section
// are preserved.
func ApplySectionContentToSections(sections []Section, keyOrTitle, content string) ([]Section, error) {
	normalized := NormalizeSections(sections)
	idx := findSection(normalized, keyOrTitle)
	if idx < 0 {
		return nil, apperr.SectionNotFound(keyOrTitle)
	}
	out := append([]Section(nil), normalized...)
	out[idx].Content = strings.TrimSpace(content)
	return out, nil
}

// ApplySectionContent dispatches to the LaTeX or sectioned variant based on src.
func ApplySectionContent(src Source, keyOrTitle, content string) (Source, error) {
	if src.IsSectioned() {
		sections, err := ApplySectionContentToSections(src.Sections, keyOrTitle, content)
		if err != nil {
			return Source{}, err
		}
		return Source{Sections: sections}, nil
	}
	latex, err := ApplySectionContentToLatex(src.Latex, keyOrTitle, content)
	if err != nil {
		return Source{}, err
	}
	return Source{Latex: latex}, nil
}
