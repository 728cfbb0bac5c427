package structured

import (
	"regexp"
	"strings"
)

// Render flattens a source into the text handed to a writer model: raw LaTeX
// as-is, sectioned content as markdown with one "## Title" heading per section.
func Render(src Source) string {
	if !src.IsSectioned() {
		return src.Latex
	}
	var b strings.Builder
	for i, s := range NormalizeSections(src.Sections) {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(s.Title)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(s.Content))
	}
	return b.String()
}

var (
	sectionHeadingRe = regexp.MustCompile(`^##[ \t]+(.+?)[ \t#]*$`)
	fenceRe          = regexp.MustCompile("^[ \t]{0,3}(```|~~~)")
)

type heading struct {
	title      string
	start, end int // byte offsets of the heading line
}

// sectionHeadings returns the level-two headings of text. Deeper headings
// belong to the section body and fenced code blocks are skipped.
func sectionHeadings(text string) []heading {
	var (
		out     []heading
		fence   string
		lineOff int
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		off := lineOff
		lineOff += len(line)
		trimmed := strings.TrimRight(line, "\r\n")
		if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
			switch {
			case fence == "":
				fence = m[1]
			case fence == m[1]:
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}
		if m := sectionHeadingRe.FindStringSubmatch(trimmed); m != nil {
			out = append(out, heading{title: m[1], start: off, end: off + len(trimmed)})
		}
	}
	return out
}

// ParseRendered splits markdown produced from Render back into sections on
// "## " headings. Headings that match a previous section reuse its key so
// edits land on the same section. It returns nil when text carries no
// section headings.
func ParseRendered(text string, previous []Section) []Section {
	heads := sectionHeadings(text)
	if len(heads) == 0 {
		return nil
	}
	prev := NormalizeSections(previous)
	used := make(map[int]bool, len(prev))
	out := make([]Section, 0, len(heads))
	for i, h := range heads {
		title := strings.TrimSpace(strings.Trim(h.title, "*_"))
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1].start
		}
		s := Section{Title: title, Content: strings.TrimSpace(text[h.end:end])}
		if idx := findSection(prev, title); idx >= 0 && !used[idx] {
			used[idx] = true
			s.Key = prev[idx].Key
		}
		out = append(out, s)
	}
	return NormalizeSections(out)
}

// SameKeys reports whether a and b list the same section keys in the same order.
func SameKeys(a, b []Section) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			return false
		}
	}
	return true
}
