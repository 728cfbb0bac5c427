package structured

import (
	"regexp"
	"strings"

	"portfolio-backend/internal/shared/apperr"
)

// headingRe matches \section{..}, \section*{..} and \cvsection{..} at the
// start of a line, through the end of that line.
var headingRe = regexp.MustCompile(`(?m)^[ \t]*\\(?:section|cvsection)\*?\{([^}\n]*)\}[^\n]*(?:\n|$)`)

const endDocument = `\end{document}`

type span struct {
	title     string
	bodyStart int
	bodyEnd   int
}

// latexSpans locates each heading's body: from the end of its heading line to
// the next heading or \end{document}. The preamble is never a section.
func latexSpans(raw string) []span {
	matches := headingRe.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	docEnd := strings.LastIndex(raw, endDocument)
	out := make([]span, 0, len(matches))
	for i, m := range matches {
		sp := span{
			title:     strings.TrimSpace(raw[m[2]:m[3]]),
			bodyStart: m[1],
		}
		if i+1 < len(matches) {
			sp.bodyEnd = matches[i+1][0]
		} else if docEnd >= sp.bodyStart {
			sp.bodyEnd = docEnd
		} else {
			sp.bodyEnd = len(raw)
		}
		out = append(out, sp)
	}
	return out
}

// ApplySectionContentToLatex replaces the body of the section matching
// keyOrTitle. Only bytes between that heading line and the next heading (or
// \end{document}) change; the leading and trailing whitespace of the old body
// is kept so the surrounding layout survives.
func ApplySectionContentToLatex(raw, keyOrTitle, content string) (string, error) {
	spans := latexSpans(raw)
	if len(spans) == 0 {
		if Slug(keyOrTitle) == CatchAllKey {
			return strings.TrimSpace(content) + "\n", nil
		}
		return "", apperr.SectionNotFound(keyOrTitle)
	}

	sections := make([]Section, len(spans))
	seen := make(map[string]int, len(spans))
	for i, sp := range spans {
		sections[i] = Section{Key: uniqueKey(seen, Slug(sp.title), i), Title: sp.title}
	}
	idx := findSection(sections, keyOrTitle)
	if idx < 0 {
		return "", apperr.SectionNotFound(keyOrTitle)
	}

	sp := spans[idx]
	body := raw[sp.bodyStart:sp.bodyEnd]
	trimmed := strings.TrimSpace(content)

	var replacement string
	if strings.TrimSpace(body) == "" {
		replacement = trimmed + "\n" + body
	} else {
		lead := body[:len(body)-len(strings.TrimLeft(body, " \t\r\n"))]
		trail := body[len(strings.TrimRight(body, " \t\r\n")):]
		replacement = lead + trimmed + trail
	}

	var b strings.Builder
	b.Grow(len(raw) - len(body) + len(replacement))
	b.WriteString(raw[:sp.bodyStart])
	b.WriteString(replacement)
	b.WriteString(raw[sp.bodyEnd:])
	return b.String(), nil
}

// HasDocumentEnvironment reports whether raw wraps its body in a document environment.
func HasDocumentEnvironment(raw string) bool {
	return strings.Contains(raw, `\begin{document}`)
}
