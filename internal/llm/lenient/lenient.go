// Package lenient recovers usable payloads from model output that does not
// follow the requested format exactly.
package lenient

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"

	"portfolio-backend/internal/shared/apperr"
)

// Format selects how HTML fragments in prose output are cleaned up.
type Format int

const (
	FormatLatex Format = iota
	FormatMarkdown
)

var (
	fenceRe    = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*[ \t]*\n?(.*?)\n?```$")
	htmlTagRe  = regexp.MustCompile(`(?i)</?(p|br|div|span|ul|ol|li|strong|em|b|i|h[1-6]|a|code|pre)\b[^>]*>`)
	preambleRe = regexp.MustCompile(`(?i)^(sure[,!.]?\s*)?(here('s| is| are)|below is|certainly|of course)\b[^\n]*:\s*\n`)

	strict    = bluemonday.StrictPolicy()
	converter = md.NewConverter("", true, nil)
)

// StripFences removes a single surrounding markdown code fence, if present.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractObject returns the JSON object embedded in raw. Prose around the
// object and code fences are tolerated.
func ExtractObject(raw string) ([]byte, error) {
	return extract(raw, '{', '}')
}

// ExtractArray returns the JSON array embedded in raw.
func ExtractArray(raw string) ([]byte, error) {
	return extract(raw, '[', ']')
}

func extract(raw string, open, close byte) ([]byte, error) {
	s := StripFences(raw)
	if s == "" {
		return nil, fmt.Errorf("empty model output: %w", apperr.ErrParse)
	}
	if s[0] == open && json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json value in model output: %w", apperr.ErrParse)
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("invalid json in model output: %w", apperr.ErrParse)
	}
	return []byte(candidate), nil
}

// CleanProse strips fences, chatty preambles and stray HTML from generated
// prose. The result may be empty.
//
// Only recognized tags are removed from LaTeX; text such as "n<k" is never
// fed to an HTML parser. Markdown is converted as a whole only when every
// '<' in it belongs to a recognized tag.
func CleanProse(raw string, format Format) string {
	s := preambleRe.ReplaceAllString(strings.TrimSpace(raw), "")
	s = StripFences(s)
	if !htmlTagRe.MatchString(s) {
		return strings.TrimSpace(s)
	}
	if format == FormatMarkdown && !strings.Contains(htmlTagRe.ReplaceAllString(s, ""), "<") {
		if out, err := converter.ConvertString(s); err == nil {
			return strings.TrimSpace(out)
		}
	}
	return strings.TrimSpace(stripTags(s))
}

// stripTags sanitizes each recognized tag on its own and decodes entities.
// The text between tags is never parsed as HTML.
func stripTags(s string) string {
	s = htmlTagRe.ReplaceAllStringFunc(s, func(tag string) string {
		if strings.HasPrefix(strings.ToLower(tag), "<br") {
			return "\n"
		}
		return strict.Sanitize(tag)
	})
	return html.UnescapeString(s)
}
