package rewrite

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tones.yaml
var defaultTonesYAML []byte

// Tones is the fixed set of writing tones and the guidance sent with each.
type Tones struct {
	Default  string            `yaml:"default"`
	Guidance map[string]string `yaml:"tones"`
}

// LoadTones parses a tone configuration.
func LoadTones(data []byte) (*Tones, error) {
	var t Tones
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tones: %w", err)
	}
	if len(t.Guidance) == 0 {
		return nil, fmt.Errorf("tone config has no tones")
	}
	normalized := make(map[string]string, len(t.Guidance))
	for k, v := range t.Guidance {
		normalized[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	t.Guidance = normalized
	t.Default = strings.ToLower(strings.TrimSpace(t.Default))
	if _, ok := t.Guidance[t.Default]; !ok {
		return nil, fmt.Errorf("default tone %q is not defined", t.Default)
	}
	return &t, nil
}

// DefaultTones returns the embedded tone set.
func DefaultTones() *Tones {
	t, err := LoadTones(defaultTonesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve picks the requested tone when known, else the document tone, else the default.
func (t *Tones) Resolve(requested, documentTone string) string {
	for _, candidate := range []string{requested, documentTone} {
		c := strings.ToLower(strings.TrimSpace(candidate))
		if _, ok := t.Guidance[c]; ok {
			return c
		}
	}
	return t.Default
}

// GuidanceFor returns the prompt guidance for tone.
func (t *Tones) GuidanceFor(tone string) string {
	return t.Guidance[strings.ToLower(strings.TrimSpace(tone))]
}

// Names lists the known tones in sorted order.
func (t *Tones) Names() []string {
	out := make([]string, 0, len(t.Guidance))
	for k := range t.Guidance {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
