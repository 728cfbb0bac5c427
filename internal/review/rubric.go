package review

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rubric.yaml
var defaultRubricYAML []byte

// recommendationCap bounds the recommendations kept from one review.
const recommendationCap = 8

// Dimension is one scored criterion.
type Dimension struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
}

// Rubric lists the scored dimensions for each document kind.
type Rubric struct {
	DefaultVerdict     string                 `yaml:"default_verdict"`
	MaxRecommendations int                    `yaml:"max_recommendations"`
	Kinds              map[string][]Dimension `yaml:"kinds"`
}

// LoadRubric parses a rubric document.
func LoadRubric(data []byte) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	if len(r.Kinds) == 0 {
		return nil, fmt.Errorf("rubric has no document kinds")
	}
	for kind, dims := range r.Kinds {
		if len(dims) == 0 {
			return nil, fmt.Errorf("rubric kind %q has no dimensions", kind)
		}
		seen := make(map[string]bool, len(dims))
		for _, d := range dims {
			key := strings.TrimSpace(d.Key)
			if key == "" {
				return nil, fmt.Errorf("rubric kind %q has a dimension without key", kind)
			}
			if seen[key] {
				return nil, fmt.Errorf("rubric kind %q repeats dimension %q", kind, key)
			}
			seen[key] = true
		}
	}
	if strings.TrimSpace(r.DefaultVerdict) == "" {
		r.DefaultVerdict = "Needs refinement"
	}
	if r.MaxRecommendations <= 0 || r.MaxRecommendations > recommendationCap {
		r.MaxRecommendations = recommendationCap
	}
	return &r, nil
}

// DefaultRubric returns the embedded rubric.
func DefaultRubric() *Rubric {
	r, err := LoadRubric(defaultRubricYAML)
	if err != nil {
		panic(err)
	}
	return r
}

// Dimensions returns the dimensions for kind, or nil when the kind is unknown.
func (r *Rubric) Dimensions(kind string) []Dimension {
	return r.Kinds[strings.ToLower(strings.TrimSpace(kind))]
}

// Keys returns the dimension keys for kind in rubric order.
func (r *Rubric) Keys(kind string) []string {
	dims := r.Dimensions(kind)
	out := make([]string, 0, len(dims))
	for _, d := range dims {
		out = append(out, d.Key)
	}
	return out
}
