package review

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"portfolio-backend/internal/llm/lenient"
)

// Result is a scored critique of one draft.
type Result struct {
	Overall         float64            `json:"overall"`
	Scores          map[string]float64 `json:"scores"`
	Verdict         string             `json:"verdict"`
	Recommendations []string           `json:"recommendations"`
}

// Feedback renders the verdict and recommendations as writer input.
func (r Result) Feedback() string {
	var b strings.Builder
	b.WriteString(r.Verdict)
	for _, rec := range r.Recommendations {
		b.WriteString("\n- ")
		b.WriteString(rec)
	}
	return strings.TrimSpace(b.String())
}

// ClampScore bounds a score to [0,10]. NaN becomes 0.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 10:
		return 10
	default:
		return v
	}
}

// Aggregate is the mean of scores over keys, rounded to two decimals.
func Aggregate(scores map[string]float64, keys []string) float64 {
	if len(keys) == 0 {
		return 0
	}
	var sum float64
	for _, k := range keys {
		sum += ClampScore(scores[k])
	}
	return math.Round(sum/float64(len(keys))*100) / 100
}

// ParseResult reads reviewer output for the given dimensions. Scores that are
// missing or not numeric count as 0; any overall score in the output is ignored.
func ParseResult(raw string, r *Rubric, kind string) (Result, error) {
	obj, err := lenient.ExtractObject(raw)
	if err != nil {
		return Result{}, err
	}
	doc := gjson.ParseBytes(obj)

	scoresNode := doc.Get("scores")
	if !scoresNode.IsObject() {
		scoresNode = doc
	}
	keys := r.Keys(kind)
	scores := make(map[string]float64, len(keys))
	for _, k := range keys {
		scores[k] = ClampScore(coerceScore(scoresNode.Get(gjson.Escape(k))))
	}

	verdict := strings.TrimSpace(doc.Get("verdict").String())
	if verdict == "" {
		verdict = r.DefaultVerdict
	}

	return Result{
		Overall:         Aggregate(scores, keys),
		Scores:          scores,
		Verdict:         verdict,
		Recommendations: recommendations(doc.Get("recommendations"), r.MaxRecommendations),
	}, nil
}

func coerceScore(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if i := strings.IndexByte(s, '/'); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	case gjson.JSON:
		if v.IsObject() {
			return coerceScore(v.Get("score"))
		}
	}
	return 0
}

func recommendations(v gjson.Result, max int) []string {
	var items []gjson.Result
	switch {
	case v.IsArray():
		items = v.Array()
	case v.Type == gjson.String:
		items = []gjson.Result{v}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text := item.String()
		if item.IsObject() {
			text = item.Get("text").String()
			if text == "" {
				text = item.Get("recommendation").String()
			}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, text)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
