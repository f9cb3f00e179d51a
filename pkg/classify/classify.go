package classify

import (
	"context"
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// Request is one item to classify against a fixed category set
type Request struct {
	UserId       string
	Item         types.Item
	Categories   []string
	SystemPrompt string
	Model        string
}

// Decision is a provider's raw answer, before it is mapped onto the category set
type Decision struct {
	Category   string
	Confidence float64
	Reasoning  string
	Fallback   bool
}

// Client classifies a single item
type Client interface {
	Name() string
	Classify(ctx context.Context, req Request) (*Decision, error)
}

// Normalize maps a raw decision onto one of categories. Matching is tried as
// exact, then case-insensitive equality, then case-insensitive substring.
// Anything else resolves to the first category as a fallback.
func Normalize(d *Decision, categories []string) types.ClassificationResult {
	if len(categories) == 0 {
		return types.ClassificationResult{Fallback: true}
	}
	if d == nil {
		return fallbackResult(categories, "no decision")
	}

	result := types.ClassificationResult{
		Confidence: clamp(d.Confidence),
		Reasoning:  d.Reasoning,
		Fallback:   d.Fallback,
	}
	if d.Fallback {
		result.Category = categories[0]
		result.Confidence = 0
		return result
	}

	raw := strings.TrimSpace(d.Category)
	if category, ok := match(raw, categories); ok {
		result.Category = category
		return result
	}

	return fallbackResult(categories, "unrecognized category "+quote(raw))
}

func match(raw string, categories []string) (string, bool) {
	if raw == "" {
		return "", false
	}
	for _, c := range categories {
		if c == raw {
			return c, true
		}
	}
	for _, c := range categories {
		if strings.EqualFold(c, raw) {
			return c, true
		}
	}
	lower := strings.ToLower(raw)
	for _, c := range categories {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c, true
		}
	}
	return "", false
}

func fallbackResult(categories []string, reason string) types.ClassificationResult {
	return types.ClassificationResult{
		Category:  categories[0],
		Reasoning: reason,
		Fallback:  true,
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func quote(s string) string {
	return `"` + s + `"`
}
