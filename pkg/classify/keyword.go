package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

var builtinKeywords = map[string][]string{
	"important":  {"urgent", "action required", "asap", "deadline", "immediately", "important"},
	"spam":       {"congratulations", "prize", "winner", "lottery", "free money", "claim your", "click here"},
	"newsletter": {"newsletter", "unsubscribe", "weekly digest", "view in browser"},
	"promotions": {"sale", "discount", "% off", "limited time", "coupon"},
	"social":     {"friend request", "mentioned you", "new follower", "tagged you"},
	"finance":    {"invoice", "payment", "receipt", "bank statement"},
}

// KeywordClassifier is the deterministic classifier used offline and as the
// fallback when a provider call fails. A category matches when its name or
// one of its built-in keywords occurs in the item; the most hits wins and
// ties go to the earlier category.
type KeywordClassifier struct {
	keywords map[string][]string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{keywords: builtinKeywords}
}

func (k *KeywordClassifier) Name() string {
	return types.ClassifierProviderKeyword
}

func (k *KeywordClassifier) Classify(ctx context.Context, req Request) (*Decision, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories configured")
	}

	text := itemText(req)
	best, bestScore := "", 0
	var hits []string

	for _, category := range req.Categories {
		name := strings.ToLower(strings.TrimSpace(category))
		score := 0
		var matched []string

		if name != "" && strings.Contains(text, name) {
			score++
			matched = append(matched, name)
		}
		for _, kw := range k.keywords[name] {
			if kw != name && strings.Contains(text, kw) {
				score++
				matched = append(matched, kw)
			}
		}

		if score > bestScore {
			best, bestScore, hits = category, score, matched
		}
	}

	if bestScore == 0 {
		return &Decision{Category: req.Categories[0], Fallback: true, Reasoning: "no keyword matched"}, nil
	}

	return &Decision{
		Category:   best,
		Confidence: min(0.5+0.1*float64(bestScore), 0.9),
		Reasoning:  "matched keywords: " + strings.Join(hits, ", "),
	}, nil
}
