package classify

import (
	"context"
	"strings"
	"testing"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categories = []string{"Important", "Spam", "Other"}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		decision *Decision
		category string
		fallback bool
	}{
		{"exact", &Decision{Category: "Spam", Confidence: 0.9}, "Spam", false},
		{"case insensitive", &Decision{Category: "important"}, "Important", false},
		{"substring", &Decision{Category: "This looks like SPAM to me"}, "Spam", false},
		{"unknown", &Decision{Category: "Receipts"}, "Important", true},
		{"empty", &Decision{Category: ""}, "Important", true},
		{"marked fallback", &Decision{Category: "Spam", Fallback: true}, "Important", true},
		{"nil", nil, "Important", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Normalize(tt.decision, categories)
			assert.Equal(t, tt.category, r.Category)
			assert.Equal(t, tt.fallback, r.Fallback)
			assert.Contains(t, categories, r.Category)
		})
	}
}

func TestNormalizeClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, Normalize(&Decision{Category: "Spam", Confidence: 7}, categories).Confidence)
	assert.Equal(t, 0.0, Normalize(&Decision{Category: "Spam", Confidence: -1}, categories).Confidence)
}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier()
	ctx := context.Background()

	tests := []struct {
		name     string
		item     types.Item
		category string
		fallback bool
	}{
		{"urgent", types.Item{Subject: "URGENT: contract deadline"}, "Important", false},
		{"lottery", types.Item{Subject: "Congratulations", Body: "You are a lottery winner"}, "Spam", false},
		{"category name", types.Item{Body: "filed under other"}, "Other", false},
		{"no match", types.Item{Subject: "lunch?"}, "Important", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := k.Classify(ctx, Request{Item: tt.item, Categories: categories})
			require.NoError(t, err)
			r := Normalize(d, categories)
			assert.Equal(t, tt.category, r.Category)
			assert.Equal(t, tt.fallback, r.Fallback)
		})
	}
}

func TestKeywordClassifierTieGoesToEarlierCategory(t *testing.T) {
	d, err := NewKeywordClassifier().Classify(context.Background(), Request{
		Item:       types.Item{Subject: "urgent prize"},
		Categories: []string{"Spam", "Important"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Spam", d.Category)
}

func TestBuildPrompt(t *testing.T) {
	system, user := BuildPrompt(Request{
		Item:         types.Item{Subject: "Hello", From: "a@b.c", Body: "0123456789"},
		Categories:   categories,
		SystemPrompt: "You work for a law firm.",
	}, 4)

	assert.Contains(t, system, "Important, Spam, Other")
	assert.True(t, strings.HasPrefix(system, "You work for a law firm."))
	assert.Contains(t, user, "Subject: Hello")
	assert.Contains(t, user, "0123")
	assert.NotContains(t, user, "01234")
}

func TestParseDecision(t *testing.T) {
	d := ParseDecision("```json\n{\"category\": \"Spam\", \"confidence\": 0.8, \"reasoning\": \"prize\"}\n```")
	assert.Equal(t, "Spam", d.Category)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, "prize", d.Reasoning)

	d = ParseDecision(`{"category": "Important", "confidence": "0.7"}`)
	assert.Equal(t, 0.7, d.Confidence)

	d = ParseDecision("Important")
	assert.Equal(t, "Important", d.Category)
}

func TestRouter(t *testing.T) {
	offline := NewRouter(types.ClassificationConfig{Offline: true}, nil, retryPolicy())
	assert.Equal(t, types.ClassifierProviderKeyword, offline.For("openai").Name())

	online := NewRouter(types.ClassificationConfig{APIKey: "k"}, nil, retryPolicy())
	assert.Equal(t, types.ClassifierProviderOpenAI, online.For("openai").Name())
	assert.Equal(t, types.ClassifierProviderOpenAI, online.For("").Name())
	assert.Equal(t, types.ClassifierProviderKeyword, online.For("keyword").Name())
	assert.Equal(t, types.ClassifierProviderKeyword, online.For("Offline").Name())
}
