package classify

import (
	"fmt"
	"strings"
)

const defaultMaxBodyChars = 2000

const baseInstruction = `You classify email messages. Choose exactly one category from this list: %s.
Respond with a JSON object only: {"category": "<one of the categories>", "confidence": <number between 0 and 1>, "reasoning": "<one sentence>"}.`

// BuildPrompt returns the system and user messages for req
func BuildPrompt(req Request, maxBodyChars int) (string, string) {
	if maxBodyChars <= 0 {
		maxBodyChars = defaultMaxBodyChars
	}

	system := fmt.Sprintf(baseInstruction, strings.Join(req.Categories, ", "))
	if custom := strings.TrimSpace(req.SystemPrompt); custom != "" {
		system = custom + "\n\n" + system
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", req.Item.Subject)
	fmt.Fprintf(&b, "From: %s\n", req.Item.From)
	if req.Item.Snippet != "" {
		fmt.Fprintf(&b, "Snippet: %s\n", req.Item.Snippet)
	}
	if body := truncateRunes(req.Item.Body, maxBodyChars); body != "" {
		fmt.Fprintf(&b, "\n%s\n", body)
	}

	return system, b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// itemText is the lowercased searchable content of an item
func itemText(req Request) string {
	return strings.ToLower(strings.Join([]string{
		req.Item.Subject,
		req.Item.From,
		req.Item.Snippet,
		req.Item.Body,
	}, "\n"))
}
