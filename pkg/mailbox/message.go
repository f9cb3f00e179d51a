package mailbox

import (
	"encoding/base64"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// System label ids
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
)

type Label struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type gmailMessage struct {
	Id           string      `json:"id"`
	ThreadId     string      `json:"threadId"`
	LabelIds     []string    `json:"labelIds"`
	Snippet      string      `json:"snippet"`
	InternalDate string      `json:"internalDate"`
	Payload      messagePart `json:"payload"`
}

type messagePart struct {
	MimeType string        `json:"mimeType"`
	Headers  []header      `json:"headers,omitempty"`
	Body     partBody      `json:"body"`
	Parts    []messagePart `json:"parts,omitempty"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	Size int    `json:"size,omitempty"`
	Data string `json:"data,omitempty"`
}

// toItem flattens a provider message into the engine's item shape
func (m *gmailMessage) toItem() *types.Item {
	item := &types.Item{
		Id:       m.Id,
		ThreadId: m.ThreadId,
		Snippet:  m.Snippet,
		Labels:   append([]string{}, m.LabelIds...),
		Body:     messageBody(&m.Payload),
	}

	var date string
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			item.From = h.Value
		case "to":
			item.To = h.Value
		case "subject":
			item.Subject = h.Value
		case "date":
			date = h.Value
		}
	}

	if t, err := mail.ParseDate(date); err == nil {
		item.Date = t
	} else if ms, err := strconv.ParseInt(m.InternalDate, 10, 64); err == nil {
		item.Date = time.UnixMilli(ms)
	}

	return item
}

// messageBody returns text/plain if present, otherwise text/html stripped to text
func messageBody(payload *messagePart) string {
	if text := findPart(payload, "text/plain"); text != "" {
		return text
	}
	if html := findPart(payload, "text/html"); html != "" {
		return StripHTML(html)
	}
	if decoded := decodeBodyData(payload.Body.Data); decoded != "" {
		if strings.HasPrefix(payload.MimeType, "text/html") {
			return StripHTML(decoded)
		}
		return decoded
	}
	return ""
}

// findPart does a breadth-first search so a top-level alternative wins over
// one nested inside an attachment
func findPart(root *messagePart, mimeType string) string {
	queue := []*messagePart{root}
	for len(queue) > 0 {
		part := queue[0]
		queue = queue[1:]

		if strings.HasPrefix(part.MimeType, mimeType) {
			if decoded := decodeBodyData(part.Body.Data); decoded != "" {
				return decoded
			}
		}
		for i := range part.Parts {
			queue = append(queue, &part.Parts[i])
		}
	}
	return ""
}

// decodeBodyData decodes base64url body data, with or without padding
func decodeBodyData(data string) string {
	if data == "" {
		return ""
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	htmlScriptRegex = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripHTML removes tags and collapses whitespace
func StripHTML(html string) string {
	text := htmlScriptRegex.ReplaceAllString(html, " ")
	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
