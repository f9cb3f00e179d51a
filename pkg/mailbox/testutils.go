package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// FakeMessage is a message held by FakeServer
type FakeMessage struct {
	Id      string
	Subject string
	From    string
	To      string
	Date    time.Time
	Body    string
	HTML    bool
	Labels  []string
}

// FakeServer is an in-memory Gmail API for tests. It serves the subset of
// endpoints used by Client and records calls per operation.
type FakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	rejected map[string]bool
	messages []*FakeMessage
	labels   []Label
	nextId   int
	failures map[string][]int
	calls    map[string]int
}

// NewFakeServer starts a server that accepts bearer token. An empty token
// accepts any value.
func NewFakeServer(token string) *FakeServer {
	f := &FakeServer{
		token:    token,
		rejected: map[string]bool{},
		failures: map[string][]int{},
		calls:    map[string]int{},
		labels: []Label{
			{Id: LabelInbox, Name: LabelInbox, Type: "system"},
			{Id: LabelUnread, Name: LabelUnread, Type: "system"},
			{Id: "SPAM", Name: "SPAM", Type: "system"},
			{Id: "TRASH", Name: "TRASH", Type: "system"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+apiPath+"/messages", f.handle("list", f.listMessages))
	mux.HandleFunc("GET "+apiPath+"/messages/{id}", f.handle("get", f.getMessage))
	mux.HandleFunc("POST "+apiPath+"/messages/{id}/modify", f.handle("modify", f.modifyMessage))
	mux.HandleFunc("GET "+apiPath+"/labels", f.handle("labels.list", f.listLabels))
	mux.HandleFunc("POST "+apiPath+"/labels", f.handle("labels.create", f.createLabel))

	f.Server = httptest.NewServer(mux)
	return f
}

// AddMessage appends a message; list results follow insertion order
func (f *FakeServer) AddMessage(m FakeMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.Date.IsZero() {
		m.Date = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(len(f.messages)) * time.Minute)
	}
	f.messages = append(f.messages, &m)
}

// AddLabel registers a user label and returns its id
func (f *FakeServer) AddLabel(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLabelLocked(name).Id
}

// FailNext makes the next call to op respond with status
func (f *FakeServer) FailNext(op string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], status)
}

// RejectToken makes requests carrying token respond 401
func (f *FakeServer) RejectToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected[token] = true
}

func (f *FakeServer) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// MessageLabels returns a copy of the message's current label ids
func (f *FakeServer) MessageLabels(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.findLocked(id); m != nil {
		return append([]string{}, m.Labels...)
	}
	return nil
}

// LabelId resolves a label name to its id
func (f *FakeServer) LabelId(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.labels {
		if l.Name == name {
			return l.Id
		}
	}
	return ""
}

func (f *FakeServer) MailboxConfig() types.MailboxConfig {
	return types.MailboxConfig{BaseURL: f.URL, RequestsPerSecond: 1000, Burst: 1000, Timeout: 5 * time.Second}
}

func (f *FakeServer) handle(op string, next func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[op]++

		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if f.rejected[bearer] || (f.token != "" && bearer != f.token) {
			f.mu.Unlock()
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if queued := f.failures[op]; len(queued) > 0 {
			status := queued[0]
			f.failures[op] = queued[1:]
			f.mu.Unlock()
			writeError(w, status, http.StatusText(status))
			return
		}
		f.mu.Unlock()

		next(w, r)
	}
}

func (f *FakeServer) listMessages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	if limit <= 0 {
		limit = listPageSize
	}

	var matched []map[string]string
	for _, m := range f.messages {
		if strings.Contains(query, "in:inbox") && !slices.Contains(m.Labels, LabelInbox) {
			continue
		}
		matched = append(matched, map[string]string{"id": m.Id, "threadId": "t-" + m.Id})
	}

	resp := map[string]any{"resultSizeEstimate": len(matched)}
	if offset < len(matched) {
		end := min(offset+limit, len(matched))
		resp["messages"] = matched[offset:end]
		if end < len(matched) {
			resp["nextPageToken"] = strconv.Itoa(end)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeServer) getMessage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.findLocked(r.PathValue("id"))
	if m == nil {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, http.StatusOK, renderMessage(m))
}

func (f *FakeServer) modifyMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AddLabelIds    []string `json:"addLabelIds"`
		RemoveLabelIds []string `json:"removeLabelIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.findLocked(r.PathValue("id"))
	if m == nil {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	for _, id := range req.AddLabelIds {
		if !f.labelExistsLocked(id) {
			writeError(w, http.StatusBadRequest, "Invalid label: "+id)
			return
		}
	}

	item := types.Item{Labels: m.Labels}
	item.ApplyLabelChange(req.AddLabelIds, req.RemoveLabelIds)
	m.Labels = item.Labels

	writeJSON(w, http.StatusOK, map[string]any{"id": m.Id, "threadId": "t-" + m.Id, "labelIds": m.Labels})
}

func (f *FakeServer) listLabels(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"labels": f.labels})
}

func (f *FakeServer) createLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "label name required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range f.labels {
		if strings.EqualFold(l.Name, req.Name) {
			writeError(w, http.StatusConflict, "Label name exists or conflicts")
			return
		}
	}
	writeJSON(w, http.StatusOK, f.addLabelLocked(req.Name))
}

func (f *FakeServer) addLabelLocked(name string) Label {
	f.nextId++
	l := Label{Id: fmt.Sprintf("Label_%d", f.nextId), Name: name, Type: "user"}
	f.labels = append(f.labels, l)
	return l
}

func (f *FakeServer) labelExistsLocked(id string) bool {
	for _, l := range f.labels {
		if l.Id == id {
			return true
		}
	}
	return false
}

func (f *FakeServer) findLocked(id string) *FakeMessage {
	for _, m := range f.messages {
		if m.Id == id {
			return m
		}
	}
	return nil
}

func renderMessage(m *FakeMessage) gmailMessage {
	mime := "text/plain"
	if m.HTML {
		mime = "text/html"
	}

	return gmailMessage{
		Id:           m.Id,
		ThreadId:     "t-" + m.Id,
		LabelIds:     m.Labels,
		Snippet:      truncate(m.Body, 100),
		InternalDate: strconv.FormatInt(m.Date.UnixMilli(), 10),
		Payload: messagePart{
			MimeType: "multipart/alternative",
			Headers: []header{
				{Name: "From", Value: m.From},
				{Name: "To", Value: m.To},
				{Name: "Subject", Value: m.Subject},
				{Name: "Date", Value: m.Date.Format(time.RFC1123Z)},
			},
			Parts: []messagePart{{
				MimeType: mime,
				Body: partBody{
					Size: len(m.Body),
					Data: base64.URLEncoding.EncodeToString([]byte(m.Body)),
				},
			}},
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

// StaticTokens is a TokenSource that hands out a fixed token and rotates to
// the next queued one on every forced refresh
type StaticTokens struct {
	mu        sync.Mutex
	current   string
	next      []string
	Refreshes int
}

func NewStaticTokens(token string, rotations ...string) *StaticTokens {
	return &StaticTokens{current: token, next: rotations}
}

func (s *StaticTokens) GetValidToken(ctx context.Context, userId string) (*types.OAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLocked(userId), nil
}

func (s *StaticTokens) ForceRefresh(ctx context.Context, userId, stale string) (*types.OAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Refreshes++
	if stale == s.current && len(s.next) > 0 {
		s.current, s.next = s.next[0], s.next[1:]
	}
	return s.tokenLocked(userId), nil
}

func (s *StaticTokens) tokenLocked(userId string) *types.OAuthToken {
	return &types.OAuthToken{
		UserId:      userId,
		Provider:    types.ProviderGoogle,
		AccessToken: s.current,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}
