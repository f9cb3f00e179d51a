package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

type chatServer struct {
	*httptest.Server
	hits     atomic.Int32
	failures atomic.Int32
	status   int
	reply    string
	authSeen atomic.Value
	bodySeen atomic.Value
}

func newChatServer(t *testing.T, reply string) *chatServer {
	cs := &chatServer{reply: reply, status: http.StatusServiceUnavailable}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		cs.authSeen.Store(r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		cs.bodySeen.Store(body)

		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if cs.failures.Load() > 0 {
			cs.failures.Add(-1)
			w.WriteHeader(cs.status)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "unavailable", "type": "server_error"}})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": cs.reply},
			}},
		})
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newOpenAIClient(cs *chatServer, keys repository.APIKeyRepository) *OpenAIClient {
	return NewOpenAIClient(types.ClassificationConfig{
		BaseURL: cs.URL + "/v1",
		APIKey:  "config-key",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	}, keys, retryPolicy())
}

func TestOpenAIClientClassifies(t *testing.T) {
	cs := newChatServer(t, `{"category": "Spam", "confidence": 0.92, "reasoning": "lottery"}`)
	client := newOpenAIClient(cs, nil)

	d, err := client.Classify(context.Background(), Request{
		UserId:     "u1",
		Item:       types.Item{Subject: "You won"},
		Categories: categories,
	})
	require.NoError(t, err)
	assert.Equal(t, "Spam", d.Category)
	assert.Equal(t, 0.92, d.Confidence)
	assert.Equal(t, "Bearer config-key", cs.authSeen.Load())

	body := cs.bodySeen.Load().(map[string]any)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIClientPrefersUserKey(t *testing.T) {
	cs := newChatServer(t, `{"category": "Other"}`)
	keys := repository.NewMemoryBackend()
	require.NoError(t, keys.SaveAPIKey(context.Background(), &types.APIKey{UserId: "u1", Provider: "openai", Key: "user-key"}))

	_, err := newOpenAIClient(cs, keys).Classify(context.Background(), Request{UserId: "u1", Categories: categories})
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-key", cs.authSeen.Load())
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	cs := newChatServer(t, `{"category": "Important"}`)
	cs.failures.Store(2)

	d, err := newOpenAIClient(cs, nil).Classify(context.Background(), Request{Categories: categories})
	require.NoError(t, err)
	assert.Equal(t, "Important", d.Category)
	assert.Equal(t, int32(3), cs.hits.Load())
}

func TestOpenAIClientPermanentError(t *testing.T) {
	cs := newChatServer(t, "")
	cs.status = http.StatusUnauthorized
	cs.failures.Store(5)

	_, err := newOpenAIClient(cs, nil).Classify(context.Background(), Request{Categories: categories})
	require.Error(t, err)
	assert.False(t, types.IsTransient(err))
	assert.True(t, types.HasStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(1), cs.hits.Load())
}

func TestOpenAIClientWithoutKey(t *testing.T) {
	client := NewOpenAIClient(types.ClassificationConfig{}, nil, retryPolicy())
	_, err := client.Classify(context.Background(), Request{Categories: categories})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key configured")
}
