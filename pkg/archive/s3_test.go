package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves path-style PutObject and GetObject from memory
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*SnapshotStore, *fakeS3) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewSnapshotStore(context.Background(), types.ArchiveConfig{
		Enabled: true,
		Prefix:  "/runs/",
		S3: types.S3Config{
			Bucket:         "mailflow",
			Region:         "us-east-1",
			Endpoint:       srv.URL,
			AccessKey:      "test",
			SecretKey:      "test",
			ForcePathStyle: true,
		},
	})
	require.NoError(t, err)
	return store, fake
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, "runs/agent-1/log-1.json", store.Key("agent-1", "log-1"))
	require.NoError(t, store.PutSnapshot(ctx, "agent-1", "log-1", []byte(`{"status":"success"}`)))
	assert.Contains(t, fake.objects, "/mailflow/runs/agent-1/log-1.json")

	data, err := store.GetSnapshot(ctx, "agent-1", "log-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success"}`, string(data))
}

func TestSnapshotMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetSnapshot(context.Background(), "agent-1", "nope")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshotStoreRequiresBucket(t *testing.T) {
	_, err := NewSnapshotStore(context.Background(), types.ArchiveConfig{Enabled: true})
	assert.Error(t, err)
}
