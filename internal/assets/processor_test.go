package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boardmigrate/internal/pipeline"
	"boardmigrate/internal/storage"
)

func fileServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastProcessor(store storage.ObjectStore) *Processor {
	p := New(store, Config{}, zap.NewNop())
	p.backoff = pipeline.NewBackoffPolicy(3, time.Millisecond)
	return p
}

func TestProcessUploadsAsset(t *testing.T) {
	body := []byte("file payload")
	srv := fileServer(t, http.StatusOK, body)
	store := storage.NewMemoryStore()
	p := fastProcessor(store)

	link, ok := p.Process(context.Background(), pipeline.AssetRef{
		ID:        "a1",
		Name:      "manual.pdf",
		PublicURL: srv.URL,
	}, "Pump: Model/7")
	require.True(t, ok)
	require.Equal(t, "memory://Pump_ Model_7_manual.pdf", link)

	stored, found := store.Object("Pump_ Model_7_manual.pdf")
	require.True(t, found)
	require.Equal(t, body, stored)
}

func TestProcessSkipsAssetWithoutURLOrName(t *testing.T) {
	p := fastProcessor(storage.NewMemoryStore())

	_, ok := p.Process(context.Background(), pipeline.AssetRef{Name: "orphan.txt"}, "item")
	require.False(t, ok)

	_, ok = p.Process(context.Background(), pipeline.AssetRef{PublicURL: "https://x"}, "item")
	require.False(t, ok)
}

func TestProcessShortCircuitsExistingObject(t *testing.T) {
	srv := fileServer(t, http.StatusOK, []byte("payload"))
	store := storage.NewMemoryStore()
	_, err := store.Create(context.Background(), "item_file.txt", "text/plain", []byte("old"))
	require.NoError(t, err)

	p := fastProcessor(store)
	link, ok := p.Process(context.Background(), pipeline.AssetRef{
		ID:        "a1",
		Name:      "file.txt",
		PublicURL: srv.URL,
	}, "item")
	require.True(t, ok)
	require.Equal(t, "memory://item_file.txt", link)

	// The existing object was not replaced.
	stored, _ := store.Object("item_file.txt")
	require.Equal(t, []byte("old"), stored)
	require.Equal(t, 1, store.Len())
}

func TestProcessDownloadFailureYieldsNoResult(t *testing.T) {
	srv := fileServer(t, http.StatusNotFound, nil)
	store := storage.NewMemoryStore()
	p := fastProcessor(store)

	_, ok := p.Process(context.Background(), pipeline.AssetRef{
		ID:        "a1",
		Name:      "gone.txt",
		PublicURL: srv.URL,
	}, "item")
	require.False(t, ok)
	require.Equal(t, 0, store.Len())
}

// failingStore always rejects uploads.
type failingStore struct{}

func (failingStore) Find(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (failingStore) Create(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket on fire")
}

func TestProcessUploadFailureYieldsNoResult(t *testing.T) {
	srv := fileServer(t, http.StatusOK, []byte("payload"))
	p := fastProcessor(failingStore{})

	_, ok := p.Process(context.Background(), pipeline.AssetRef{
		ID:        "a1",
		Name:      "doomed.txt",
		PublicURL: srv.URL,
	}, "item")
	require.False(t, ok)
}

// flakyStore fails the first upload attempt and accepts the second.
type flakyStore struct {
	inner *storage.MemoryStore
	calls int
}

func (s *flakyStore) Find(ctx context.Context, name string) (string, bool, error) {
	return s.inner.Find(ctx, name)
}

func (s *flakyStore) Create(ctx context.Context, name, contentType string, data []byte) (string, error) {
	s.calls++
	if s.calls == 1 {
		return "", errors.New("transient")
	}
	return s.inner.Create(ctx, name, contentType, data)
}

func TestProcessRetriesUpload(t *testing.T) {
	srv := fileServer(t, http.StatusOK, []byte("payload"))
	store := &flakyStore{inner: storage.NewMemoryStore()}
	p := fastProcessor(store)

	link, ok := p.Process(context.Background(), pipeline.AssetRef{
		ID:        "a1",
		Name:      "retry.txt",
		PublicURL: srv.URL,
	}, "item")
	require.True(t, ok)
	require.NotEmpty(t, link)
	require.Equal(t, 2, store.calls)
}
