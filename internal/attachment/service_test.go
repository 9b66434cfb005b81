package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/blob"
	"github.com/foxzi/relaydesk/internal/models"
)

type memRepo struct {
	mu        sync.Mutex
	items     map[string]models.Attachment
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[string]models.Attachment)}
}

func (r *memRepo) Create(ctx context.Context, a *models.Attachment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	cp.Content = bytes.Clone(a.Content)
	r.items[a.ID] = cp
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memRepo) ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Attachment
	for _, a := range r.items {
		if a.ProjectID == projectID {
			a.Content = nil
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memRepo) put(a models.Attachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID] = a
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failOn != "" && bytes.Contains(data, []byte(s.failOn)) {
		return blob.ErrUploadFailed
	}
	s.objects[key] = bytes.Clone(data)
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type fetchStub map[string][]byte

func (f fetchStub) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, blob.ErrDownloadFailed
	}
	return data, nil
}

type projectsStub map[string]*models.Project

func (p projectsStub) GetByID(ctx context.Context, id string) (*models.Project, error) {
	return p[id], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store blob.Store, fetcher Fetcher) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	projects := projectsStub{"p1": {ID: "p1", Name: "Acme"}, "p2": {ID: "p2", Name: "Other"}}
	opts := Options{MaxFiles: 5, MaxFileSize: 16, ResolveConcurrency: 2, FetchTimeout: time.Second}
	return NewService(repo, projects, store, fetcher, opts, discardLogger()), repo
}

func TestNewID(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^\d{13}_[0-9a-z]{9}$`)
	seen := make(map[string]bool)
	for range 100 {
		id, err := NewID()
		require.NoError(t, err)
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestUpload_Inline(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t, nil, nil)
	res, err := svc.Upload(context.Background(), "p1", []File{
		{Filename: "a.txt", ContentType: "text/plain", Data: []byte("hello")},
		{Filename: "b.bin", Data: []byte("world!")},
	})
	require.NoError(t, err)
	require.Len(t, res.Uploaded, 2)
	assert.Empty(t, res.Failed)

	assert.Equal(t, int64(5), res.Uploaded[0].Size)
	assert.Equal(t, "application/octet-stream", res.Uploaded[1].ContentType)
	assert.Nil(t, res.Uploaded[0].Content, "upload result must not echo content")

	stored, _ := repo.GetByID(context.Background(), res.Uploaded[0].ID)
	require.NotNil(t, stored)
	assert.Equal(t, []byte("hello"), stored.Content)
}

func TestUpload_OversizeRejectsBatchBeforeStore(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc, repo := newTestService(t, store, nil)

	res, err := svc.Upload(context.Background(), "p1", []File{
		{Filename: "small.txt", Data: []byte("ok")},
		{Filename: "huge.bin", Data: bytes.Repeat([]byte("x"), 17)},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "huge.bin")
	assert.Nil(t, res)
	assert.Equal(t, 0, store.puts)
	assert.Empty(t, repo.items)
}

func TestUpload_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "p1", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	tooMany := make([]File, 6)
	for i := range tooMany {
		tooMany[i] = File{Filename: "f", Data: []byte("x")}
	}
	_, err = svc.Upload(ctx, "p1", tooMany)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Upload(ctx, "p1", []File{{Filename: "empty"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Upload(ctx, "missing", []File{{Filename: "a", Data: []byte("x")}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpload_ContinueOnError(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOn = "bad"
	svc, _ := newTestService(t, store, nil)

	res, err := svc.Upload(context.Background(), "p1", []File{
		{Filename: "one.txt", Data: []byte("first")},
		{Filename: "two.txt", Data: []byte("bad data")},
		{Filename: "three.txt", Data: []byte("third")},
	})
	require.NoError(t, err)
	require.Len(t, res.Uploaded, 2)
	assert.Equal(t, "one.txt", res.Uploaded[0].Filename)
	assert.Equal(t, "three.txt", res.Uploaded[1].Filename)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "two.txt", res.Failed[0].Filename)
	assert.Equal(t, 3, store.puts)
}

func TestUpload_RepoFailureRemovesBlob(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc, repo := newTestService(t, store, nil)
	repo.createErr = errors.New("disk full")

	res, err := svc.Upload(context.Background(), "p1", []File{{Filename: "a.txt", Data: []byte("abc")}})
	require.NoError(t, err)
	assert.Empty(t, res.Uploaded)
	assert.Len(t, res.Failed, 1)
	assert.Empty(t, store.objects)
}

func TestResolve_DropsFailuresAndKeepsOrder(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc, _ := newTestService(t, store, nil)
	ctx := context.Background()

	res, err := svc.Upload(ctx, "p1", []File{
		{Filename: "first.txt", Data: []byte("1111")},
		{Filename: "third.txt", Data: []byte("3333")},
	})
	require.NoError(t, err)
	first, third := res.Uploaded[0].ID, res.Uploaded[1].ID

	got := svc.Resolve(ctx, "p1", []models.AttachmentRef{
		models.RefByID(first), models.RefByID("missing_id"), models.RefByID(third),
	})
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].ID)
	assert.Equal(t, third, got[1].ID)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("1111")), got[0].Content)
	assert.Equal(t, int64(4), got[1].Size)
}

func TestResolve_Sources(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	fetcher := fetchStub{
		"https://cdn.example.com/logo.png": []byte("PNGDATA"),
		"https://cdn.example.com/short":    []byte("abc"),
	}
	svc, repo := newTestService(t, store, fetcher)
	ctx := context.Background()

	repo.put(models.Attachment{ID: "inline", ProjectID: "p1", Filename: "i.txt", Size: 2, Content: []byte("hi")})
	repo.put(models.Attachment{ID: "remote", ProjectID: "p1", Filename: "logo.png", Size: 7, DownloadURL: "https://cdn.example.com/logo.png"})
	repo.put(models.Attachment{ID: "mismatch", ProjectID: "p1", Filename: "s", Size: 10, DownloadURL: "https://cdn.example.com/short"})
	repo.put(models.Attachment{ID: "broken", ProjectID: "p1", Filename: "b", Size: 1, DownloadURL: "https://cdn.example.com/404"})
	repo.put(models.Attachment{ID: "foreign", ProjectID: "p2", Filename: "f", Size: 2, Content: []byte("no")})
	require.NoError(t, store.Put(ctx, "attachments/p1/blob", "text/plain", []byte("stored")))
	repo.put(models.Attachment{ID: "blob", ProjectID: "p1", Filename: "s.txt", Size: 6, StoragePath: "attachments/p1/blob"})

	refs := []models.AttachmentRef{
		models.RefByID("inline"),
		models.RefFull(&models.Attachment{ID: "remote"}),
		models.RefByID("mismatch"),
		models.RefByID("broken"),
		models.RefByID("foreign"),
		models.RefByID("blob"),
		{},
	}

	got := svc.Resolve(ctx, "p1", refs)
	require.Len(t, got, 3)
	assert.Equal(t, "inline", got[0].ID)
	assert.Equal(t, "remote", got[1].ID)
	assert.Equal(t, "https://cdn.example.com/logo.png", got[1].URL)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("PNGDATA")), got[1].Content)
	assert.Equal(t, "blob", got[2].ID)
}

func TestResolve_Empty(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil, nil)
	assert.Nil(t, svc.Resolve(context.Background(), "p1", nil))
}

func TestDownloadAndDelete(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc, _ := newTestService(t, store, nil)
	ctx := context.Background()

	res, err := svc.Upload(ctx, "p1", []File{{Filename: "doc.txt", ContentType: "text/plain", Data: []byte("content")}})
	require.NoError(t, err)
	id := res.Uploaded[0].ID

	meta, data, err := svc.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", meta.Filename)
	assert.Equal(t, []byte("content"), data)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, blob.AttachmentKey("p1", id), got.StoragePath)

	require.NoError(t, svc.Delete(ctx, id))
	assert.Empty(t, store.objects)

	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, id), apperr.ErrNotFound)

	_, _, err = svc.Download(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
