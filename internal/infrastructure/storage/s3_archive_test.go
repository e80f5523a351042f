package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/config"
)

// fakeS3 serves the path-style subset of the S3 API the archive uses
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) object(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[path]
	return b, ok
}

func testArchiveKey() integration.ArchiveKey {
	return integration.ArchiveKey{
		OrganizationID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Platform:       integration.PlatformAds,
		SessionID:      uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Page:           3,
	}
}

func TestNewS3PayloadArchive_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "configuration is required"},
		{name: "missing bucket", cfg: &config.StorageConfig{AccessKey: "k", SecretKey: "s"}, wantErr: "bucket is required"},
		{name: "missing access key", cfg: &config.StorageConfig{Bucket: "b", SecretKey: "s"}, wantErr: "access key is required"},
		{name: "missing secret key", cfg: &config.StorageConfig{Bucket: "b", AccessKey: "k"}, wantErr: "secret key is required"},
		{name: "endpoint without scheme", cfg: &config.StorageConfig{Bucket: "b", AccessKey: "k", SecretKey: "s", Endpoint: "localhost:9000"}},
		{name: "default endpoint and region", cfg: &config.StorageConfig{Bucket: "b", AccessKey: "k", SecretKey: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive, err := NewS3PayloadArchive(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "b", archive.Bucket())
		})
	}
}

func TestS3PayloadArchive_ObjectKey(t *testing.T) {
	archive, err := NewS3PayloadArchive(&config.StorageConfig{
		Bucket: "b", AccessKey: "k", SecretKey: "s", Prefix: "/raw/",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"raw/11111111-1111-1111-1111-111111111111/ads/22222222-2222-2222-2222-222222222222/00003.json.sz",
		archive.ObjectKey(testArchiveKey()))
}

func TestS3PayloadArchive_ArchiveAndFetch(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()

	archive, err := NewS3PayloadArchive(&config.StorageConfig{
		Bucket:       "archive",
		AccessKey:    "k",
		SecretKey:    "s",
		Endpoint:     server.URL,
		UsePathStyle: true,
		Prefix:       "raw",
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, archive.EnsureBucket(ctx))

	payload := []byte(`{"data":[{"spend":"12.345","date_start":"2024-03-01"}],"paging":{}}`)
	key := testArchiveKey()

	t.Run("stores snappy-compressed bytes", func(t *testing.T) {
		require.NoError(t, archive.Archive(ctx, key, payload))

		stored, ok := fake.object("/archive/" + archive.ObjectKey(key))
		require.True(t, ok)
		decoded, err := snappy.Decode(nil, stored)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	})

	t.Run("fetch round-trips", func(t *testing.T) {
		got, err := archive.Fetch(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("missing page", func(t *testing.T) {
		missing := key
		missing.Page = 99
		_, err := archive.Fetch(ctx, missing)
		assert.ErrorIs(t, err, ErrArchiveNotFound)
	})

	t.Run("incomplete key", func(t *testing.T) {
		err := archive.Archive(ctx, integration.ArchiveKey{Platform: integration.PlatformAds}, payload)
		assert.ErrorIs(t, err, ErrArchiveKeyRequired)
	})
}

func TestS3PayloadArchive_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer server.Close()

	archive, err := NewS3PayloadArchive(&config.StorageConfig{
		Bucket: "archive", AccessKey: "k", SecretKey: "s", Endpoint: server.URL, UsePathStyle: true,
	})
	require.NoError(t, err)

	err = archive.Archive(context.Background(), testArchiveKey(), []byte("{}"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to archive payload"))
}

func TestMemoryPayloadArchive(t *testing.T) {
	archive := NewMemoryPayloadArchive()
	ctx := context.Background()
	key := testArchiveKey()

	payload := []byte(`{"orders":[]}`)
	require.NoError(t, archive.Archive(ctx, key, payload))
	payload[0] = 'x'

	got, err := archive.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"orders":[]}`, string(got))
	assert.Equal(t, 1, archive.Len())

	_, err = archive.Fetch(ctx, integration.ArchiveKey{})
	assert.ErrorIs(t, err, ErrArchiveNotFound)
	assert.ErrorIs(t, archive.Archive(ctx, integration.ArchiveKey{}, payload), ErrArchiveKeyRequired)
}
