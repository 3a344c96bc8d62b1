package storage

import (
	"context"
	"strings"
	"testing"

	"chatsync/internal/errors"
	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	uploadErrs    map[string]error
	uploadURLs    map[string]string
	provisionErrs map[string]error

	uploadCalls    []string
	uploadPaths    []string
	provisionCalls []string
}

func (f *fakeStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	f.uploadCalls = append(f.uploadCalls, bucket)
	f.uploadPaths = append(f.uploadPaths, path)
	if err, ok := f.uploadErrs[bucket]; ok && err != nil {
		return "", err
	}
	if url, ok := f.uploadURLs[bucket]; ok {
		return url, nil
	}
	return "https://store/" + bucket + "/" + path, nil
}

func (f *fakeStore) ProvisionBucket(ctx context.Context, name string, public bool) error {
	f.provisionCalls = append(f.provisionCalls, name)
	if err, ok := f.provisionErrs[name]; ok {
		return err
	}
	return nil
}

func testMediaConfig() models.MediaConfig {
	return models.MediaConfig{
		MaxAttachmentSizeMB: 1,
		ImageMaxEdgePx:      1200,
		JpegQuality:         80,
	}
}

func newTestUploader(store ObjectStore, buckets ...models.BucketConfig) *Uploader {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewUploader(store, models.StorageConfig{Buckets: buckets}, testMediaConfig(), logger)
}

func TestUpload_FallbackChain(t *testing.T) {
	notFound := errors.New(errors.ErrCodeNotFound, "bucket missing")
	store := &fakeStore{
		uploadErrs: map[string]error{"media": notFound, "chat": notFound},
		uploadURLs: map[string]string{"public": "https://store/public/f.bin"},
	}
	up := newTestUploader(store,
		models.BucketConfig{Name: "media"},
		models.BucketConfig{Name: "chat"},
		models.BucketConfig{Name: "public"},
	)

	url, err := up.Upload(context.Background(), "f.bin", []byte("data"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "https://store/public/f.bin", url)
	// Chain stops after the first success.
	assert.Equal(t, []string{"media", "chat", "public"}, store.uploadCalls)
}

func TestUpload_FatalErrorStopsChain(t *testing.T) {
	denied := errors.New(errors.ErrCodeStorageAPI, "permission denied")
	store := &fakeStore{
		uploadErrs: map[string]error{"media": denied},
	}
	up := newTestUploader(store,
		models.BucketConfig{Name: "media"},
		models.BucketConfig{Name: "public"},
	)

	_, err := up.Upload(context.Background(), "f.bin", []byte("data"), "application/octet-stream")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorageAPI, errors.GetCode(err))
	// The second candidate must not be consulted.
	assert.Equal(t, []string{"media"}, store.uploadCalls)
}

func TestUpload_AllTargetsExhausted(t *testing.T) {
	notFound := errors.New(errors.ErrCodeNotFound, "bucket missing")
	store := &fakeStore{
		uploadErrs: map[string]error{"a": notFound, "b": notFound},
	}
	up := newTestUploader(store,
		models.BucketConfig{Name: "a"},
		models.BucketConfig{Name: "b"},
	)

	_, err := up.Upload(context.Background(), "f.bin", []byte("data"), "application/octet-stream")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUploadFailed, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestUpload_TooLarge(t *testing.T) {
	store := &fakeStore{}
	up := newTestUploader(store, models.BucketConfig{Name: "media"})

	huge := make([]byte, 2*1024*1024)
	_, err := up.Upload(context.Background(), "f.bin", huge, "application/octet-stream")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	// Rejected before any network call.
	assert.Empty(t, store.uploadCalls)
}

func TestUpload_EmptyPayload(t *testing.T) {
	up := newTestUploader(&fakeStore{}, models.BucketConfig{Name: "media"})

	_, err := up.Upload(context.Background(), "f.bin", nil, "application/octet-stream")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestUpload_ProvisionOncePerBucket(t *testing.T) {
	store := &fakeStore{}
	up := newTestUploader(store, models.BucketConfig{Name: "media", Provision: true})

	_, err := up.Upload(context.Background(), "a.bin", []byte("x"), "application/octet-stream")
	require.NoError(t, err)
	_, err = up.Upload(context.Background(), "b.bin", []byte("y"), "application/octet-stream")
	require.NoError(t, err)

	assert.Equal(t, []string{"media"}, store.provisionCalls)
}

func TestUpload_ProvisionFailureAdvancesChain(t *testing.T) {
	store := &fakeStore{
		provisionErrs: map[string]error{"media": errors.New(errors.ErrCodeStorageAPI, "quota exceeded")},
	}
	up := newTestUploader(store,
		models.BucketConfig{Name: "media", Provision: true},
		models.BucketConfig{Name: "public"},
	)

	url, err := up.Upload(context.Background(), "f.bin", []byte("x"), "application/octet-stream")
	require.NoError(t, err)
	assert.Contains(t, url, "public")
	assert.Equal(t, []string{"public"}, store.uploadCalls)
}

func TestUpload_CompressionFallbackOnGarbage(t *testing.T) {
	store := &fakeStore{}
	up := newTestUploader(store, models.BucketConfig{Name: "media"})

	// Claims to be an image but does not decode; the original bytes are
	// uploaded unchanged.
	_, err := up.Upload(context.Background(), "broken.png", []byte("not an image"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, []string{"media"}, store.uploadCalls)
}

func TestUpload_SameNameDistinctPayloadsGetDistinctPaths(t *testing.T) {
	store := &fakeStore{}
	up := newTestUploader(store, models.BucketConfig{Name: "media"})

	_, err := up.Upload(context.Background(), "photo.bin", []byte("first"), "application/octet-stream")
	require.NoError(t, err)
	_, err = up.Upload(context.Background(), "photo.bin", []byte("second"), "application/octet-stream")
	require.NoError(t, err)

	require.Len(t, store.uploadPaths, 2)
	assert.NotEqual(t, store.uploadPaths[0], store.uploadPaths[1],
		"same filename must not overwrite a different payload")
	assert.True(t, strings.HasSuffix(store.uploadPaths[0], ".bin"))

	// Re-uploading identical bytes resolves to the identical object.
	_, err = up.Upload(context.Background(), "copy.bin", []byte("first"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, store.uploadPaths[0], store.uploadPaths[2])
}
