package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path"
	"sync"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

// Uploader walks an ordered candidate list of storage targets until one
// accepts the payload. Targets marked Provision are created on first use;
// a target rejecting the upload as not-found advances the chain, any other
// failure aborts it.
type Uploader struct {
	store      ObjectStore
	candidates []models.BucketConfig
	maxBytes   int64
	maxEdgePx  int
	quality    int
	logger     *logrus.Logger

	mu          sync.Mutex
	provisioned map[string]bool
}

// NewUploader creates an uploader over the given store and candidate chain.
func NewUploader(store ObjectStore, cfg models.StorageConfig, media models.MediaConfig, logger *logrus.Logger) *Uploader {
	return &Uploader{
		store:       store,
		candidates:  cfg.Buckets,
		maxBytes:    int64(media.MaxAttachmentSizeMB) * 1024 * 1024,
		maxEdgePx:   media.ImageMaxEdgePx,
		quality:     media.JpegQuality,
		logger:      logger,
		provisioned: make(map[string]bool),
	}
}

// Upload stores the payload and returns its retrievable URL. The size
// ceiling is enforced before any network call; image payloads are
// pre-compressed, falling back to the original bytes if compression fails.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.NewValidationError("attachment", "empty payload")
	}
	if int64(len(data)) > u.maxBytes {
		return "", errors.NewValidationError("attachment",
			fmt.Sprintf("payload too large: %d > %d bytes", len(data), u.maxBytes)).
			WithUserMessage("Attachment is too large")
	}

	data, contentType, name = u.maybeCompress(data, contentType, name)
	destPath := destinationPath(name, data)

	var lastErr error
	for _, candidate := range u.candidates {
		if candidate.Provision && !u.isProvisioned(candidate.Name) {
			if err := u.store.ProvisionBucket(ctx, candidate.Name, candidate.Public); err != nil {
				errors.LogWarn(u.logger, err, "Bucket provisioning failed, trying next target")
				lastErr = err
				continue
			}
			u.markProvisioned(candidate.Name)
		}

		url, err := u.store.Upload(ctx, candidate.Name, destPath, data, contentType)
		if err == nil {
			u.logger.WithFields(logrus.Fields{
				"bucket": candidate.Name,
				"path":   destPath,
				"bytes":  len(data),
			}).Debug("Attachment uploaded")
			return url, nil
		}

		if errors.IsNotFound(err) {
			u.logger.WithField("bucket", candidate.Name).Debug("Target not provisioned, trying next")
			lastErr = err
			continue
		}

		// Permission and payload errors must not be masked by blindly
		// walking the rest of the chain.
		return "", err
	}

	return "", errors.WrapRetryable(lastErr, errors.ErrCodeUploadFailed, "all storage targets exhausted").
		WithUserMessage("Upload failed, please try again")
}

func (u *Uploader) maybeCompress(data []byte, contentType, name string) ([]byte, string, string) {
	if !IsCompressibleImage(contentType) {
		return data, contentType, name
	}

	compressed, newType, err := CompressImage(data, u.maxEdgePx, u.quality)
	if err != nil {
		u.logger.WithError(err).Warn("Image compression failed, uploading original")
		return data, contentType, name
	}
	if len(compressed) >= len(data) {
		return data, contentType, name
	}

	ext := path.Ext(name)
	name = name[:len(name)-len(ext)] + ".jpg"
	return compressed, newType, name
}

func (u *Uploader) isProvisioned(bucket string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.provisioned[bucket]
}

func (u *Uploader) markProvisioned(bucket string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.provisioned[bucket] = true
}

// destinationPath namespaces uploads by day and keys the object on its
// content hash, so two same-named attachments never overwrite each other.
func destinationPath(name string, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s/%x%s",
		time.Now().UTC().Format("2006/01/02"), sum[:16], path.Ext(name))
}
