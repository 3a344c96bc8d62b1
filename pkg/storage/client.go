// Package storage uploads attachment payloads through an ordered chain of
// object-storage targets.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/models"
)

// ObjectStore is the storage-target contract the uploader walks.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	ProvisionBucket(ctx context.Context, name string, public bool) error
}

// Client talks to the object storage HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates an object storage client from config.
func NewClient(cfg models.StorageConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if cfg.TimeoutSec <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.APIBaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Upload stores the payload under bucket/path and returns a retrievable URL.
// A missing bucket maps to NOT_FOUND so the caller can advance its chain.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("/object/%s/%s", url.PathEscape(bucket), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.NewAPIError("storage", endpoint, 0, err)
	}
	defer resp.Body.Close()

	var result uploadResponse
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeStorageAPI, "failed to decode upload response")
		}
		return result.URL, nil
	}

	_ = json.NewDecoder(resp.Body).Decode(&result)
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
	return "", errors.NewAPIError("storage", endpoint, resp.StatusCode, cause)
}

type provisionRequest struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// ProvisionBucket creates a bucket. An already-existing bucket is success.
func (c *Client) ProvisionBucket(ctx context.Context, name string, public bool) error {
	payload, err := json.Marshal(provisionRequest{Name: name, Public: public})
	if err != nil {
		return fmt.Errorf("failed to marshal provision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bucket", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create provision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewAPIError("storage", "/bucket", 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		// Conflict means the bucket already exists, which is fine.
		return nil
	default:
		var result uploadResponse
		_ = json.NewDecoder(resp.Body).Decode(&result)
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
		return errors.NewAPIError("storage", "/bucket", resp.StatusCode, cause)
	}
}
