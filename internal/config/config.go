package config

import (
	"encoding/json"
	"fmt"
	"os"

	"chatsync/internal/constants"
	"chatsync/internal/models"
)

var (
	ErrMissingUserID     = models.ConfigError{Message: "missing session user id"}
	ErrMissingPrimaryURL = models.ConfigError{Message: "missing primary API base URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing secondary store path"}
	ErrMissingStorageURL = models.ConfigError{Message: "missing storage API base URL"}
)

// LoadConfig reads and validates the JSON configuration file, fills in
// defaults, and applies environment overrides on top.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Session.UserID == "" {
		return ErrMissingUserID
	}
	if c.Primary.APIBaseURL == "" {
		return ErrMissingPrimaryURL
	}
	if c.Secondary.Path == "" {
		return ErrMissingDBPath
	}
	if c.Storage.APIBaseURL == "" {
		return ErrMissingStorageURL
	}

	if len(c.Storage.Buckets) == 0 {
		return models.ConfigError{Message: "storage buckets array is required and must contain at least one bucket"}
	}
	names := make(map[string]bool)
	for i, bucket := range c.Storage.Buckets {
		if bucket.Name == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty bucket name at index %d", i)}
		}
		if names[bucket.Name] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate bucket name: %s", bucket.Name)}
		}
		names[bucket.Name] = true
	}

	if c.Primary.TimeoutSec <= 0 {
		c.Primary.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Storage.TimeoutSec <= 0 {
		c.Storage.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Secondary.WatchIntervalMs <= 0 {
		c.Secondary.WatchIntervalMs = constants.DefaultWatchIntervalMs
	}
	if c.Sync.PollIntervalMs <= 0 {
		c.Sync.PollIntervalMs = constants.DefaultPollIntervalMs
	}

	if c.Media.MaxAttachmentSizeMB <= 0 {
		c.Media.MaxAttachmentSizeMB = constants.DefaultMaxAttachmentSizeMB
	}
	if c.Media.ImageMaxEdgePx <= 0 {
		c.Media.ImageMaxEdgePx = constants.DefaultImageMaxEdgePx
	}
	if c.Media.JpegQuality <= 0 || c.Media.JpegQuality > 100 {
		c.Media.JpegQuality = constants.DefaultJpegQuality
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "chatsync"
	}
	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
		c.Tracing.SampleRate = 1.0
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("CHATSYNC_USER_ID"); v != "" {
		c.Session.UserID = v
	}
	if v := os.Getenv("CHATSYNC_PRIMARY_API_URL"); v != "" {
		c.Primary.APIBaseURL = v
	}
	if v := os.Getenv("CHATSYNC_PRIMARY_WS_URL"); v != "" {
		c.Primary.WebsocketURL = v
	}
	// API keys should come from the environment, not the config file.
	if v := os.Getenv("CHATSYNC_PRIMARY_API_KEY"); v != "" {
		c.Primary.APIKey = v
	}
	if v := os.Getenv("CHATSYNC_DB_PATH"); v != "" {
		c.Secondary.Path = v
	}
	if v := os.Getenv("CHATSYNC_STORAGE_API_URL"); v != "" {
		c.Storage.APIBaseURL = v
	}
	if v := os.Getenv("CHATSYNC_STORAGE_API_KEY"); v != "" {
		c.Storage.APIKey = v
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CHATSYNC_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
}
