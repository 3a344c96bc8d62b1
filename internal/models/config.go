package models

// Config holds the application configuration
type Config struct {
	Session   SessionConfig   `json:"session"`
	Primary   PrimaryConfig   `json:"primary"`
	Secondary SecondaryConfig `json:"secondary"`
	Storage   StorageConfig   `json:"storage"`
	Media     MediaConfig     `json:"media"`
	Sync      SyncConfig      `json:"sync"`
	Retry     RetryConfig     `json:"retry"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

// SessionConfig identifies the local user the engine synchronizes for.
type SessionConfig struct {
	UserID string `json:"user_id"`
}

// PrimaryConfig holds the document store (Primary) connection settings.
type PrimaryConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	WebsocketURL string `json:"websocket_url"`
	APIKey       string `json:"api_key"`
	TimeoutSec   int    `json:"timeout_sec"`
}

// SecondaryConfig holds the relational store (Secondary) settings.
type SecondaryConfig struct {
	Path            string `json:"path"`
	WatchIntervalMs int    `json:"watch_interval_ms"`
}

// StorageConfig holds the object storage settings, including the ordered
// candidate bucket chain the uploader walks.
type StorageConfig struct {
	APIBaseURL string         `json:"api_base_url"`
	APIKey     string         `json:"api_key"`
	TimeoutSec int            `json:"timeout_sec"`
	Buckets    []BucketConfig `json:"buckets"`
}

// BucketConfig describes one candidate storage target. Provision marks
// targets that may need to be created before the first upload.
type BucketConfig struct {
	Name      string `json:"name"`
	Public    bool   `json:"public"`
	Provision bool   `json:"provision"`
}

// MediaConfig holds attachment handling settings.
type MediaConfig struct {
	MaxAttachmentSizeMB int `json:"max_attachment_size_mb"`
	ImageMaxEdgePx      int `json:"image_max_edge_px"`
	JpegQuality         int `json:"jpeg_quality"`
}

// SyncConfig holds live-sync settings.
type SyncConfig struct {
	PollIntervalMs int `json:"poll_interval_ms"`
}

// RetryConfig holds backoff settings for transient backend failures.
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"service_name"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
