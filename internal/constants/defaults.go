package constants

// Default sync configuration values
const (
	DefaultPollIntervalMs      = 2000
	DefaultWatchIntervalMs     = 2000
	DefaultEventBufferSize     = 64
	DefaultBackoffInitialMs    = 500
	DefaultBackoffMaxMs        = 30000
	DefaultMaxAttempts         = 3
	DefaultGracefulShutdownSec = 30
)

// Default HTTP client values
const (
	DefaultHTTPTimeoutSec = 30
)

// Request validation limits
const (
	MaxUserIDLength  = 128
	MaxContentLength = 65536
)

// Circuit breaker defaults for the primary store client
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerCooldownSec = 30
)

// Default media configuration values
const (
	DefaultMaxAttachmentSizeMB = 25
	DefaultImageMaxEdgePx      = 1200
	DefaultJpegQuality         = 80
)

// Profile defaults used when neither backend yields a usable profile
const (
	DefaultDisplayName   = "User"
	DefaultAvatarBaseURL = "https://ui-avatars.com/api/?name="
)
