package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "tabsynth"
	AppDescription = "Differentially private tabular data synthesizer"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Environment variables are read with this prefix, e.g. TABSYNTH_SYNTHESIS_EPSILON
	EnvPrefix = "TABSYNTH"

	// Default configuration values
	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	MaxRequestSize         = 64 * 1024 * 1024

	// Synthesis defaults
	DefaultHistogramBins     = "20"
	DefaultCategoryThreshold = 20
	DefaultEpsilon           = 0.1
	DefaultDegree            = 0
	DefaultSeed              = 0
	DefaultTargetUsefulness  = 4.0
	FallbackDegree           = 3
	MaxGenerationSize        = 10000000

	// Storage defaults
	DefaultStorageTimeout = 30 * time.Second
	DefaultStorageDir     = "./descriptions"
	DefaultKeyPrefix      = "tabsynth:description:"
	DefaultS3Prefix       = "descriptions/"
	DefaultPostgresTable  = "descriptions"
)

// DefaultNullValues are the raw cell values read as missing.
var DefaultNullValues = []string{"", "NULL", "N/A", "NA", "NaN", "nan"}

// HTTP headers
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
)

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Synthesis modes
const (
	ModeRandom      = "random"
	ModeIndependent = "independent"
	ModeCorrelated  = "correlated"
)

// Storage backends
const (
	StorageTypeFile     = "file"
	StorageTypeRedis    = "redis"
	StorageTypeS3       = "s3"
	StorageTypePostgres = "postgres"
)

// Privacy ledger purposes
const (
	PurposeAttributeDistributions   = "attribute_distributions"
	PurposeNetworkStructure         = "network_structure"
	PurposeConditionalDistributions = "conditional_distributions"
)
