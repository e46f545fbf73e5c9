package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
}

// ServerConfig contains the HTTP server and logging settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port"                     validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level"                validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
}

// ShutdownTimeout is the grace period for in-flight requests and items.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and configures the batch store.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"         validate:"required,oneof=postgres memory"`
	URL          string `mapstructure:"url"            validate:"required_if=Driver postgres"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
}

// LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// LLMConfig configures the analysis provider.
type LLMConfig struct {
	Provider          string `mapstructure:"provider"            validate:"required,oneof=gemini none"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"      validate:"required_unless=Provider none"`
	ModelName         string `mapstructure:"model_name"          validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" validate:"gte=0"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"     validate:"gte=1"`
}

// Timeout bounds one analysis call including retries.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Storage backends.
const (
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// StorageConfig configures where segment audio is read from.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"           validate:"required,oneof=gcs local"`
	Bucket          string `mapstructure:"bucket"            validate:"required_if=Backend gcs"`
	Prefix          string `mapstructure:"prefix"`
	LocalDir        string `mapstructure:"local_dir"         validate:"required_if=Backend local"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes" validate:"gte=0"`
	ValidateWAV     bool   `mapstructure:"validate_wav"`
}

// CacheTTL is how long fetched audio stays cached. Zero disables the cache.
func (c StorageConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// TaskConfig configures the dispatcher and recovery.
type TaskConfig struct {
	Concurrency                   int  `mapstructure:"concurrency"                        validate:"gte=1,lte=100"`
	RecoverOnStart                bool `mapstructure:"recover_on_start"`
	StuckItemAgeMinutes           int  `mapstructure:"stuck_item_age_minutes"             validate:"gte=0"`
	StuckItemCheckIntervalMinutes int  `mapstructure:"stuck_item_check_interval_minutes" validate:"gte=1"`
}

// StuckItemAge is the processing age after which an item counts as stuck.
// Zero disables the stuck-item monitor.
func (c TaskConfig) StuckItemAge() time.Duration {
	return time.Duration(c.StuckItemAgeMinutes) * time.Minute
}

// StuckItemCheckInterval is how often the stuck-item monitor runs.
func (c TaskConfig) StuckItemCheckInterval() time.Duration {
	return time.Duration(c.StuckItemCheckIntervalMinutes) * time.Minute
}
