package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains the content store connection settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
}

// RedisConfig contains the job queue backend connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// QueueConfig controls job scheduling and the worker pool.
type QueueConfig struct {
	Name                 string        `mapstructure:"name" validate:"required,alphanum"`
	WorkerCount          int           `mapstructure:"worker_count" validate:"gte=1,lte=64"`
	PollInterval         time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	StalledCheckInterval time.Duration `mapstructure:"stalled_check_interval" validate:"gt=0"`
	// StallGrace is added to a job's timeout to form the lease after which
	// an active job whose worker vanished is considered stalled.
	StallGrace       time.Duration `mapstructure:"stall_grace" validate:"gte=0"`
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BackoffBase      time.Duration `mapstructure:"backoff_base" validate:"gt=0"`
	WebsiteTimeout   time.Duration `mapstructure:"website_timeout" validate:"gt=0"`
	MoreBlogsTimeout time.Duration `mapstructure:"more_blogs_timeout" validate:"gt=0"`
}

// LLMConfig contains remote content generator settings. The API key may be
// empty at load time; generation then fails with a configuration error.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	ImageModelName    string `mapstructure:"image_model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" validate:"gte=1"`
	TitleCount        int    `mapstructure:"title_count" validate:"gte=1,lte=20"`
}

// StorageConfig contains the S3-compatible object store settings used to
// relocate generated images.
type StorageConfig struct {
	Endpoint  string        `mapstructure:"endpoint" validate:"required"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Bucket    string        `mapstructure:"bucket" validate:"required"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	URLExpiry time.Duration `mapstructure:"url_expiry" validate:"gt=0,lte=168h"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetime bounds tokens minted by the token command.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}
