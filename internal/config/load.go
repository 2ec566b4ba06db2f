package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load,
// e.g. SITEGEN_REDIS_ADDRESS for redis.address.
const EnvPrefix = "SITEGEN"

// keys without a default that must still be bound to the environment
var requiredKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"llm.gemini_api_key",
	"storage.access_key",
	"storage.secret_key",
	"redis.password",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.name", "websitegeneration")
	v.SetDefault("queue.worker_count", 2)
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.stalled_check_interval", "1m")
	v.SetDefault("queue.stall_grace", "2m")
	v.SetDefault("queue.max_attempts", 2)
	v.SetDefault("queue.backoff_base", "5s")
	v.SetDefault("queue.website_timeout", "20m")
	v.SetDefault("queue.more_blogs_timeout", "10m")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.image_model_name", "imagen-3.0-generate-002")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.title_count", 3)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "website-assets")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.url_expiry", "168h")

	v.SetDefault("auth.token_lifetime", "24h")
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory and SITEGEN_ environment variables, in increasing order
// of precedence, and validates the result.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path looks
// for config.yaml in the working directory and tolerates its absence.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
