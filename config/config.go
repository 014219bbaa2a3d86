package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Session storage backends.
const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ServerConfig holds all configuration for the server. Tags use mapstructure
// for Viper unmarshalling; keys double as environment variable names.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	SessionBackend     string `mapstructure:"SESSION_BACKEND"`
	MongoURI           string `mapstructure:"MONGO_URI"`
	MongoDBName        string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisKeyPrefix     string `mapstructure:"REDIS_KEY_PREFIX"`
	SessionCacheTTLSec int    `mapstructure:"SESSION_CACHE_TTL_SEC"`

	// WorkOSClientID must be present; refresh exchanges cannot run without
	// it and its absence is a startup error, not a per-request one.
	WorkOSClientID string `mapstructure:"WORKOS_CLIENT_ID"`
	WorkOSTokenURL string `mapstructure:"WORKOS_TOKEN_URL"`
	WorkOSJWKSURL  string `mapstructure:"WORKOS_JWKS_URL"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults, then validates it.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/tokenvault/")
	v.AddConfigPath("$HOME/.tokenvault")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("SESSION_BACKEND", BackendMongo)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/tokenvault_dev")
	v.SetDefault("MONGO_DB_NAME", "tokenvault_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_KEY_PREFIX", "tokenvault")
	v.SetDefault("SESSION_CACHE_TTL_SEC", 0) // disabled unless set
	v.SetDefault("WORKOS_TOKEN_URL", "https://api.workos.com/user_management/authenticate")
	v.SetDefault("WORKOS_JWKS_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "tokenvault")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply. Other
		// read errors (permissions, malformed file) are real failures.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on configuration the server cannot run without.
func (c *ServerConfig) Validate() error {
	if c.WorkOSClientID == "" {
		return errors.New("WORKOS_CLIENT_ID is required")
	}
	switch c.SessionBackend {
	case BackendMongo, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	return nil
}
