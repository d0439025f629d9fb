// Package config loads the chat backend configuration from defaults, an optional
// config file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable derived from a config key.
const EnvPrefix = "CHAT"

// Config is the root configuration.
type Config struct {
	HTTP            HTTPConfig      `mapstructure:"http"`
	Database        DatabaseConfig  `mapstructure:"database"`
	Auth            AuthConfig      `mapstructure:"auth"`
	Redis           RedisConfig     `mapstructure:"redis"`
	RateLimit       RateLimitConfig `mapstructure:"ratelimit"`
	Cleanup         CleanupConfig   `mapstructure:"cleanup"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdownTimeout"`
}

// HTTPConfig configures the Fiber server and the links it hands out.
type HTTPConfig struct {
	Port           int    `mapstructure:"port"`
	FrontendURL    string `mapstructure:"frontendURL"`
	BackendURL     string `mapstructure:"backendURL"`
	AllowedOrigins string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig selects the GORM dialector.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	SecretKey         string        `mapstructure:"secretKey"`
	Issuer            string        `mapstructure:"issuer"`
	SessionTTL        time.Duration `mapstructure:"sessionTTL"`
	ActivationTTL     time.Duration `mapstructure:"activationTTL"`
	RequireActivation bool          `mapstructure:"requireActivation"`
}

// RedisConfig points at the optional Redis instance. An empty Addr disables
// every Redis-backed feature.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// RateLimitConfig bounds socket chat messages and the public auth endpoints.
type RateLimitConfig struct {
	ChatMessages int           `mapstructure:"chatMessages"`
	ChatWindow   time.Duration `mapstructure:"chatWindow"`
	AuthRequests int           `mapstructure:"authRequests"`
	AuthWindow   time.Duration `mapstructure:"authWindow"`
}

// CleanupConfig drives the stale room sweeper.
type CleanupConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxIdle  time.Duration `mapstructure:"maxIdle"`
}

// legacyEnv maps config keys to the environment names older deployments used.
var legacyEnv = map[string]string{
	"http.port":           "PORT",
	"http.frontendURL":    "FRONT_END_URL",
	"http.backendURL":     "BACKEND_URL",
	"auth.secretKey":      "WEB_TOKEN_SECRET_KEY",
	"database.dsn":        "DATABASE_URL",
	"redis.addr":          "REDIS_ADDR",
	"auth.issuer":         "JWT_ISSUER",
	"shutdownTimeout":     "SHUTDOWN_TIMEOUT",
	"database.driver":     "DATABASE_DRIVER",
	"redis.password":      "REDIS_PASSWORD",
	"http.allowedOrigins": "ALLOWED_ORIGINS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.frontendURL", "http://localhost:3001")
	v.SetDefault("http.backendURL", "http://localhost:3000")
	v.SetDefault("http.allowedOrigins", "*")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "chat.db")

	v.SetDefault("auth.secretKey", "change-me-in-production")
	v.SetDefault("auth.issuer", "chat-backend")
	v.SetDefault("auth.sessionTTL", "168h")
	v.SetDefault("auth.activationTTL", "120h")
	v.SetDefault("auth.requireActivation", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.chatMessages", 20)
	v.SetDefault("ratelimit.chatWindow", "10s")
	v.SetDefault("ratelimit.authRequests", 10)
	v.SetDefault("ratelimit.authWindow", "1m")

	v.SetDefault("cleanup.interval", "1h")
	v.SetDefault("cleanup.maxIdle", "480h")

	v.SetDefault("shutdownTimeout", "30s")
}

// Load reads configuration. fileName is looked up without extension in the
// working directory; a missing file is not an error.
func Load(fileName string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if fileName != "" {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Auth.SecretKey == "" {
		return errors.New("auth.secretKey is required")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.ActivationTTL <= 0 {
		return errors.New("auth token lifetimes must be positive")
	}
	if c.RateLimit.ChatMessages <= 0 || c.RateLimit.ChatWindow <= 0 {
		return errors.New("ratelimit.chatMessages and ratelimit.chatWindow must be positive")
	}
	if c.RateLimit.AuthRequests <= 0 || c.RateLimit.AuthWindow <= 0 {
		return errors.New("ratelimit.authRequests and ratelimit.authWindow must be positive")
	}
	return nil
}
