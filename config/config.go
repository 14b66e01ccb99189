// Package config loads application configuration from environment variables
// and an optional config file named by CONFIG_FILE. Environment variables
// take precedence over the file, and every key has a default.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	HTTPPort int    `mapstructure:"http_port" validate:"gt=0,lt=65536"`
	AppEnv   string `mapstructure:"app_env"`

	DBDriver         string        `mapstructure:"db_driver" validate:"oneof=sqlite postgres"`
	DBPath           string        `mapstructure:"db_path" validate:"required_if=DBDriver sqlite"`
	DatabaseURL      string        `mapstructure:"database_url"`
	DBHost           string        `mapstructure:"db_host"`
	DBPort           int           `mapstructure:"db_port" validate:"gt=0,lt=65536"`
	DBName           string        `mapstructure:"db_name"`
	DBUser           string        `mapstructure:"db_user"`
	DBPassword       string        `mapstructure:"db_password"`
	DBMaxConns       int           `mapstructure:"db_max_conns" validate:"gt=0"`
	DBAcquireTimeout time.Duration `mapstructure:"db_acquire_timeout" validate:"gt=0"`
	DBIdleTimeout    time.Duration `mapstructure:"db_idle_timeout" validate:"gte=0"`

	CacheDriver        string        `mapstructure:"cache_driver" validate:"oneof=redis memory"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	RedisHost          string        `mapstructure:"redis_host"`
	RedisPort          int           `mapstructure:"redis_port" validate:"gt=0,lt=65536"`
	CachePrefix        string        `mapstructure:"cache_prefix"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	CacheStatsTTL      time.Duration `mapstructure:"cache_stats_ttl" validate:"gt=0"`
	CacheOpTimeout     time.Duration `mapstructure:"cache_op_timeout" validate:"gt=0"`
	CacheProbeInterval time.Duration `mapstructure:"cache_probe_interval" validate:"gte=0"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

var defaults = map[string]any{
	"http_port": 3000,
	"app_env":   "production",

	"db_driver":          "sqlite",
	"db_path":            "./tasks.db",
	"database_url":       "",
	"db_host":            "localhost",
	"db_port":            5432,
	"db_name":            "taskboard",
	"db_user":            "postgres",
	"db_password":        "",
	"db_max_conns":       10,
	"db_acquire_timeout": 5 * time.Second,
	"db_idle_timeout":    30 * time.Second,

	"cache_driver":         "redis",
	"redis_addr":           "",
	"redis_host":           "localhost",
	"redis_port":           6379,
	"cache_prefix":         "",
	"cache_ttl":            60 * time.Second,
	"cache_stats_ttl":      30 * time.Second,
	"cache_op_timeout":     500 * time.Millisecond,
	"cache_probe_interval": 5 * time.Second,

	"shutdown_timeout": 30 * time.Second,
}

// Load reads configuration from the environment and the optional config file,
// resolves derived values and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	// PORT is what most platforms inject; HTTP_PORT wins when both are set.
	if err := v.BindEnv("http_port", "HTTP_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Development reports whether APP_ENV selects development mode.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// RedisAddress returns REDIS_ADDR, or REDIS_HOST:REDIS_PORT when it is unset.
func (c *Config) RedisAddress() string {
	if c.RedisAddr != "" {
		return c.RedisAddr
	}
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// PostgresURL returns DATABASE_URL, or a URL assembled from the DB_* parts when it is unset.
func (c *Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	return u.String()
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
