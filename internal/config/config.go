// Package config loads server settings from flags, environment variables,
// and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// DefaultJWTSecret is only acceptable in dev mode.
const DefaultJWTSecret = "dev-secret-change-me"

// Config holds application configuration.
type Config struct {
	Port               string        `mapstructure:"port"`
	Store              string        `mapstructure:"store"`
	RedisURL           string        `mapstructure:"redis_url"`
	DatabaseURL        string        `mapstructure:"database_url"`
	JWTSecret          string        `mapstructure:"jwt_secret"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	PublicURL          string        `mapstructure:"public_url"`
	ScenarioFile       string        `mapstructure:"scenario_file"`
	CORSOrigins        string        `mapstructure:"cors_origins"`
	DevMode            bool          `mapstructure:"dev_mode"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFile            string        `mapstructure:"log_file"`
	GoogleClientID     string        `mapstructure:"google_client_id"`
	GoogleClientSecret string        `mapstructure:"google_client_secret"`
	GoogleRedirectURL  string        `mapstructure:"google_redirect_url"`
}

var defaults = map[string]any{
	"port":                 "8009",
	"store":                StoreRedis,
	"redis_url":            "redis://localhost:6379/0",
	"database_url":         "",
	"jwt_secret":           DefaultJWTSecret,
	"poll_interval":        2 * time.Second,
	"public_url":           "",
	"scenario_file":        "",
	"cors_origins":         "*",
	"dev_mode":             false,
	"log_level":            "info",
	"log_file":             "",
	"google_client_id":     "",
	"google_client_secret": "",
	"google_redirect_url":  "",
}

var usage = map[string]string{
	"port":                 "port to listen on",
	"store":                "live session store: redis or memory",
	"redis_url":            "redis connection url",
	"database_url":         "postgres url for users and archives (optional)",
	"jwt_secret":           "secret used to sign tokens",
	"poll_interval":        "how often the scheduler checks phase timers",
	"public_url":           "externally reachable base url used in join links",
	"scenario_file":        "yaml file with extra scenarios",
	"cors_origins":         "value of Access-Control-Allow-Origin",
	"dev_mode":             "enable /auth/dev and colored logs",
	"log_level":            "debug, info, warn or error",
	"log_file":             "also append log lines to this file",
	"google_client_id":     "google oauth client id",
	"google_client_secret": "google oauth client secret",
	"google_redirect_url":  "google oauth redirect url",
}

// New returns a viper instance with defaults and environment lookup
// configured. Environment keys are the upper-cased setting names
// (PORT, REDIS_URL, ...).
func New() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers one flag per setting on fs and binds it to v. Flag
// names use dashes (--redis-url).
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("config", "", "optional config file (yaml, json or toml)")
	for key, def := range defaults {
		name := strings.ReplaceAll(key, "_", "-")
		switch d := def.(type) {
		case string:
			fs.String(name, d, usage[key])
		case bool:
			fs.Bool(name, d, usage[key])
		case time.Duration:
			fs.Duration(name, d, usage[key])
		}
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
	_ = v.BindPFlag("config", fs.Lookup("config"))
}

// Load reads the optional config file named by the "config" key and
// decodes every setting.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %q", c.Port)
	}
	if c.Store != StoreRedis && c.Store != StoreMemory {
		return fmt.Errorf("invalid store %q (want %s or %s)", c.Store, StoreRedis, StoreMemory)
	}
	if c.Store == StoreRedis && c.RedisURL == "" {
		return errors.New("redis_url is required with the redis store")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == DefaultJWTSecret && !c.DevMode {
		return errors.New("jwt_secret must be changed outside dev mode")
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}
