// Package config loads gateway settings from the environment, an optional
// .env file and an optional TOML file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds every setting of the feed gateway and the admin CLI.
type Config struct {
	HTTPAddr string `toml:"http_addr"`

	// Backend (Hasura-style GraphQL)
	GraphQLURL     string        `toml:"graphql_url"`
	GraphQLWSURL   string        `toml:"graphql_ws_url"`
	BackendToken   string        `toml:"backend_token"`
	BackendTimeout time.Duration `toml:"-"`

	// Auth
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`

	// Storage
	DatabaseDSN   string `toml:"database_dsn"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// Notifications
	TelegramBotToken string `toml:"telegram_bot_token"`
	LocaleDefault    string `toml:"locale_default"`
	// LocalesDir replaces the embedded catalogues when set.
	LocalesDir       string `toml:"locales_dir"`

	// Feed
	PageSize int `toml:"page_size"`

	// Serial queue
	QueueTimeout     time.Duration `toml:"-"`
	QueueMaxAttempts int           `toml:"queue_max_attempts"`
	QueueBaseBackoff time.Duration `toml:"-"`
	QueueMaxBackoff  time.Duration `toml:"-"`
}

// fileConfig mirrors Config for the TOML file, with durations as strings.
type fileConfig struct {
	Config
	BackendTimeout   string `toml:"backend_timeout"`
	QueueTimeout     string `toml:"queue_timeout"`
	QueueBaseBackoff string `toml:"queue_base_backoff"`
	QueueMaxBackoff  string `toml:"queue_max_backoff"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		HTTPAddr:         ":8080",
		GraphQLURL:       "http://localhost:8081/v1/graphql",
		GraphQLWSURL:     "ws://localhost:8081/v1/graphql",
		BackendTimeout:   10 * time.Second,
		JWTIssuer:        "spacechat-gateway",
		DatabaseDSN:      "host=localhost user=user password=password dbname=spacechat port=5432 sslmode=disable",
		RedisAddr:        "localhost:6379",
		LocaleDefault:    "en",
		PageSize:         DefaultPageSize,
		QueueTimeout:     QueueTaskTimeout,
		QueueMaxAttempts: QueueMaxAttempts,
		QueueBaseBackoff: QueueBaseBackoff,
		QueueMaxBackoff:  QueueMaxBackoff,
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML overlays the values present in the TOML file onto cfg.
func LoadTOML(cfg *Config, path string) error {
	fc := fileConfig{Config: *cfg}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	*cfg = fc.Config

	durations := []struct {
		raw    string
		target *time.Duration
		name   string
	}{
		{fc.BackendTimeout, &cfg.BackendTimeout, "backend_timeout"},
		{fc.QueueTimeout, &cfg.QueueTimeout, "queue_timeout"},
		{fc.QueueBaseBackoff, &cfg.QueueBaseBackoff, "queue_base_backoff"},
		{fc.QueueMaxBackoff, &cfg.QueueMaxBackoff, "queue_max_backoff"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, path, err)
		}
		*d.target = v
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, target *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*target = v
		}
	}
	setString("HTTP_ADDR", &cfg.HTTPAddr)
	setString("GRAPHQL_URL", &cfg.GraphQLURL)
	setString("GRAPHQL_WS_URL", &cfg.GraphQLWSURL)
	setString("BACKEND_TOKEN", &cfg.BackendToken)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("JWT_ISSUER", &cfg.JWTIssuer)
	setString("DATABASE_DSN", &cfg.DatabaseDSN)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken)
	setString("LOCALE_DEFAULT", &cfg.LocaleDefault)
	setString("LOCALES_DIR", &cfg.LocalesDir)

	ints := map[string]*int{
		"REDIS_DB":           &cfg.RedisDB,
		"PAGE_SIZE":          &cfg.PageSize,
		"QUEUE_MAX_ATTEMPTS": &cfg.QueueMaxAttempts,
	}
	for key, target := range ints {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*target = n
	}

	durations := map[string]*time.Duration{
		"BACKEND_TIMEOUT":    &cfg.BackendTimeout,
		"QUEUE_TIMEOUT":      &cfg.QueueTimeout,
		"QUEUE_BASE_BACKOFF": &cfg.QueueBaseBackoff,
		"QUEUE_MAX_BACKOFF":  &cfg.QueueMaxBackoff,
	}
	for key, target := range durations {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*target = d
	}
	return nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.GraphQLURL == "" {
		return fmt.Errorf("GRAPHQL_URL is required")
	}
	if c.PageSize < MinPageSize {
		return fmt.Errorf("page size must be at least %d, got %d", MinPageSize, c.PageSize)
	}
	if c.QueueMaxAttempts <= 0 {
		return fmt.Errorf("queue max attempts must be positive, got %d", c.QueueMaxAttempts)
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("queue timeout must be positive, got %s", c.QueueTimeout)
	}
	return nil
}
