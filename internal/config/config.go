// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the scheduling backend.
type Config struct {
	StorageDir   string // directory holding queries.json, connections.yaml, credentials.json, tags.json
	ListenAddr   string // HTTP listen address (default ":9494")
	PlotlyAPIURL string // base URL of the grid store API (default "https://api.plot.ly")
	LogLevel     string // log level: debug, info, warn, error (default "info")

	// MinRefreshInterval is the smallest accepted refresh interval in seconds.
	MinRefreshInterval int64

	// GridHTTPTimeout bounds each individual grid-store request. Query runs
	// themselves are not bounded here; data sources enforce their own limits.
	GridHTTPTimeout time.Duration

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QueriesPath returns the location of the persisted query collection.
func (c *Config) QueriesPath() string { return filepath.Join(c.StorageDir, "queries.json") }

// ConnectionsPath returns the location of the persisted connection collection.
func (c *Config) ConnectionsPath() string { return filepath.Join(c.StorageDir, "connections.yaml") }

// CredentialsPath returns the location of the stored API credentials.
func (c *Config) CredentialsPath() string { return filepath.Join(c.StorageDir, "credentials.json") }

// TagsPath returns the location of the persisted tag collection.
func (c *Config) TagsPath() string { return filepath.Join(c.StorageDir, "tags.json") }

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		StorageDir:   os.Getenv("STORAGE_DIR"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		PlotlyAPIURL: os.Getenv("PLOTLY_API_URL"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}

	if v := os.Getenv("MIN_REFRESH_INTERVAL"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MinRefreshInterval = n
		}
	}
	if v := os.Getenv("GRID_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.GridHTTPTimeout = d
		}
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.StorageDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("STORAGE_DIR not set and home directory unavailable: %w", err)
		}
		cfg.StorageDir = filepath.Join(home, ".plotly", "connector")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9494"
	}
	if cfg.PlotlyAPIURL == "" {
		cfg.PlotlyAPIURL = "https://api.plot.ly"
		cfg.Warnings = append(cfg.Warnings, "PLOTLY_API_URL not set, defaulting to https://api.plot.ly")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MinRefreshInterval == 0 {
		cfg.MinRefreshInterval = 60
	}
	if cfg.GridHTTPTimeout == 0 {
		cfg.GridHTTPTimeout = 30 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
