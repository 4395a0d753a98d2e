// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App           AppConfig
	Logger        LoggerConfig
	Database      DatabaseConfig
	Queue         QueueConfig
	Server        ServerConfig
	Auth          AuthConfig
	Relationships RelationshipConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// DataPath is the base directory for the database, queue, and key files.
	DataPath string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DatabaseConfig holds sqlite configuration.
type DatabaseConfig struct {
	Path string // default: {data}/tagyard.db
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	// Path is the Badger directory. Empty keeps the queue in memory.
	Path string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	// WritesPerMinute caps mutating requests per client IP (default: 120).
	WritesPerMinute int
	WriteBurst      int // default: 20
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// KeyPath points at the hex-encoded PASETO v4 key (default: {data}/auth.key).
	KeyPath string
	// AccessTokenKey is set by auth.LoadOrGenerateKey in main.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration // e.g., 24h
}

// RelationshipConfig tunes the relationship engine and its workers.
type RelationshipConfig struct {
	Workers              int           // job pool workers (default: 2)
	BatchSize            int           // posts per propagation batch (default: 500)
	Concurrency          int           // parallel post rewrites per batch (default: 4)
	MaxRetries           int           // retries after the first attempt (default: 5)
	RetryBase            time.Duration // first retry delay, doubled each time (default: 2s)
	BuilderApprovalLimit int           // builder approval post count cap; 0 disables
	ProposalsPerHour     int           // per-user proposal rate (default: 30)
	ProposalBurst        int           // per-user burst (default: 5)
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tagyard", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for server data")
	databasePath := fs.String("database-path", "", "Path to the sqlite database")
	queuePath := fs.String("queue-path", "", "Path to the job queue (empty: in memory)")

	// Auth flags
	keyPath := fs.String("auth-key-path", "", "Path to the token key file")
	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (e.g., 24h)")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	// Relationship flags
	workers := fs.String("relationship-workers", "", "Relationship job workers (default: 2)")
	batchSize := fs.String("propagation-batch-size", "", "Posts per propagation batch (default: 500)")
	concurrency := fs.String("propagation-concurrency", "", "Parallel post rewrites (default: 4)")
	maxRetries := fs.String("relationship-max-retries", "", "Propagation retries (default: 5)")
	retryBase := fs.String("relationship-retry-base", "", "First retry delay (default: 2s)")
	builderLimit := fs.String("builder-approval-limit", "", "Max posts a builder may approve (default: 0, disabled)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataPath:    getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Path: getConfigValue(*databasePath, "DATABASE_PATH", ""),
		},
		Queue: QueueConfig{
			Path: getConfigValue(*queuePath, "QUEUE_PATH", ""),
		},
		Server: ServerConfig{
			Port:            getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			WritesPerMinute: getIntConfigValue("", "SERVER_WRITES_PER_MINUTE", 120),
			WriteBurst:      getIntConfigValue("", "SERVER_WRITE_BURST", 20),
		},
		Auth: AuthConfig{
			KeyPath: getConfigValue(*keyPath, "AUTH_KEY_PATH", ""),
		},
		Relationships: RelationshipConfig{
			Workers:              getIntConfigValue(*workers, "RELATIONSHIP_WORKERS", 2),
			BatchSize:            getIntConfigValue(*batchSize, "PROPAGATION_BATCH_SIZE", 500),
			Concurrency:          getIntConfigValue(*concurrency, "PROPAGATION_CONCURRENCY", 4),
			MaxRetries:           getIntConfigValue(*maxRetries, "RELATIONSHIP_MAX_RETRIES", 5),
			BuilderApprovalLimit: getIntConfigValue(*builderLimit, "BUILDER_APPROVAL_LIMIT", 0),
			ProposalsPerHour:     getIntConfigValue("", "PROPOSAL_RATE_PER_HOUR", 30),
			ProposalBurst:        getIntConfigValue("", "PROPOSAL_BURST", 5),
		},
	}

	durations := []struct {
		name   string
		flag   string
		envKey string
		def    string
		dst    *time.Duration
	}{
		{"access token duration", *accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h", &cfg.Auth.AccessTokenDuration},
		{"read timeout", *readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{"write timeout", *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{"idle timeout", *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"retry base", *retryBase, "RELATIONSHIP_RETRY_BASE", "2s", &cfg.Relationships.RetryBase},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty after expansion")
	}

	if c.Server.WritesPerMinute < 1 || c.Server.WriteBurst < 1 {
		return errors.New("server write rate and burst must be at least 1")
	}

	r := c.Relationships
	switch {
	case r.Workers < 1:
		return fmt.Errorf("relationship workers must be at least 1, got %d", r.Workers)
	case r.BatchSize < 1:
		return fmt.Errorf("propagation batch size must be at least 1, got %d", r.BatchSize)
	case r.Concurrency < 1:
		return fmt.Errorf("propagation concurrency must be at least 1, got %d", r.Concurrency)
	case r.MaxRetries < 0:
		return fmt.Errorf("relationship max retries cannot be negative, got %d", r.MaxRetries)
	case r.RetryBase <= 0:
		return errors.New("relationship retry base must be positive")
	case r.BuilderApprovalLimit < 0:
		return fmt.Errorf("builder approval limit cannot be negative, got %d", r.BuilderApprovalLimit)
	case r.ProposalsPerHour < 1 || r.ProposalBurst < 1:
		return errors.New("proposal rate and burst must be at least 1")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data directory and the files that default into it.
// The queue path stays empty unless configured.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	data, err := expandPath(c.App.DataPath, filepath.Join(homeDir, "Tagyard"))
	if err != nil {
		return err
	}
	c.App.DataPath = data

	if c.Database.Path, err = expandPath(c.Database.Path, filepath.Join(data, "tagyard.db")); err != nil {
		return err
	}
	if c.Auth.KeyPath, err = expandPath(c.Auth.KeyPath, filepath.Join(data, "auth.key")); err != nil {
		return err
	}
	if c.Queue.Path, err = expandPath(c.Queue.Path, ""); err != nil {
		return err
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
