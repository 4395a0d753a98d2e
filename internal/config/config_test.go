package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "development"},
		Logger:   LoggerConfig{Level: "info"},
		Database: DatabaseConfig{Path: "/data/tagyard.db"},
		Server:   ServerConfig{WritesPerMinute: 120, WriteBurst: 20},
		Relationships: RelationshipConfig{
			Workers:          2,
			BatchSize:        500,
			Concurrency:      4,
			MaxRetries:       5,
			RetryBase:        2 * time.Second,
			ProposalsPerHour: 30,
			ProposalBurst:    5,
		},
	}
}

// clearEnv blanks every variable LoadConfig reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "DATA_PATH", "DATABASE_PATH", "QUEUE_PATH", "AUTH_KEY_PATH",
		"ACCESS_TOKEN_DURATION", "SERVER_PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"SERVER_IDLE_TIMEOUT", "RELATIONSHIP_WORKERS", "PROPAGATION_BATCH_SIZE",
		"PROPAGATION_CONCURRENCY", "RELATIONSHIP_MAX_RETRIES", "RELATIONSHIP_RETRY_BASE",
		"BUILDER_APPROVAL_LIMIT", "PROPOSAL_RATE_PER_HOUR", "PROPOSAL_BURST",
		"SERVER_WRITES_PER_MINUTE", "SERVER_WRITE_BURST",
	} {
		t.Setenv(key, "")
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true},  // case insensitive
		{"trace", false}, // not supported
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Relationships(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *RelationshipConfig)
		wantErr string
	}{
		{"no workers", func(r *RelationshipConfig) { r.Workers = 0 }, "workers"},
		{"zero batch", func(r *RelationshipConfig) { r.BatchSize = 0 }, "batch size"},
		{"zero concurrency", func(r *RelationshipConfig) { r.Concurrency = 0 }, "concurrency"},
		{"negative retries", func(r *RelationshipConfig) { r.MaxRetries = -1 }, "max retries"},
		{"zero retry base", func(r *RelationshipConfig) { r.RetryBase = 0 }, "retry base"},
		{"negative builder limit", func(r *RelationshipConfig) { r.BuilderApprovalLimit = -1 }, "builder approval"},
		{"zero burst", func(r *RelationshipConfig) { r.ProposalBurst = 0 }, "proposal rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Relationships)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_EmptyDatabasePath(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Path = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path cannot be empty")
}

func TestExpandPaths_Defaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.expandPaths())

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	data := filepath.Join(homeDir, "Tagyard")
	assert.Equal(t, data, cfg.App.DataPath)
	assert.Equal(t, filepath.Join(data, "tagyard.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(data, "auth.key"), cfg.Auth.KeyPath)
	assert.Empty(t, cfg.Queue.Path, "queue stays in memory unless configured")
}

func TestExpandPaths_TildeAndRelative(t *testing.T) {
	cfg := &Config{
		App:   AppConfig{DataPath: "~/yard"},
		Queue: QueueConfig{Path: "relative/queue"},
	}
	require.NoError(t, cfg.expandPaths())

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	assert.Equal(t, filepath.Join(homeDir, "yard"), cfg.App.DataPath)
	assert.True(t, filepath.IsAbs(cfg.Queue.Path))
	assert.Contains(t, cfg.Queue.Path, "relative/queue")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{"--data-path", dir, "--env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, filepath.Join(dir, "tagyard.db"), cfg.Database.Path)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120, cfg.Server.WritesPerMinute)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, 5, cfg.Relationships.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Relationships.RetryBase)
	assert.Equal(t, 500, cfg.Relationships.BatchSize)
	assert.Equal(t, 0, cfg.Relationships.BuilderApprovalLimit)
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SERVER_PORT=7000\nPROPAGATION_BATCH_SIZE=50\nRELATIONSHIP_WORKERS=3\n"), 0o600))

	t.Setenv("PROPAGATION_BATCH_SIZE", "100")

	cfg, err := LoadConfig([]string{
		"--data-path", dir,
		"--env-file", envFile,
		"--relationship-workers", "8",
		"--relationship-retry-base", "500ms",
	})
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port, ".env beats the default")
	assert.Equal(t, 100, cfg.Relationships.BatchSize, "env beats .env")
	assert.Equal(t, 8, cfg.Relationships.Workers, "flag beats .env")
	assert.Equal(t, 500*time.Millisecond, cfg.Relationships.RetryBase)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := LoadConfig([]string{"--data-path", dir, "--env-file", "", "--read-timeout", "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid read timeout")
}

func TestGetConfigValue_Precedence(t *testing.T) {
	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default-value"))

	t.Setenv("TEST_ENV_KEY", "env-value")
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default-value"))

	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY", "default-value"))
}

func TestGetIntConfigValue_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT_KEY", "many")
	assert.Equal(t, 7, getIntConfigValue("", "TEST_INT_KEY", 7))
	assert.Equal(t, 3, getIntConfigValue("3", "TEST_INT_KEY", 7))
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	content := `# Test env file
ENV=staging
LOG_LEVEL=debug
# Comment line
QUOTED_VALUE="some value"
SINGLE_QUOTED='another value'
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	for _, key := range []string{"ENV", "LOG_LEVEL", "QUOTED_VALUE", "SINGLE_QUOTED"} {
		t.Setenv(key, "")
	}

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "staging", os.Getenv("ENV"))
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "some value", os.Getenv("QUOTED_VALUE"))
	assert.Equal(t, "another value", os.Getenv("SINGLE_QUOTED"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	content := `VALID_KEY=valid_value
INVALID LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/file/.env"))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	t.Setenv("TEST_VAR", "original-value")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`TEST_VAR=new-value`), 0o644))

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "original-value", os.Getenv("TEST_VAR"))
}

func TestLoadEnvFile_Whitespace(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`  KEY_WITH_SPACES  =  value with spaces  `), 0o644))

	t.Setenv("KEY_WITH_SPACES", "")
	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "value with spaces", os.Getenv("KEY_WITH_SPACES"))
}
