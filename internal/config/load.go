//
//
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// ConfigFileEnv names the environment variable that points at the YAML file
// when no path is passed to Load.
const ConfigFileEnv = "LIVEFEED_CONFIG"

// Config is the complete configuration.
type Config struct {
	Timing  TimingConfig  `yaml:"timing"`
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds the HTTP server and storage settings.
type ServerConfig struct {
	Addr         string  `yaml:"addr"`
	DatabasePath string  `yaml:"databasePath"`
	AuditDir     string  `yaml:"auditDir"`
	MediaRoot    string  `yaml:"mediaRoot"`
	SyncRate     float64 `yaml:"syncRatePerSec"`
	SyncBurst    int     `yaml:"syncBurst"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Algorithm    string `yaml:"algorithm"` // HS256 or RS256
	SecretKey    string `yaml:"secretKey"`
	PublicKeyPEM string `yaml:"publicKeyPEM"`
	JWKSURL      string `yaml:"jwksURL"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // empty logs to stdout only
}

// WatchConfig configures the feedwatch client.
type WatchConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Transport string `yaml:"transport"` // sse or ws
	Token     string `yaml:"token"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Timing: *LoadTimingBaseline(),
		Server: ServerConfig{
			Addr:         ":8080",
			DatabasePath: "livefeed.db",
			AuditDir:     "audit",
			MediaRoot:    "media",
			SyncRate:     1,
			SyncBurst:    3,
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Endpoint:  "http://localhost:8080/admin/drive-folders/events/",
			Transport: "sse",
		},
	}
}

// Load merges Default() + env overrides (LIVEFEED_*) + an optional YAML file.
// The file is path, or $LIVEFEED_CONFIG when path is empty. A missing file
// named by the caller is an error; no file at all is fine.
func Load(path string) (*Config, error) {
	config := Default()

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile overlays the keys present in the YAML file onto config.
func loadFromFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyEnvOverrides applies LIVEFEED_* environment variables to the config.
// Malformed numeric values are rejected rather than silently ignored.
func applyEnvOverrides(config *Config) error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LIVEFEED_TIMING_RETRY_DELAY", &config.Timing.RetryDelay},
		{"LIVEFEED_TIMING_HEARTBEAT_INTERVAL", &config.Timing.HeartbeatInterval},
		{"LIVEFEED_TIMING_HEARTBEAT_JITTER", &config.Timing.HeartbeatJitter},
		{"LIVEFEED_TIMING_HEARTBEAT_TIMEOUT", &config.Timing.HeartbeatTimeout},
		{"LIVEFEED_TIMING_EVENT_BUFFER_RETENTION", &config.Timing.EventBufferRetention},
		{"LIVEFEED_TIMING_COMMAND_SYNC", &config.Timing.CommandTimeoutSync},
		{"LIVEFEED_TIMING_COMMAND_DELETE", &config.Timing.CommandTimeoutDelete},
	}
	for _, d := range durations {
		if val := os.Getenv(d.key); val != "" {
			duration, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = duration
		}
	}

	if val := os.Getenv("LIVEFEED_TIMING_EVENT_BUFFER_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("LIVEFEED_TIMING_EVENT_BUFFER_SIZE: %w", err)
		}
		config.Timing.EventBufferSize = size
	}

	if val := os.Getenv("LIVEFEED_SYNC_RATE"); val != "" {
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("LIVEFEED_SYNC_RATE: %w", err)
		}
		config.Server.SyncRate = rate
	}
	if val := os.Getenv("LIVEFEED_SYNC_BURST"); val != "" {
		burst, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("LIVEFEED_SYNC_BURST: %w", err)
		}
		config.Server.SyncBurst = burst
	}

	config.Server.Addr = GetEnvVar("LIVEFEED_ADDR", config.Server.Addr)
	config.Server.DatabasePath = GetEnvVar("LIVEFEED_DATABASE_PATH", config.Server.DatabasePath)
	config.Server.AuditDir = GetEnvVar("LIVEFEED_AUDIT_DIR", config.Server.AuditDir)
	config.Server.MediaRoot = GetEnvVar("LIVEFEED_MEDIA_ROOT", config.Server.MediaRoot)

	config.Auth.Algorithm = GetEnvVar("LIVEFEED_AUTH_ALGORITHM", config.Auth.Algorithm)
	config.Auth.SecretKey = GetEnvVar("LIVEFEED_AUTH_SECRET", config.Auth.SecretKey)
	config.Auth.PublicKeyPEM = GetEnvVar("LIVEFEED_AUTH_PUBLIC_KEY", config.Auth.PublicKeyPEM)
	config.Auth.JWKSURL = GetEnvVar("LIVEFEED_AUTH_JWKS_URL", config.Auth.JWKSURL)

	config.Logging.Level = GetEnvVar("LIVEFEED_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = GetEnvVar("LIVEFEED_LOG_FORMAT", config.Logging.Format)
	config.Logging.File = GetEnvVar("LIVEFEED_LOG_FILE", config.Logging.File)

	config.Watch.Endpoint = GetEnvVar("LIVEFEED_WATCH_ENDPOINT", config.Watch.Endpoint)
	config.Watch.Transport = GetEnvVar("LIVEFEED_WATCH_TRANSPORT", config.Watch.Transport)
	config.Watch.Token = GetEnvVar("LIVEFEED_WATCH_TOKEN", config.Watch.Token)

	return nil
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
