//
//
package config

import (
	"fmt"
	"strings"
)

// Validate checks the settings shared by the server and the client.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := ValidateTiming(&config.Timing); err != nil {
		return err
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	switch config.Watch.Transport {
	case "sse", "ws":
	default:
		return fmt.Errorf("watch transport must be sse or ws, got %q", config.Watch.Transport)
	}

	switch config.Auth.Algorithm {
	case "HS256", "RS256":
	default:
		return fmt.Errorf("auth algorithm must be HS256 or RS256, got %q", config.Auth.Algorithm)
	}

	return nil
}

// ValidateServer adds the checks only the server needs: storage paths,
// sync throttling and a usable token verification key.
func ValidateServer(config *Config) error {
	if err := Validate(config); err != nil {
		return err
	}

	if config.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	if config.Server.DatabasePath == "" {
		return fmt.Errorf("server databasePath cannot be empty")
	}
	if config.Server.SyncRate <= 0 {
		return fmt.Errorf("sync rate must be positive, got %v", config.Server.SyncRate)
	}
	if config.Server.SyncBurst <= 0 {
		return fmt.Errorf("sync burst must be positive, got %d", config.Server.SyncBurst)
	}

	switch config.Auth.Algorithm {
	case "HS256":
		if config.Auth.SecretKey == "" {
			return fmt.Errorf("auth secretKey is required for HS256")
		}
	case "RS256":
		if config.Auth.PublicKeyPEM == "" && config.Auth.JWKSURL == "" {
			return fmt.Errorf("auth publicKeyPEM or jwksURL is required for RS256")
		}
	}

	return nil
}

// ValidateTiming enforces the timing rules.
func ValidateTiming(config *TimingConfig) error {
	if config == nil {
		return fmt.Errorf("timing config cannot be nil")
	}

	if config.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got %v", config.RetryDelay)
	}

	if err := validateHeartbeat(config); err != nil {
		return fmt.Errorf("heartbeat validation failed: %w", err)
	}

	if err := validateCommandTimeouts(config); err != nil {
		return fmt.Errorf("command timeout validation failed: %w", err)
	}

	if err := validateEventBuffer(config); err != nil {
		return fmt.Errorf("event buffer validation failed: %w", err)
	}

	return nil
}

// validateHeartbeat validates heartbeat timing parameters.
func validateHeartbeat(config *TimingConfig) error {
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", config.HeartbeatInterval)
	}

	// Jitter is bounded by half the interval so beats never overlap.
	maxJitter := config.HeartbeatInterval / 2
	if config.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", config.HeartbeatJitter)
	}
	if config.HeartbeatJitter > maxJitter {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", config.HeartbeatJitter, config.HeartbeatInterval)
	}

	if config.HeartbeatTimeout < config.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout %v must be >= interval %v", config.HeartbeatTimeout, config.HeartbeatInterval)
	}

	return nil
}

func validateCommandTimeouts(config *TimingConfig) error {
	if config.CommandTimeoutSync <= 0 {
		return fmt.Errorf("command timeout sync must be positive, got %v", config.CommandTimeoutSync)
	}
	if config.CommandTimeoutDelete <= 0 {
		return fmt.Errorf("command timeout delete must be positive, got %v", config.CommandTimeoutDelete)
	}
	return nil
}

func validateEventBuffer(config *TimingConfig) error {
	if config.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", config.EventBufferSize)
	}
	if config.EventBufferRetention <= 0 {
		return fmt.Errorf("event buffer retention must be positive, got %v", config.EventBufferRetention)
	}
	return nil
}

func validateLogging(config *LoggingConfig) error {
	switch strings.ToLower(strings.TrimSpace(config.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", config.Level)
	}
	switch config.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", config.Format)
	}
	return nil
}
