//
//
package config

import "time"

// TimingConfig holds every timing knob of the server and the client.
type TimingConfig struct {
	// Client reconnect
	RetryDelay time.Duration `yaml:"retryDelay"`

	// Stream heartbeat. HeartbeatTimeout is also the client idle timeout.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeatJitter"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout"`

	// Replay buffer
	EventBufferSize      int           `yaml:"eventBufferSize"`
	EventBufferRetention time.Duration `yaml:"eventBufferRetention"`

	// Folder command timeouts
	CommandTimeoutSync   time.Duration `yaml:"commandTimeoutSync"`
	CommandTimeoutDelete time.Duration `yaml:"commandTimeoutDelete"`
}

// LoadTimingBaseline returns the baseline timing values.
func LoadTimingBaseline() *TimingConfig {
	return &TimingConfig{
		RetryDelay: 5 * time.Second,

		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,
		HeartbeatTimeout:  45 * time.Second,

		EventBufferSize:      50,
		EventBufferRetention: 1 * time.Hour,

		CommandTimeoutSync:   30 * time.Second,
		CommandTimeoutDelete: 5 * time.Second,
	}
}
