// Package config provides bridge configuration: timeouts and waits of the
// participant façade, loadable from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnablerConfig configures the bridge core.
type EnablerConfig struct {
	// ParticipantID names this participant on the bus; it is also used as
	// the source GUID prefix of published samples.
	ParticipantID string `yaml:"participant_id" json:"participant_id"`

	// ReaderWaitTimeoutMS bounds the wait for the discovery thread to
	// construct a reader for a newly synthesized endpoint.
	ReaderWaitTimeoutMS int `yaml:"reader_wait_timeout_ms" json:"reader_wait_timeout_ms"`

	// InitialPublishWaitMS delays the first publish on a freshly created
	// topic so remote readers can match; zero disables the wait.
	InitialPublishWaitMS int `yaml:"initial_publish_wait_ms" json:"initial_publish_wait_ms"`

	// LogLevel selects the CLI logging verbosity.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultEnablerConfig returns the default configuration.
func DefaultEnablerConfig() *EnablerConfig {
	return &EnablerConfig{
		ParticipantID:        "busbridge.enabler",
		ReaderWaitTimeoutMS:  5000,
		InitialPublishWaitMS: 0,
		LogLevel:             "info",
	}
}

// Validate checks the configuration for consistency.
func (c *EnablerConfig) Validate() error {
	if c.ParticipantID == "" {
		return fmt.Errorf("participant_id must not be empty")
	}
	if c.ReaderWaitTimeoutMS <= 0 {
		return fmt.Errorf("reader_wait_timeout_ms must be positive, got %d", c.ReaderWaitTimeoutMS)
	}
	if c.InitialPublishWaitMS < 0 {
		return fmt.Errorf("initial_publish_wait_ms must not be negative, got %d", c.InitialPublishWaitMS)
	}
	return nil
}

// ReaderWaitTimeout returns the bounded reader wait as a duration.
func (c *EnablerConfig) ReaderWaitTimeout() time.Duration {
	return time.Duration(c.ReaderWaitTimeoutMS) * time.Millisecond
}

// InitialPublishWait returns the first-publish delay as a duration.
func (c *EnablerConfig) InitialPublishWait() time.Duration {
	return time.Duration(c.InitialPublishWaitMS) * time.Millisecond
}

// LoadEnablerConfig reads a configuration file, applying defaults for
// omitted fields.
func LoadEnablerConfig(path string) (*EnablerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := DefaultEnablerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
