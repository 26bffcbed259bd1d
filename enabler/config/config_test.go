package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultEnablerConfig(t *testing.T) {
	cfg := DefaultEnablerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.ReaderWaitTimeout() != 5*time.Second {
		t.Errorf("unexpected reader wait timeout %s", cfg.ReaderWaitTimeout())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*EnablerConfig)
	}{
		{"empty participant id", func(c *EnablerConfig) { c.ParticipantID = "" }},
		{"zero reader wait", func(c *EnablerConfig) { c.ReaderWaitTimeoutMS = 0 }},
		{"negative publish wait", func(c *EnablerConfig) { c.InitialPublishWaitMS = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultEnablerConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadEnablerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enabler.yaml")
	content := []byte("participant_id: demo\nreader_wait_timeout_ms: 250\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadEnablerConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ParticipantID != "demo" {
		t.Errorf("unexpected participant id %q", cfg.ParticipantID)
	}
	if cfg.ReaderWaitTimeoutMS != 250 {
		t.Errorf("unexpected timeout %d", cfg.ReaderWaitTimeoutMS)
	}
	// Omitted fields keep their defaults.
	if cfg.LogLevel != "info" {
		t.Errorf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestLoadEnablerConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enabler.yaml")
	if err := os.WriteFile(path, []byte("reader_wait_timeout_ms: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadEnablerConfig(path); err == nil {
		t.Error("expected error for invalid config")
	}

	if _, err := LoadEnablerConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
