package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Reconcile.PrimaryDir != nil {
		t.Fatalf("expected empty config")
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadConfigDecodesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[reconcile]
primary-dir = "/data/sept"
correlation-channels = ["velAbsRaw", "areaRaw"]
max-bound = 40
force = true

[experiment]
participant = "ST14"
speeds = [3.0, 9.0]
pre-stimulus = "1.5s"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Reconcile.PrimaryDir == nil || *cfg.Reconcile.PrimaryDir != "/data/sept" {
		t.Fatalf("unexpected primary dir: %v", cfg.Reconcile.PrimaryDir)
	}
	if cfg.Reconcile.CorrelationChannels == nil || len(*cfg.Reconcile.CorrelationChannels) != 2 {
		t.Fatalf("unexpected correlation channels: %v", cfg.Reconcile.CorrelationChannels)
	}
	if cfg.Reconcile.MaxBound == nil || *cfg.Reconcile.MaxBound != 40 {
		t.Fatalf("unexpected max bound")
	}
	if cfg.Reconcile.Force == nil || !*cfg.Reconcile.Force {
		t.Fatalf("expected force=true")
	}
	if cfg.Reconcile.Verbose != nil {
		t.Fatalf("expected unset verbose to stay nil")
	}
	if cfg.Experiment.Participant == nil || *cfg.Experiment.Participant != "ST14" {
		t.Fatalf("unexpected participant")
	}
	if cfg.Experiment.PreStimulus == nil || cfg.Experiment.PreStimulus.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected pre-stimulus: %v", cfg.Experiment.PreStimulus)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[experiment]\npre-stimulus = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
