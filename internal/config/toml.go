// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Experiment ExperimentConfig `toml:"experiment"`
}

// ReconcileConfig maps reconciliation settings.
type ReconcileConfig struct {
	Sessions            *[]string `toml:"sessions"`
	SessionsFile        *string   `toml:"sessions-file"`
	PrimaryDir          *string   `toml:"primary-dir"`
	ReferenceDir        *string   `toml:"reference-dir"`
	OutputDir           *string   `toml:"output-dir"`
	OutputSuffix        *string   `toml:"output-suffix"`
	BlockColumn         *string   `toml:"block-column"`
	MarkerColumn        *string   `toml:"marker-column"`
	ContactChannels     *[]string `toml:"contact-channels"`
	CorrelationChannels *[]string `toml:"correlation-channels"`
	ProcessedChannels   *[]string `toml:"processed-channels"`
	MaxBound            *int      `toml:"max-bound"`
	HintScale           *float64  `toml:"hint-scale"`
	Verbose             *bool     `toml:"verbose"`
	Show                *bool     `toml:"show"`
	Plots               *bool     `toml:"plots"`
	Force               *bool     `toml:"force"`
}

// ExperimentConfig maps experiment controller settings.
type ExperimentConfig struct {
	Name               *string    `toml:"name"`
	Participant        *string    `toml:"participant"`
	Unit               *int       `toml:"unit"`
	DataDir            *string    `toml:"data-dir"`
	StartBlock         *int       `toml:"start-block"`
	Types              *[]string  `toml:"types"`
	ContactAreas       *[]string  `toml:"contact-areas"`
	Speeds             *[]float64 `toml:"speeds"`
	Forces             *[]string  `toml:"forces"`
	RecorderStartDelay *Duration  `toml:"recorder-start-delay"`
	RecorderStopDelay  *Duration  `toml:"recorder-stop-delay"`
	PreStimulus        *Duration  `toml:"pre-stimulus"`
	Shuffle            *bool      `toml:"shuffle"`
	Seed               *int64     `toml:"seed"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
