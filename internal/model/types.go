// Package model defines shared data structures.
package model

import "time"

// ReconcileConfig defines settings for contact reconciliation runs.
type ReconcileConfig struct {
	Sessions            []string
	PrimaryDir          string
	ReferenceDir        string
	OutputDir           string
	OutputSuffix        string
	BlockColumn         string
	MarkerColumn        string
	ContactChannels     []string
	CorrelationChannels []string
	ProcessedChannels   []string
	MaxBound            int
	HintScale           float64
	Verbose             bool
	Show                bool
	Plots               bool
	Force               bool
}

// ExperimentConfig defines settings for the experiment controller.
type ExperimentConfig struct {
	Name               string
	Participant        string
	Unit               int
	DataDir            string
	StartBlock         int
	Types              []string
	ContactAreas       []string
	Speeds             []float64
	Forces             []string
	RecorderStartDelay time.Duration
	RecorderStopDelay  time.Duration
	PreStimulus        time.Duration
	Shuffle            bool
	Seed               int64
}

// RunsConfig filters the runs listed from the ledger.
type RunsConfig struct {
	Session string
	Last    int
}

// Stimulus describes one mechanical touch to present.
type Stimulus struct {
	Type        string
	ContactArea string
	Speed       float64
	Force       string
}

// TrialRow is one line of the experiment data file.
type TrialRow struct {
	StimNo      int
	Stimulus    Stimulus
	BlockNo     int
	RecordingID string
}

// Session status values.
const (
	StatusDone            = "done"
	StatusSkippedExisting = "skipped-existing"
	StatusSkippedInput    = "skipped-missing-input"
	StatusFailed          = "failed"
)

// BlockResult captures the outcome of aligning one block.
type BlockResult struct {
	BlockID       string
	PrimaryRows   int
	ReferenceRows int
	Low           int
	High          int
	Step          int
	Offset        int
	Score         float64
	Degenerate    bool
	Skipped       bool
	SkipReason    string
}

// SessionResult summarizes one reconciled session.
type SessionResult struct {
	RunID            string
	Session          string
	PrimaryPath      string
	ReferencePath    string
	OutputPath       string
	Status           string
	Message          string
	StartedAt        time.Time
	EndedAt          time.Time
	BlockSetMismatch bool
	Blocks           []BlockResult
}

// AlignedBlocks returns the number of blocks that were not skipped.
func (r SessionResult) AlignedBlocks() int {
	n := 0
	for _, b := range r.Blocks {
		if !b.Skipped {
			n++
		}
	}
	return n
}

// RunAggregate is a stored run as listed from the ledger.
type RunAggregate struct {
	RunID         string
	Session       string
	Status        string
	Message       string
	OutputPath    string
	StartedAt     time.Time
	EndedAt       time.Time
	AlignedBlocks int
	SkippedBlocks int
}
