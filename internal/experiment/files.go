package experiment

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/touchsync/internal/model"
)

// PrefixTimeLayout formats the run start in file prefixes.
const PrefixTimeLayout = "2006-01-02_15-04-05"

var (
	logHeader  = []string{"time", "event"}
	dataHeader = []string{"stim_no", "type", "speed", "contact_area", "force", "block_no", "kinect_recording"}
)

// Info is written next to the run's data files.
type Info struct {
	Name         string    `toml:"name"`
	Participant  string    `toml:"participant"`
	Unit         int       `toml:"unit"`
	DataDir      string    `toml:"data-dir"`
	StartBlock   int       `toml:"start-block"`
	DateTime     string    `toml:"date-time"`
	Types        []string  `toml:"types"`
	ContactAreas []string  `toml:"contact-areas"`
	Speeds       []float64 `toml:"speeds"`
	Forces       []string  `toml:"forces"`
	Shuffle      bool      `toml:"shuffle"`
	Seed         int64     `toml:"seed"`
	DryRun       bool      `toml:"dry-run"`
}

// NewInfo describes a run of cfg started at start.
func NewInfo(cfg model.ExperimentConfig, start time.Time, dryRun bool) Info {
	return Info{
		Name:         cfg.Name,
		Participant:  cfg.Participant,
		Unit:         cfg.Unit,
		DataDir:      cfg.DataDir,
		StartBlock:   cfg.StartBlock,
		DateTime:     start.Format(PrefixTimeLayout),
		Types:        cfg.Types,
		ContactAreas: cfg.ContactAreas,
		Speeds:       cfg.Speeds,
		Forces:       cfg.Forces,
		Shuffle:      cfg.Shuffle,
		Seed:         cfg.Seed,
		DryRun:       dryRun,
	}
}

// Prefix is <date-time>_<name>_<participant>_<unit>.
func Prefix(cfg model.ExperimentConfig, start time.Time) string {
	return start.Format(PrefixTimeLayout) + "_" + FilenameCore(cfg)
}

// FileSink writes the event log, the trial data and the info file of one run.
// Every row is flushed so an interrupted run keeps what it recorded.
type FileSink struct {
	logFile  *os.File
	dataFile *os.File
	log      *csv.Writer
	data     *csv.Writer
}

// CreateFileSink creates <dir>/<prefix>_log.csv, _data.csv and _info.toml.
func CreateFileSink(dir, prefix string, info Info) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := writeInfo(filepath.Join(dir, prefix+"_info.toml"), info); err != nil {
		return nil, err
	}
	sink := &FileSink{}
	var err error
	if sink.logFile, err = createCSV(filepath.Join(dir, prefix+"_log.csv")); err != nil {
		return nil, err
	}
	if sink.dataFile, err = createCSV(filepath.Join(dir, prefix+"_data.csv")); err != nil {
		sink.Close()
		return nil, err
	}
	sink.log = csv.NewWriter(sink.logFile)
	sink.data = csv.NewWriter(sink.dataFile)
	if err := writeRow(sink.log, logHeader); err != nil {
		sink.Close()
		return nil, err
	}
	if err := writeRow(sink.data, dataHeader); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}

// Log appends one event with its time in seconds since the start of the run.
func (s *FileSink) Log(elapsed time.Duration, event string) error {
	return writeRow(s.log, []string{strconv.FormatFloat(elapsed.Seconds(), 'f', 4, 64), event})
}

// Write appends one trial row.
func (s *FileSink) Write(row model.TrialRow) error {
	return writeRow(s.data, []string{
		strconv.Itoa(row.StimNo),
		row.Stimulus.Type,
		FormatSpeed(row.Stimulus.Speed),
		row.Stimulus.ContactArea,
		row.Stimulus.Force,
		strconv.Itoa(row.BlockNo),
		row.RecordingID,
	})
}

// Close closes both files.
func (s *FileSink) Close() error {
	var first error
	for _, f := range []*os.File{s.logFile, s.dataFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func createCSV(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func writeInfo(path string, info Info) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create info file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(info); err != nil {
		if cerr := f.Close(); cerr != nil {
			_ = cerr
		}
		return fmt.Errorf("failed to write info file: %w", err)
	}
	return f.Close()
}
