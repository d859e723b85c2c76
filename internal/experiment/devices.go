// Package experiment runs the stimulus presentation loop of a touch experiment.
package experiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/verte-zerg/touchsync/internal/model"
)

// Recorder captures video of one block.
type Recorder interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, delay time.Duration) error
	// Filename is the name of the current or last recording.
	Filename() string
}

// TriggerBox sends sync pulses to the nerve recording and the LED.
type TriggerBox interface {
	SendPulses(ctx context.Context, count int) error
}

// CuePlayer guides the experimenter through one stimulus.
type CuePlayer interface {
	Present(ctx context.Context, stim model.Stimulus) error
}

// EventLog is an append-only timeline of the run.
type EventLog interface {
	Log(elapsed time.Duration, event string) error
}

// TrialWriter stores one row per presented stimulus.
type TrialWriter interface {
	Write(row model.TrialRow) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep skips every wait; used for fast dry runs.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// DryRecorder pretends to record and logs what it would do.
type DryRecorder struct {
	Logger *slog.Logger
	Sleep  SleepFunc
	name   string
}

func (r *DryRecorder) Start(ctx context.Context, name string) error {
	r.name = name
	r.Logger.Info("recorder start", slog.String("recording", name))
	return ctx.Err()
}

func (r *DryRecorder) Stop(ctx context.Context, delay time.Duration) error {
	if err := r.Sleep(ctx, delay); err != nil {
		return err
	}
	r.Logger.Info("recorder stop", slog.String("recording", r.name), slog.Duration("delay", delay))
	return nil
}

func (r *DryRecorder) Filename() string {
	return r.name
}

// DryTrigger logs pulses instead of sending them.
type DryTrigger struct {
	Logger *slog.Logger
}

func (t DryTrigger) SendPulses(ctx context.Context, count int) error {
	t.Logger.Info("trigger pulses", slog.Int("count", count))
	return ctx.Err()
}

// DryCues logs the cue for each stimulus.
type DryCues struct {
	Logger *slog.Logger
}

func (c DryCues) Present(ctx context.Context, stim model.Stimulus) error {
	c.Logger.Debug("cue",
		slog.String("type", stim.Type),
		slog.String("contact_area", stim.ContactArea),
		slog.Float64("speed", stim.Speed),
		slog.String("force", stim.Force))
	return ctx.Err()
}
