// Package diagnostics provides observers and checks that report on a
// reconciliation without influencing it.
package diagnostics

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/verte-zerg/touchsync/internal/reconcile"
	"github.com/verte-zerg/touchsync/internal/stats"
)

// LogObserver reports reconciliation events through slog.
type LogObserver struct {
	logger *slog.Logger

	progressBlock string
	progressStep  int
}

// NewLogObserver returns an observer writing to logger. Search progress is
// logged at debug level in steps of 10%.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger, progressStep: -1}
}

func (o *LogObserver) SearchProgress(block string, percent int) {
	step := percent / 10
	if block == o.progressBlock && step == o.progressStep {
		return
	}
	o.progressBlock = block
	o.progressStep = step
	o.logger.Debug("searching offset", slog.String("block", block), slog.Int("percent", percent))
}

func (o *LogObserver) BlockAligned(trace reconcile.BlockTrace) {
	res := trace.Result
	o.logger.Info("block aligned",
		slog.String("block", res.BlockID),
		slog.Int("offset", res.Offset),
		slog.String("score", stats.FormatScore(res.Score)),
		slog.Int("primary_rows", res.PrimaryRows),
		slog.Int("reference_rows", res.ReferenceRows),
		slog.String("window", fmt.Sprintf("[%d, %d]/%d", res.Low, res.High, res.Step)),
	)
}

func (o *LogObserver) Warn(msg string, args ...any) {
	o.logger.Warn(msg, args...)
}

// PlotObserver writes text plots of every aligned block. Write errors are
// kept and reported by Err; plotting stops after the first one.
type PlotObserver struct {
	w        io.Writer
	opts     stats.PlotOptions
	channels map[string]bool
	err      error
}

// NewPlotObserver plots the given channels, or every contact channel when none are named.
func NewPlotObserver(w io.Writer, width, height int, channels ...string) *PlotObserver {
	o := &PlotObserver{
		w:    w,
		opts: stats.PlotOptions{Width: width, Height: height, SharedScale: true},
	}
	if len(channels) > 0 {
		o.channels = make(map[string]bool, len(channels))
		for _, c := range channels {
			o.channels[c] = true
		}
	}
	return o
}

func (o *PlotObserver) SearchProgress(string, int) {}

func (o *PlotObserver) BlockAligned(trace reconcile.BlockTrace) {
	if o.err != nil {
		return
	}
	res := trace.Result
	for j, name := range trace.Channels {
		if o.channels != nil && !o.channels[name] {
			continue
		}
		title := fmt.Sprintf("Block %s: %s (offset %d, score %s)", res.BlockID, name, res.Offset, stats.FormatScore(res.Score))
		err := stats.Plot(o.w, title, []stats.Series{
			{Name: "primary", Values: column(trace.Primary, j)},
			{Name: "reference", Values: column(trace.Reference, j)},
			{Name: "corrected", Values: column(trace.Corrected, j)},
		}, o.opts)
		if err != nil {
			o.err = err
			return
		}
	}
}

func (o *PlotObserver) Warn(msg string, args ...any) {
	if o.err != nil {
		return
	}
	var b strings.Builder
	b.WriteString("warning: ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	b.WriteByte('\n')
	_, o.err = io.WriteString(o.w, b.String())
}

// Err returns the first write error.
func (o *PlotObserver) Err() error {
	return o.err
}

// Collector keeps every block trace it receives.
type Collector struct {
	reconcile.NopObserver
	Traces []reconcile.BlockTrace
}

func (c *Collector) BlockAligned(trace reconcile.BlockTrace) {
	c.Traces = append(c.Traces, trace)
}

type multi []reconcile.Observer

// Multi fans events out to observers in order. Nil observers are ignored.
func Multi(observers ...reconcile.Observer) reconcile.Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multi) SearchProgress(block string, percent int) {
	for _, o := range m {
		o.SearchProgress(block, percent)
	}
}

func (m multi) BlockAligned(trace reconcile.BlockTrace) {
	for _, o := range m {
		o.BlockAligned(trace)
	}
}

func (m multi) Warn(msg string, args ...any) {
	for _, o := range m {
		o.Warn(msg, args...)
	}
}

func column(values [][]float64, j int) []float64 {
	out := make([]float64, len(values))
	for i, row := range values {
		out[i] = row[j]
	}
	return out
}
