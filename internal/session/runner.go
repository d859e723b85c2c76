package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/touchsync/internal/dataset"
	"github.com/verte-zerg/touchsync/internal/diagnostics"
	"github.com/verte-zerg/touchsync/internal/model"
	"github.com/verte-zerg/touchsync/internal/reconcile"
	"github.com/verte-zerg/touchsync/internal/stats"
)

const (
	diagnosticsSuffix = "_diagnostics.txt"
	plotWidth         = 100
	plotHeight        = 8
)

// Recorder stores session results.
type Recorder interface {
	InsertRun(ctx context.Context, res model.SessionResult) (string, error)
}

// Outcome is a finished session handed to the inspection hook.
type Outcome struct {
	Result       model.SessionResult
	Primary      *dataset.Dataset
	Corrected    *dataset.Dataset
	Traces       []reconcile.BlockTrace
	MarkerColumn string
}

// Runner reconciles sessions one after another.
type Runner struct {
	Config model.ReconcileConfig
	// Ledger, when set, records every session outcome.
	Ledger Recorder
	Logger *slog.Logger
	// Inspect is called for every written session when Config.Show is set.
	Inspect func(ctx context.Context, out Outcome) error
	Now     func() time.Time
}

// Run processes sessions in order. It stops early only when ctx is done;
// per-session failures are reported in the returned results.
func (r *Runner) Run(ctx context.Context, sessions []string) ([]model.SessionResult, error) {
	results := make([]model.SessionResult, 0, len(sessions))
	for _, raw := range sessions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.RunSession(ctx, raw))
	}
	return results, nil
}

// RunSession processes one session and records the outcome.
func (r *Runner) RunSession(ctx context.Context, raw string) model.SessionResult {
	logger := r.logger().With(slog.String("session", raw))
	res := model.SessionResult{
		RunID:     uuid.NewString(),
		Session:   raw,
		StartedAt: r.now(),
	}
	out, err := r.process(ctx, logger, &res)
	res.EndedAt = r.now()
	if err != nil {
		res.Message = err.Error()
		switch res.Status {
		case model.StatusSkippedInput:
			logger.Warn("skipping session", slog.String("reason", res.Message))
		default:
			res.Status = model.StatusFailed
			logger.Error("session failed", slog.String("error", res.Message))
		}
	}

	if r.Ledger != nil {
		if _, lerr := r.Ledger.InsertRun(context.WithoutCancel(ctx), res); lerr != nil {
			logger.Warn("could not record run", slog.String("error", lerr.Error()))
		}
	}

	if out != nil && r.Config.Show && r.Inspect != nil {
		out.Result = res
		if ierr := r.Inspect(ctx, *out); ierr != nil {
			logger.Warn("inspection failed", slog.String("error", ierr.Error()))
		}
	}
	return res
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, res *model.SessionResult) (*Outcome, error) {
	cfg := r.Config
	id, err := Parse(res.Session)
	if err != nil {
		return nil, err
	}
	inputs, err := Resolve(cfg.PrimaryDir, cfg.ReferenceDir, id)
	if err != nil {
		if errors.Is(err, ErrNoInput) || errors.Is(err, ErrAmbiguousInput) {
			res.Status = model.StatusSkippedInput
		}
		return nil, err
	}
	res.PrimaryPath = inputs.Primary
	res.ReferencePath = inputs.Reference
	res.OutputPath = filepath.Join(cfg.OutputDir, id.OutputName(cfg.OutputSuffix))

	if !cfg.Force {
		if _, err := os.Stat(res.OutputPath); err == nil {
			res.Status = model.StatusSkippedExisting
			res.Message = "output exists"
			logger.Info("output exists, skipping", slog.String("output", res.OutputPath))
			return nil, nil
		}
	}

	opts := dataset.LoadOptions{
		BlockColumn: cfg.BlockColumn,
		Contact:     cfg.ContactChannels,
		Drop:        cfg.ProcessedChannels,
	}
	primary, err := dataset.Load(inputs.Primary, opts)
	if err != nil {
		return nil, fmt.Errorf("load primary: %w", err)
	}
	reference, err := dataset.Load(inputs.Reference, opts)
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}
	logger.Info("loaded session",
		slog.Int("primary_rows", len(primary.Records)),
		slog.Int("reference_rows", len(reference.Records)))
	warnSchemaDrift(logger, primary.Schema, reference.Schema)

	collector := &diagnostics.Collector{}
	observers := []reconcile.Observer{diagnostics.NewLogObserver(logger)}
	if cfg.Show {
		observers = append(observers, collector)
	}
	var report *diagnosticsFile
	if cfg.Plots {
		report, err = openDiagnostics(filepath.Join(cfg.OutputDir, id.Raw+diagnosticsSuffix))
		if err != nil {
			return nil, err
		}
		defer report.close()
		observers = append(observers, report.plots)
	}

	corrected, rep, err := reconcile.Reconcile(ctx, primary, reference, reconcile.Options{
		ContactChannels:     cfg.ContactChannels,
		CorrelationChannels: cfg.CorrelationChannels,
		Observer:            diagnostics.Multi(observers...),
		MaxBound:            cfg.MaxBound,
		HintScale:           cfg.HintScale,
	})
	res.Blocks = rep.Blocks
	res.BlockSetMismatch = rep.BlockSetMismatch
	if err != nil {
		return nil, err
	}

	if err := dataset.Save(res.OutputPath, corrected); err != nil {
		return nil, err
	}
	r.checkMarker(logger, primary, corrected, report)
	if report != nil {
		if err := report.finish(rep.Blocks); err != nil {
			logger.Warn("could not write diagnostics", slog.String("error", err.Error()))
		}
	}

	res.Status = model.StatusDone
	logger.Info("done",
		slog.String("output", res.OutputPath),
		slog.Int("aligned_blocks", res.AlignedBlocks()),
		slog.Int("blocks", len(res.Blocks)))
	return &Outcome{
		Primary:      primary,
		Corrected:    corrected,
		Traces:       collector.Traces,
		MarkerColumn: cfg.MarkerColumn,
	}, nil
}

func (r *Runner) checkMarker(logger *slog.Logger, primary, corrected *dataset.Dataset, report *diagnosticsFile) {
	column := r.Config.MarkerColumn
	if column == "" || !primary.Schema.HasColumn(column) {
		return
	}
	ok, err := diagnostics.MarkerInvariant(primary, corrected, column)
	switch {
	case err != nil:
		logger.Warn("marker check failed", slog.String("error", err.Error()))
	case !ok:
		logger.Warn("marker column changed by correction", slog.String("column", column))
	}
	if report != nil {
		if err := diagnostics.WriteMarkerReport(report.w, primary, corrected, column, plotWidth, plotHeight); err != nil {
			logger.Warn("could not write marker report", slog.String("error", err.Error()))
		}
	}
}

// warnSchemaDrift logs pass-through columns present in only one input.
func warnSchemaDrift(logger *slog.Logger, primary, reference *dataset.Schema) {
	for _, name := range primary.PassColumns() {
		if !reference.HasColumn(name) {
			logger.Warn("column missing from reference", slog.String("column", name))
		}
	}
	for _, name := range reference.PassColumns() {
		if !primary.HasColumn(name) {
			logger.Warn("column missing from primary", slog.String("column", name))
		}
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

type diagnosticsFile struct {
	file  *os.File
	w     *bufio.Writer
	plots *diagnostics.PlotObserver
}

func openDiagnostics(path string) (*diagnosticsFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create diagnostics file: %w", err)
	}
	w := bufio.NewWriter(file)
	return &diagnosticsFile{
		file:  file,
		w:     w,
		plots: diagnostics.NewPlotObserver(w, plotWidth, plotHeight),
	}, nil
}

func (d *diagnosticsFile) finish(blocks []model.BlockResult) error {
	if err := d.plots.Err(); err != nil {
		return err
	}
	if err := stats.RenderSummary(d.w, "Summary", blocks); err != nil {
		return err
	}
	if err := stats.RenderBlocks(d.w, blocks); err != nil {
		return err
	}
	return d.w.Flush()
}

func (d *diagnosticsFile) close() {
	if cerr := d.file.Close(); cerr != nil {
		// Best-effort close; finish reports write errors.
		_ = cerr
	}
}
