// Package main provides the CLI entrypoint for touchsync.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/touchsync/internal/config"
	"github.com/verte-zerg/touchsync/internal/inspect"
	"github.com/verte-zerg/touchsync/internal/model"
	"github.com/verte-zerg/touchsync/internal/session"
	"github.com/verte-zerg/touchsync/internal/sessionlist"
	"github.com/verte-zerg/touchsync/internal/stats"
	"github.com/verte-zerg/touchsync/internal/store"
)

const (
	defaultOutputSuffix = "_semicontrolled.csv"
	defaultBlockColumn  = "block_id"
	defaultMarkerColumn = "spike"
	defaultHintScale    = 1.0
)

var (
	defaultContactChannels     = []string{"areaRaw", "depthRaw", "velAbsRaw", "velLatRaw", "velLongRaw", "velVertRaw"}
	defaultCorrelationChannels = []string{"velAbsRaw", "areaRaw", "depthRaw"}
	defaultProcessedChannels   = []string{
		"area", "areaSmooth", "area1D", "area2D",
		"depth", "depthSmooth", "depth1D", "depth2D",
		"velAbs", "velAbsSmooth", "velAbs1D", "velAbs2D",
		"velLat", "velLatSmooth", "velLat1D", "velLat2D",
		"velLong", "velLongSmooth", "velLong1D", "velLong2D",
		"velVert", "velVertSmooth", "velVert1D", "velVert2D",
	}
)

var (
	reconcileSessionsFile       string
	reconcileParticipant        string
	reconcilePrimaryDir         string
	reconcileReferenceDir       string
	reconcileOutputDir          string
	reconcileOutputSuffix       string
	reconcileBlockColumn        string
	reconcileMarkerColumn       string
	reconcileContactChannels    []string
	reconcileCorrelationChannel []string
	reconcileProcessedChannels  []string
	reconcileMaxBound           int
	reconcileHintScale          float64
	reconcileVerbose            bool
	reconcileShow               bool
	reconcilePlots              bool
	reconcileForce              bool
	reconcileDBPath             string
	reconcileNoLedger           bool

	runsSession string
	runsLast    int
	runsBlocks  bool
	runsLatest  bool
)

// errSessionsFailed makes the process exit non-zero after a batch with failures.
var errSessionsFailed = errors.New("one or more sessions failed")

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "touchsync [session...]",
		Short:         "Reconcile contact measurements of touch sessions",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runReconcileCmd,
	}
	addReconcileFlags(rootCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile [session...]",
		Short: "Align reference contact data to the primary dataset (default command)",
		RunE:  runReconcileCmd,
	}
	addReconcileFlags(reconcileCmd)

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newExperimentCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

func addReconcileFlags(cmd *cobra.Command) {
	addInputFlags(cmd)
	cmd.Flags().StringVar(&reconcileBlockColumn, "block-column", defaultBlockColumn, "column grouping samples into blocks")
	cmd.Flags().StringVar(&reconcileMarkerColumn, "marker-column", defaultMarkerColumn, "column that must not change (empty disables the check)")
	cmd.Flags().StringSliceVar(&reconcileContactChannels, "contact-channels", defaultContactChannels, "contact channels replaced from the reference")
	cmd.Flags().StringSliceVar(&reconcileCorrelationChannel, "correlation-channels", defaultCorrelationChannels, "contact channels used to find the offset")
	cmd.Flags().StringSliceVar(&reconcileProcessedChannels, "processed-channels", defaultProcessedChannels, "columns dropped from both inputs")
	cmd.Flags().IntVar(&reconcileMaxBound, "max-bound", 0, "cap on the offset search bound (0 = no cap)")
	cmd.Flags().Float64Var(&reconcileHintScale, "hint-scale", defaultHintScale, "fraction of the search window evaluated (1 = every offset)")
	cmd.Flags().BoolVar(&reconcileVerbose, "verbose", false, "log search progress")
	cmd.Flags().BoolVar(&reconcileShow, "show", false, "inspect every session in the terminal viewer")
	cmd.Flags().BoolVar(&reconcilePlots, "plots", false, "write a text diagnostics report next to each output")
	cmd.Flags().BoolVar(&reconcileForce, "force", false, "reprocess sessions whose output exists")
	cmd.Flags().StringVar(&reconcileDBPath, "db", config.DefaultDBPath(), "run ledger path")
	cmd.Flags().BoolVar(&reconcileNoLedger, "no-ledger", false, "do not record runs")
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&reconcileSessionsFile, "sessions-file", "", "file with one session id per line")
	cmd.Flags().StringVar(&reconcileParticipant, "participant", "", "only sessions of this participant (e.g. ST13)")
	cmd.Flags().StringVar(&reconcilePrimaryDir, "primary-dir", "", "directory of primary input files")
	cmd.Flags().StringVar(&reconcileReferenceDir, "reference-dir", "", "directory of reference input files")
	cmd.Flags().StringVar(&reconcileOutputDir, "output-dir", "", "directory for corrected files")
	cmd.Flags().StringVar(&reconcileOutputSuffix, "output-suffix", defaultOutputSuffix, "suffix appended to the session id")
}

// reconcileConfigFrom merges the config file under the flags and resolves the session list.
func reconcileConfigFrom(cmd *cobra.Command, fileCfg config.ReconcileConfig, args []string) (model.ReconcileConfig, error) {
	applyStringConfig(cmd, "sessions-file", &reconcileSessionsFile, fileCfg.SessionsFile)
	applyStringConfig(cmd, "primary-dir", &reconcilePrimaryDir, fileCfg.PrimaryDir)
	applyStringConfig(cmd, "reference-dir", &reconcileReferenceDir, fileCfg.ReferenceDir)
	applyStringConfig(cmd, "output-dir", &reconcileOutputDir, fileCfg.OutputDir)
	applyStringConfig(cmd, "output-suffix", &reconcileOutputSuffix, fileCfg.OutputSuffix)
	applyStringConfig(cmd, "block-column", &reconcileBlockColumn, fileCfg.BlockColumn)
	applyStringConfig(cmd, "marker-column", &reconcileMarkerColumn, fileCfg.MarkerColumn)
	applyStringSliceConfig(cmd, "contact-channels", &reconcileContactChannels, fileCfg.ContactChannels)
	applyStringSliceConfig(cmd, "correlation-channels", &reconcileCorrelationChannel, fileCfg.CorrelationChannels)
	applyStringSliceConfig(cmd, "processed-channels", &reconcileProcessedChannels, fileCfg.ProcessedChannels)
	applyIntConfig(cmd, "max-bound", &reconcileMaxBound, fileCfg.MaxBound)
	applyFloatConfig(cmd, "hint-scale", &reconcileHintScale, fileCfg.HintScale)
	applyBoolConfig(cmd, "verbose", &reconcileVerbose, fileCfg.Verbose)
	applyBoolConfig(cmd, "show", &reconcileShow, fileCfg.Show)
	applyBoolConfig(cmd, "plots", &reconcilePlots, fileCfg.Plots)
	applyBoolConfig(cmd, "force", &reconcileForce, fileCfg.Force)

	var fromConfig []string
	if fileCfg.Sessions != nil {
		fromConfig = *fileCfg.Sessions
	}
	var fromFile []string
	if reconcileSessionsFile != "" {
		loaded, err := sessionlist.Load(reconcileSessionsFile)
		if err != nil {
			return model.ReconcileConfig{}, fmt.Errorf("failed to load sessions file: %w", err)
		}
		fromFile = loaded
	}
	sessions := sessionlist.Merge(fromConfig, fromFile, args)
	if reconcileParticipant != "" {
		sessions = sessionlist.Apply(sessions, sessionlist.FilterForParticipant(reconcileParticipant))
	}

	return model.ReconcileConfig{
		Sessions:            sessions,
		PrimaryDir:          reconcilePrimaryDir,
		ReferenceDir:        reconcileReferenceDir,
		OutputDir:           reconcileOutputDir,
		OutputSuffix:        reconcileOutputSuffix,
		BlockColumn:         reconcileBlockColumn,
		MarkerColumn:        reconcileMarkerColumn,
		ContactChannels:     reconcileContactChannels,
		CorrelationChannels: reconcileCorrelationChannel,
		ProcessedChannels:   reconcileProcessedChannels,
		MaxBound:            reconcileMaxBound,
		HintScale:           reconcileHintScale,
		Verbose:             reconcileVerbose,
		Show:                reconcileShow,
		Plots:               reconcilePlots,
		Force:               reconcileForce,
	}, nil
}

func runReconcileCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := reconcileConfigFrom(cmd, fileCfg.Reconcile, args)
	if err != nil {
		return err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	if cfg.Show && !term.IsTerminal(int(os.Stdout.Fd())) {
		logger.Warn("--show needs a terminal; viewer disabled")
		cfg.Show = false
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	runner := &session.Runner{Config: cfg, Logger: logger, Inspect: inspect.Run}
	if !reconcileNoLedger {
		st, err := store.Open(reconcileDBPath)
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logger.Warn("failed to close db", slog.String("error", cerr.Error()))
			}
		}()
		runner.Ledger = st
	}

	results, runErr := runner.Run(ctx, cfg.Sessions)
	if err := renderResults(cmd.OutOrStdout(), results); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("interrupted after %d of %d sessions: %w", len(results), len(cfg.Sessions), runErr)
	}
	for _, res := range results {
		if res.Status == model.StatusFailed {
			return errSessionsFailed
		}
	}
	return nil
}

func renderResults(w io.Writer, results []model.SessionResult) error {
	headers := []string{"Session", "Status", "Aligned", "Blocks", "Output"}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{
			res.Session,
			res.Status,
			strconv.Itoa(res.AlignedBlocks()),
			strconv.Itoa(len(res.Blocks)),
			res.OutputPath,
		})
	}
	return stats.RenderTable(w, headers, rows, map[int]bool{2: true, 3: true})
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions [session...]",
		Short: "List configured sessions and whether their files resolve",
		RunE:  runSessionsCmd,
	}
	addInputFlags(cmd)
	return cmd
}

func runSessionsCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := reconcileConfigFrom(cmd, fileCfg.Reconcile, args)
	if err != nil {
		return err
	}
	if len(cfg.Sessions) == 0 {
		return fmt.Errorf("no sessions configured")
	}
	headers := []string{"Session", "Input", "Output", "Note"}
	rows := make([][]string, 0, len(cfg.Sessions))
	for _, raw := range cfg.Sessions {
		p := session.ProbeSession(cfg, raw)
		input := "missing"
		note := ""
		if p.Err == nil {
			input = filepath.Base(p.Inputs.Primary)
		} else {
			note = p.Err.Error()
		}
		output := "pending"
		if p.OutputExists {
			output = "done"
		}
		rows = append(rows, []string{raw, input, output, note})
	}
	if err := stats.RenderTable(cmd.OutOrStdout(), headers, rows, nil); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runRunsCmd,
	}
	cmd.Flags().StringVar(&runsSession, "session", "", "session filter")
	cmd.Flags().IntVar(&runsLast, "last", 0, "limit to last N runs")
	cmd.Flags().BoolVar(&runsBlocks, "blocks", false, "print the block offsets of every listed run")
	cmd.Flags().BoolVar(&runsLatest, "latest", false, "print the latest run of --session with its block offsets")
	cmd.Flags().StringVar(&reconcileDBPath, "db", config.DefaultDBPath(), "run ledger path")
	return cmd
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	if runsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	if runsLatest && runsSession == "" {
		return fmt.Errorf("--latest needs --session")
	}
	st, err := store.Open(reconcileDBPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			// Best-effort close for a read-only listing.
			_ = cerr
		}
	}()

	ctx := commandContext(cmd)
	if runsLatest {
		return renderLatestRun(ctx, cmd.OutOrStdout(), st, runsSession)
	}
	runs, err := st.ListRuns(ctx, model.RunsConfig{Session: runsSession, Last: runsLast})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderRuns(out, runs); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if !runsBlocks {
		return nil
	}
	for _, run := range runs {
		blocks, err := st.ListBlocks(ctx, run.RunID)
		if err != nil {
			return fmt.Errorf("failed to list blocks: %w", err)
		}
		if len(blocks) == 0 {
			continue
		}
		title := fmt.Sprintf("\n%s (%s)", run.Session, run.RunID)
		if err := stats.RenderSummary(out, title, blocks); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if err := stats.RenderBlocks(out, blocks); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func renderLatestRun(ctx context.Context, w io.Writer, st *store.Store, session string) error {
	run, ok, err := st.LatestRun(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to load latest run: %w", err)
	}
	if !ok {
		return fmt.Errorf("no runs recorded for session %s", session)
	}
	if err := stats.RenderRuns(w, []model.RunAggregate{run}); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	blocks, err := st.ListBlocks(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to list blocks: %w", err)
	}
	if len(blocks) == 0 {
		return nil
	}
	if err := stats.RenderSummary(w, "", blocks); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderBlocks(w, blocks); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyStringSliceConfig(cmd *cobra.Command, name string, target, value *[]string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = append([]string(nil), (*value)...)
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatSliceConfig(cmd *cobra.Command, name string, target, value *[]float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = append([]float64(nil), (*value)...)
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value.Duration
}

func validateReconcileConfig(cfg model.ReconcileConfig) error {
	if len(cfg.Sessions) == 0 {
		return fmt.Errorf("no sessions given (pass ids, --sessions-file or sessions in the config)")
	}
	if cfg.PrimaryDir == "" || cfg.ReferenceDir == "" || cfg.OutputDir == "" {
		return fmt.Errorf("--primary-dir, --reference-dir and --output-dir are required")
	}
	if filepath.Clean(cfg.OutputDir) == filepath.Clean(cfg.PrimaryDir) && cfg.OutputSuffix == "" {
		return fmt.Errorf("--output-suffix must not be empty when writing into the primary dir")
	}
	if strings.TrimSpace(cfg.BlockColumn) == "" {
		return fmt.Errorf("--block-column must not be empty")
	}
	if len(cfg.ContactChannels) == 0 {
		return fmt.Errorf("--contact-channels must not be empty")
	}
	if len(cfg.CorrelationChannels) == 0 {
		return fmt.Errorf("--correlation-channels must not be empty")
	}
	if cfg.MaxBound < 0 {
		return fmt.Errorf("--max-bound must be >= 0")
	}
	if cfg.HintScale <= 0 || cfg.HintScale > 1 {
		return fmt.Errorf("--hint-scale must be in (0, 1]")
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# touchsync configuration
# Uncomment a value to enable it. CLI flags override config values.

[reconcile]
# sessions = ["2022-06-14_ST13-01", "2022-06-14_ST13-02", "2022-06-14_ST13-03"]
# sessions-file = ""          # One session id per line, # starts a comment
# primary-dir = ""            # Primary inputs (e.g. 0_0_by-units)
# reference-dir = ""          # Reference inputs with the same file names
# output-dir = ""             # Corrected files
# output-suffix = %q
# block-column = %q
# marker-column = %q       # Checked to be unchanged after correction
# contact-channels = %s
# correlation-channels = %s
# processed-channels = [...]  # Dropped from both inputs (24 processed contact columns)
# max-bound = 0               # Cap on the offset search bound (0 = no cap)
# hint-scale = %.1f           # Fraction of the search window evaluated
# verbose = false
# show = false                # Open the terminal viewer after each session
# plots = false               # Write <session>_diagnostics.txt
# force = false               # Reprocess sessions whose output exists

[experiment]
# name = %q
# participant = %q
# unit = 0
# data-dir = %q
# start-block = 1
# types = %s
# contact-areas = %s
# speeds = [3.0]              # cm/s
# forces = %s
# recorder-start-delay = %q
# recorder-stop-delay = %q
# pre-stimulus = %q
# shuffle = false
# seed = 0
`,
		defaultOutputSuffix,
		defaultBlockColumn,
		defaultMarkerColumn,
		tomlList(defaultContactChannels),
		tomlList(defaultCorrelationChannels),
		defaultHintScale,
		defaultExperimentName,
		defaultParticipant,
		defaultDataDir,
		tomlList(defaultTypes),
		tomlList(defaultContactAreas),
		tomlList(defaultForces),
		defaultRecorderStartDelay.String(),
		defaultRecorderStopDelay.String(),
		defaultPreStimulus.String(),
	)
}

func tomlList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// commandContext returns the command context, tolerating commands run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
