package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/touchsync/internal/config"
	"github.com/verte-zerg/touchsync/internal/experiment"
	"github.com/verte-zerg/touchsync/internal/generator"
	"github.com/verte-zerg/touchsync/internal/model"
)

const (
	defaultExperimentName     = "controlled-touch-MNG"
	defaultParticipant        = "ST12"
	defaultDataDir            = "data"
	defaultRecorderStartDelay = 2 * time.Second
	defaultRecorderStopDelay  = 2 * time.Second
	defaultPreStimulus        = 1500 * time.Millisecond
)

var (
	defaultTypes        = []string{"tap", "stroke"}
	defaultContactAreas = []string{"one finger tip", "whole hand", "two finger pads"}
	defaultSpeeds       = []float64{3.0}
	defaultForces       = []string{"light"}
)

var (
	experimentName               string
	experimentParticipant        string
	experimentUnit               int
	experimentDataDir            string
	experimentStartBlock         int
	experimentTypes              []string
	experimentContactAreas       []string
	experimentSpeeds             []float64
	experimentForces             []string
	experimentRecorderStartDelay time.Duration
	experimentRecorderStopDelay  time.Duration
	experimentPreStimulus        time.Duration
	experimentShuffle            bool
	experimentSeed               int64
	experimentDryRun             bool
	experimentFast               bool
	experimentVerbose            bool
)

func newExperimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Run the stimulus presentation loop",
		Args:  cobra.NoArgs,
		RunE:  runExperimentCmd,
	}
	cmd.Flags().StringVar(&experimentName, "name", defaultExperimentName, "experiment name")
	cmd.Flags().StringVar(&experimentParticipant, "participant", defaultParticipant, "participant code")
	cmd.Flags().IntVar(&experimentUnit, "unit", 0, "unit number")
	cmd.Flags().StringVar(&experimentDataDir, "data-dir", defaultDataDir, "folder for saving data")
	cmd.Flags().IntVar(&experimentStartBlock, "start-block", 1, "start from block number")
	cmd.Flags().StringSliceVar(&experimentTypes, "types", defaultTypes, "stimulus types")
	cmd.Flags().StringSliceVar(&experimentContactAreas, "contact-areas", defaultContactAreas, "contact areas")
	cmd.Flags().Float64SliceVar(&experimentSpeeds, "speeds", defaultSpeeds, "speeds in cm/s")
	cmd.Flags().StringSliceVar(&experimentForces, "forces", defaultForces, "forces")
	cmd.Flags().DurationVar(&experimentRecorderStartDelay, "recorder-start-delay", defaultRecorderStartDelay, "wait after starting the recorder")
	cmd.Flags().DurationVar(&experimentRecorderStopDelay, "recorder-stop-delay", defaultRecorderStopDelay, "delay before the recorder stops")
	cmd.Flags().DurationVar(&experimentPreStimulus, "pre-stimulus", defaultPreStimulus, "wait before every stimulus")
	cmd.Flags().BoolVar(&experimentShuffle, "shuffle", false, "shuffle blocks and stimuli within blocks")
	cmd.Flags().Int64Var(&experimentSeed, "seed", 0, "shuffle seed (0 = time based)")
	cmd.Flags().BoolVar(&experimentDryRun, "dry-run", true, "log device commands instead of driving hardware")
	cmd.Flags().BoolVar(&experimentFast, "fast", false, "skip every wait")
	cmd.Flags().BoolVar(&experimentVerbose, "verbose", false, "log every cue")
	return cmd
}

func experimentConfigFrom(cmd *cobra.Command, fileCfg config.ExperimentConfig) model.ExperimentConfig {
	applyStringConfig(cmd, "name", &experimentName, fileCfg.Name)
	applyStringConfig(cmd, "participant", &experimentParticipant, fileCfg.Participant)
	applyIntConfig(cmd, "unit", &experimentUnit, fileCfg.Unit)
	applyStringConfig(cmd, "data-dir", &experimentDataDir, fileCfg.DataDir)
	applyIntConfig(cmd, "start-block", &experimentStartBlock, fileCfg.StartBlock)
	applyStringSliceConfig(cmd, "types", &experimentTypes, fileCfg.Types)
	applyStringSliceConfig(cmd, "contact-areas", &experimentContactAreas, fileCfg.ContactAreas)
	applyFloatSliceConfig(cmd, "speeds", &experimentSpeeds, fileCfg.Speeds)
	applyStringSliceConfig(cmd, "forces", &experimentForces, fileCfg.Forces)
	applyDurationConfig(cmd, "recorder-start-delay", &experimentRecorderStartDelay, fileCfg.RecorderStartDelay)
	applyDurationConfig(cmd, "recorder-stop-delay", &experimentRecorderStopDelay, fileCfg.RecorderStopDelay)
	applyDurationConfig(cmd, "pre-stimulus", &experimentPreStimulus, fileCfg.PreStimulus)
	applyBoolConfig(cmd, "shuffle", &experimentShuffle, fileCfg.Shuffle)
	applyInt64Config(cmd, "seed", &experimentSeed, fileCfg.Seed)

	return model.ExperimentConfig{
		Name:               experimentName,
		Participant:        experimentParticipant,
		Unit:               experimentUnit,
		DataDir:            experimentDataDir,
		StartBlock:         experimentStartBlock,
		Types:              experimentTypes,
		ContactAreas:       experimentContactAreas,
		Speeds:             experimentSpeeds,
		Forces:             experimentForces,
		RecorderStartDelay: experimentRecorderStartDelay,
		RecorderStopDelay:  experimentRecorderStopDelay,
		PreStimulus:        experimentPreStimulus,
		Shuffle:            experimentShuffle,
		Seed:               experimentSeed,
	}
}

func runExperimentCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := experimentConfigFrom(cmd, fileCfg.Experiment)
	if err := validateExperimentConfig(cfg); err != nil {
		return err
	}
	if !experimentDryRun {
		return fmt.Errorf("no hardware devices are available; run with --dry-run")
	}

	plan, err := generator.Build(cfg)
	if err != nil {
		return err
	}
	if cfg.Shuffle {
		gen := generator.New()
		if cfg.Seed != 0 {
			gen = generator.NewSeeded(cfg.Seed)
		}
		plan = gen.Shuffle(plan)
	}

	logger := newLogger(cmd.ErrOrStderr(), experimentVerbose)
	start := time.Now()
	prefix := experiment.Prefix(cfg, start)
	sink, err := experiment.CreateFileSink(cfg.DataDir, prefix, experiment.NewInfo(cfg, start, experimentDryRun))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("failed to close data files", slog.String("error", cerr.Error()))
		}
	}()

	sleep := experiment.Sleep
	if experimentFast {
		sleep = experiment.NoSleep
	}
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	ctrl := &experiment.Controller{
		Config:   cfg,
		Plan:     plan,
		Recorder: &experiment.DryRecorder{Logger: logger, Sleep: sleep},
		Trigger:  experiment.DryTrigger{Logger: logger},
		Cues:     experiment.DryCues{Logger: logger},
		Events:   sink,
		Trials:   sink,
		Logger:   logger,
		Sleep:    sleep,
	}
	logger.Info("experiment started",
		slog.String("prefix", prefix),
		slog.Int("stimuli", len(plan.Stimuli)),
		slog.Int("blocks", plan.Blocks()))
	sum, err := ctrl.Run(ctx)
	if err != nil {
		return fmt.Errorf("experiment stopped after %d stimuli: %w", sum.Presented, err)
	}
	logger.Info("experiment finished",
		slog.Int("presented", sum.Presented),
		slog.Int("blocks", sum.Blocks),
		slog.Duration("elapsed", sum.Elapsed))
	return nil
}

func validateExperimentConfig(cfg model.ExperimentConfig) error {
	if cfg.Name == "" || cfg.Participant == "" {
		return fmt.Errorf("--name and --participant must not be empty")
	}
	if cfg.Unit < 0 {
		return fmt.Errorf("--unit must be >= 0")
	}
	if cfg.StartBlock < 1 {
		return fmt.Errorf("--start-block must be >= 1")
	}
	if cfg.RecorderStartDelay < 0 || cfg.RecorderStopDelay < 0 || cfg.PreStimulus < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	return nil
}
