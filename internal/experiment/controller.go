package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/verte-zerg/touchsync/internal/generator"
	"github.com/verte-zerg/touchsync/internal/model"
)

// Controller presents a stimulus plan block by block.
type Controller struct {
	Config   model.ExperimentConfig
	Plan     generator.Plan
	Recorder Recorder
	Trigger  TriggerBox
	Cues     CuePlayer
	Events   EventLog
	Trials   TrialWriter
	Logger   *slog.Logger
	Now      func() time.Time
	Sleep    SleepFunc
}

// Summary describes a finished or interrupted run.
type Summary struct {
	Presented int
	Blocks    int
	Elapsed   time.Duration
}

// Run presents every stimulus from Config.StartBlock on. It returns early
// with ctx.Err() when ctx is done between steps.
func (c *Controller) Run(ctx context.Context) (sum Summary, err error) {
	if err := c.validate(); err != nil {
		return sum, err
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := now()
	event := func(msg string) error {
		if err := c.Events.Log(now().Sub(start), msg); err != nil {
			return fmt.Errorf("log event: %w", err)
		}
		return nil
	}
	defer func() { sum.Elapsed = now().Sub(start) }()

	total := len(c.Plan.Stimuli)
	blocks := c.Plan.Blocks()
	block := c.startBlock()
	if err := event("experiment started"); err != nil {
		return sum, err
	}
	for stim := (block - 1) * c.Plan.BlockSize; stim < total; stim++ {
		if stim%c.Plan.BlockSize == 0 {
			if err := c.startOfBlock(ctx, event, sleep, block); err != nil {
				return sum, err
			}
		}
		if err := c.present(ctx, event, sleep, stim, block); err != nil {
			return sum, err
		}
		sum.Presented++

		if (stim+1)%c.Plan.BlockSize == 0 {
			if err := event("about to tell the recorder to stop"); err != nil {
				return sum, err
			}
			if err := c.Recorder.Stop(ctx, c.Config.RecorderStopDelay); err != nil {
				return sum, fmt.Errorf("stop recorder: %w", err)
			}
			if err := event("recorder stopped"); err != nil {
				return sum, err
			}
			if err := event(fmt.Sprintf("block %d of %d complete", block, blocks)); err != nil {
				return sum, err
			}
			logger.Info("block complete", slog.Int("block", block), slog.Int("blocks", blocks))
			sum.Blocks++
			block++
		}
	}
	if err := event("experiment finished"); err != nil {
		return sum, err
	}
	return sum, nil
}

func (c *Controller) startOfBlock(ctx context.Context, event func(string) error, sleep SleepFunc, block int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := event("about to tell recorder to start recording"); err != nil {
		return err
	}
	if err := c.Recorder.Start(ctx, RecordingName(c.Config, block)); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	if err := event("told recorder to start recording " + c.Recorder.Filename()); err != nil {
		return err
	}
	if err := sleep(ctx, c.Config.RecorderStartDelay); err != nil {
		return err
	}
	if err := event("about to tell triggerbox to send pulses/flashes"); err != nil {
		return err
	}
	if err := c.Trigger.SendPulses(ctx, block); err != nil {
		return fmt.Errorf("send pulses: %w", err)
	}
	return event(fmt.Sprintf("told triggerbox to send pulses/flashes for block number %d", block))
}

func (c *Controller) present(ctx context.Context, event func(string) error, sleep SleepFunc, stim, block int) error {
	s := c.Plan.Stimuli[stim]
	if err := sleep(ctx, c.Config.PreStimulus); err != nil {
		return err
	}
	if err := event("TTL/LED on"); err != nil {
		return err
	}
	if err := c.Cues.Present(ctx, s); err != nil {
		return fmt.Errorf("present stimulus %d: %w", stim+1, err)
	}
	if err := event(fmt.Sprintf("stimulus presented: %s, %scm/s, %s, %s force",
		s.Type, FormatSpeed(s.Speed), s.ContactArea, s.Force)); err != nil {
		return err
	}
	if err := event("TTL/LED off"); err != nil {
		return err
	}
	if err := c.Trials.Write(model.TrialRow{
		StimNo:      stim + 1,
		Stimulus:    s,
		BlockNo:     block,
		RecordingID: c.Recorder.Filename(),
	}); err != nil {
		return fmt.Errorf("write trial: %w", err)
	}
	return event(fmt.Sprintf("stimulus %d of %d complete (in block %d)", stim+1, len(c.Plan.Stimuli), block))
}

func (c *Controller) startBlock() int {
	if c.Config.StartBlock < 1 {
		return 1
	}
	return c.Config.StartBlock
}

func (c *Controller) validate() error {
	if c.Recorder == nil || c.Trigger == nil || c.Cues == nil || c.Events == nil || c.Trials == nil {
		return fmt.Errorf("experiment devices are not configured")
	}
	if c.Plan.BlockSize <= 0 || len(c.Plan.Stimuli)%c.Plan.BlockSize != 0 {
		return fmt.Errorf("invalid plan: %d stimuli in blocks of %d", len(c.Plan.Stimuli), c.Plan.BlockSize)
	}
	if b := c.startBlock(); b > c.Plan.Blocks() {
		return fmt.Errorf("start block %d exceeds %d blocks", b, c.Plan.Blocks())
	}
	return nil
}

// FilenameCore is <name>_<participant>_<unit>.
func FilenameCore(cfg model.ExperimentConfig) string {
	return fmt.Sprintf("%s_%s_%d", cfg.Name, cfg.Participant, cfg.Unit)
}

// RecordingName names the video of one block.
func RecordingName(cfg model.ExperimentConfig, block int) string {
	return fmt.Sprintf("%s_block%d", FilenameCore(cfg), block)
}

// FormatSpeed prints whole speeds with one decimal, e.g. 3.0.
func FormatSpeed(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
