package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/touchsync/internal/model"
)

const primaryCSV = "t,block_id,areaRaw,depthRaw,velAbsRaw,area,spike\n" +
	"0.00,1,0,0,0,9,0\n" +
	"0.01,1,2,1,5,9,1\n" +
	"0.02,1,4,2,1,9,0\n" +
	"0.03,1,1,0,0,9,0\n" +
	"0.04,2,3,1,2,9,1\n" +
	"0.05,2,1,5,6,9,0\n" +
	"0.06,2,2,2,9,9,0\n"

const referenceCSV = "t,block_id,areaRaw,depthRaw,velAbsRaw,area,spike\n" +
	"1.00,1,0,0,0,8,0\n" +
	"1.01,1,0,0,0,8,0\n" +
	"1.02,1,2,1,5,8,0\n" +
	"1.03,1,4,2,1,8,0\n" +
	"1.04,1,1,0,0,8,0\n" +
	"1.05,2,3,1,2,8,0\n" +
	"1.06,2,1,5,6,8,0\n" +
	"1.07,2,2,2,9,8,0\n"

type fakeLedger struct {
	runs []model.SessionResult
	err  error
}

func (f *fakeLedger) InsertRun(_ context.Context, res model.SessionResult) (string, error) {
	f.runs = append(f.runs, res)
	return res.RunID, f.err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func testConfig(t *testing.T) model.ReconcileConfig {
	t.Helper()
	root := t.TempDir()
	cfg := model.ReconcileConfig{
		PrimaryDir:          filepath.Join(root, "primary"),
		ReferenceDir:        filepath.Join(root, "reference"),
		OutputDir:           filepath.Join(root, "out"),
		OutputSuffix:        "_semicontrolled.csv",
		BlockColumn:         "block_id",
		MarkerColumn:        "spike",
		ContactChannels:     []string{"areaRaw", "depthRaw", "velAbsRaw"},
		CorrelationChannels: []string{"velAbsRaw", "areaRaw", "depthRaw"},
		ProcessedChannels:   []string{"area", "areaSmooth"},
	}
	name := "2022-06-14-ST13-unit1_semicontrolled.csv"
	writeFile(t, filepath.Join(cfg.PrimaryDir, name), primaryCSV)
	writeFile(t, filepath.Join(cfg.ReferenceDir, name), referenceCSV)
	return cfg
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestParseAndUnitName(t *testing.T) {
	cases := map[string]string{
		"2022-06-14_ST13-01": "2022-06-14-ST13-unit1",
		"2022-06-17_ST16-05": "2022-06-17-ST16-unit5",
		"2022-06-22_ST18-10": "2022-06-22-ST18-unit10",
		"2022-06-22_ST18-00": "2022-06-22-ST18-unit0",
	}
	for raw, want := range cases {
		id, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", raw, err)
		}
		if got := id.UnitName(); got != want {
			t.Fatalf("UnitName(%q) = %q, want %q", raw, got, want)
		}
	}
	for _, bad := range []string{"", "2022-06-14-ST13-01", "2022-06-14_ST13", "ST13-01", "2022-06-14_st13-01"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	id, _ := Parse("2022-06-14_ST13-01")
	if id.OutputName("_semicontrolled.csv") != "2022-06-14_ST13-01_semicontrolled.csv" {
		t.Fatalf("unexpected output name %q", id.OutputName("_semicontrolled.csv"))
	}
}

func TestResolve(t *testing.T) {
	cfg := testConfig(t)
	id, _ := Parse("2022-06-14_ST13-01")

	in, err := Resolve(cfg.PrimaryDir, cfg.ReferenceDir, id)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if filepath.Base(in.Primary) != filepath.Base(in.Reference) {
		t.Fatalf("reference must share the primary file name: %+v", in)
	}

	// unit10 must not be taken for unit1.
	writeFile(t, filepath.Join(cfg.PrimaryDir, "2022-06-14-ST13-unit10.csv"), primaryCSV)
	if _, err := Resolve(cfg.PrimaryDir, cfg.ReferenceDir, id); err != nil {
		t.Fatalf("unit10 should not match unit1: %v", err)
	}

	writeFile(t, filepath.Join(cfg.PrimaryDir, "2022-06-14-ST13-unit1_copy.csv"), primaryCSV)
	if _, err := Resolve(cfg.PrimaryDir, cfg.ReferenceDir, id); !errors.Is(err, ErrAmbiguousInput) {
		t.Fatalf("expected ErrAmbiguousInput, got %v", err)
	}

	missing, _ := Parse("2022-06-14_ST13-02")
	if _, err := Resolve(cfg.PrimaryDir, cfg.ReferenceDir, missing); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}

	noRef, _ := Parse("2022-06-14_ST13-03")
	writeFile(t, filepath.Join(cfg.PrimaryDir, "2022-06-14-ST13-unit3.csv"), primaryCSV)
	if _, err := Resolve(cfg.PrimaryDir, cfg.ReferenceDir, noRef); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput for missing reference, got %v", err)
	}
}

func TestRunnerWritesCorrectedOutput(t *testing.T) {
	cfg := testConfig(t)
	ledger := &fakeLedger{}
	var logs bytes.Buffer
	runner := &Runner{Config: cfg, Ledger: ledger, Logger: quietLogger(&logs)}

	results, err := runner.Run(context.Background(), []string{"2022-06-14_ST13-01"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res := results[0]
	if res.Status != model.StatusDone {
		t.Fatalf("expected done, got %s: %s", res.Status, res.Message)
	}
	if len(res.Blocks) != 2 || res.Blocks[0].Offset != -1 || res.Blocks[1].Offset != 0 {
		t.Fatalf("unexpected blocks: %+v", res.Blocks)
	}

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read output failed: %v", err)
	}
	out := string(data)
	if !strings.HasPrefix(out, "t,block_id,areaRaw,depthRaw,velAbsRaw,spike\n") {
		t.Fatalf("processed columns must be dropped:\n%s", out)
	}
	if !strings.Contains(out, "0.01,1,2,1,5,1\n") || !strings.Contains(out, "0.06,2,2,2,9,0\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if len(ledger.runs) != 1 || ledger.runs[0].Status != model.StatusDone {
		t.Fatalf("run was not recorded: %+v", ledger.runs)
	}
	if !strings.Contains(logs.String(), "msg=done") {
		t.Fatalf("expected final done message, got:\n%s", logs.String())
	}
}

func TestRunnerSkipsExistingOutput(t *testing.T) {
	cfg := testConfig(t)
	existing := filepath.Join(cfg.OutputDir, "2022-06-14_ST13-01_semicontrolled.csv")
	writeFile(t, existing, "keep me\n")
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(existing, past, past); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}
	var logs bytes.Buffer
	runner := &Runner{Config: cfg, Logger: quietLogger(&logs)}

	res := runner.RunSession(context.Background(), "2022-06-14_ST13-01")
	if res.Status != model.StatusSkippedExisting {
		t.Fatalf("expected skipped-existing, got %s", res.Status)
	}
	if len(res.Blocks) != 0 || strings.Contains(logs.String(), "block aligned") {
		t.Fatalf("no computation expected for an existing output")
	}
	data, _ := os.ReadFile(existing)
	info, _ := os.Stat(existing)
	if string(data) != "keep me\n" || !info.ModTime().Equal(past) {
		t.Fatalf("existing output must be left untouched")
	}

	runner.Config.Force = true
	res = runner.RunSession(context.Background(), "2022-06-14_ST13-01")
	if res.Status != model.StatusDone {
		t.Fatalf("expected forced rerun, got %s: %s", res.Status, res.Message)
	}
	data, _ = os.ReadFile(existing)
	if string(data) == "keep me\n" {
		t.Fatalf("forced run must overwrite the output")
	}
}

func TestRunnerSkipsMissingInputAndFailsOnConfig(t *testing.T) {
	cfg := testConfig(t)
	ledger := &fakeLedger{err: errors.New("disk full")}
	var logs bytes.Buffer
	runner := &Runner{Config: cfg, Ledger: ledger, Logger: quietLogger(&logs)}

	results, err := runner.Run(context.Background(), []string{"2022-06-14_ST13-07", "bogus", "2022-06-14_ST13-01"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != model.StatusSkippedInput {
		t.Fatalf("expected skipped-missing-input, got %s", results[0].Status)
	}
	if results[1].Status != model.StatusFailed {
		t.Fatalf("expected failed for a malformed id, got %s", results[1].Status)
	}
	if results[2].Status != model.StatusDone {
		t.Fatalf("a ledger error must not fail the session, got %s", results[2].Status)
	}
	if len(ledger.runs) != 3 {
		t.Fatalf("expected every session to be recorded, got %d", len(ledger.runs))
	}

	cfg.ContactChannels = append(cfg.ContactChannels, "velVertRaw")
	cfg.Force = true
	runner.Config = cfg
	res := runner.RunSession(context.Background(), "2022-06-14_ST13-01")
	if res.Status != model.StatusFailed || !strings.Contains(res.Message, "velVertRaw") {
		t.Fatalf("expected configuration failure, got %s: %s", res.Status, res.Message)
	}
}

func TestRunnerStopsBetweenSessions(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &Runner{Config: cfg, Logger: quietLogger(&bytes.Buffer{})}
	results, err := runner.Run(ctx, []string{"2022-06-14_ST13-01"})
	if !errors.Is(err, context.Canceled) || len(results) != 0 {
		t.Fatalf("expected cancellation before the first session, got %v %v", results, err)
	}
}

func TestRunnerPlotsAndInspect(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plots = true
	cfg.Show = true
	var seen []Outcome
	runner := &Runner{
		Config: cfg,
		Logger: quietLogger(&bytes.Buffer{}),
		Inspect: func(_ context.Context, out Outcome) error {
			seen = append(seen, out)
			return nil
		},
	}
	res := runner.RunSession(context.Background(), "2022-06-14_ST13-01")
	if res.Status != model.StatusDone {
		t.Fatalf("expected done, got %s: %s", res.Status, res.Message)
	}
	report, err := os.ReadFile(filepath.Join(cfg.OutputDir, "2022-06-14_ST13-01_diagnostics.txt"))
	if err != nil {
		t.Fatalf("diagnostics file missing: %v", err)
	}
	for _, want := range []string{"Block 1: velAbsRaw", `Marker "spike" after correction: unchanged`, "Blocks: 2 aligned"} {
		if !strings.Contains(string(report), want) {
			t.Fatalf("expected %q in diagnostics:\n%s", want, report)
		}
	}
	if len(seen) != 1 || len(seen[0].Traces) != 2 || seen[0].Result.Status != model.StatusDone {
		t.Fatalf("unexpected inspection outcome: %+v", seen)
	}
}

func TestProbeSession(t *testing.T) {
	cfg := testConfig(t)
	p := ProbeSession(cfg, "2022-06-14_ST13-01")
	if p.Err != nil || p.OutputExists || p.Inputs.Primary == "" {
		t.Fatalf("unexpected probe: %+v", p)
	}
	p = ProbeSession(cfg, "2022-06-14_ST13-09")
	if !errors.Is(p.Err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", p.Err)
	}
}
