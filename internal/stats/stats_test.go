package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/touchsync/internal/model"
)

func sampleBlocks() []model.BlockResult {
	return []model.BlockResult{
		{BlockID: "1", PrimaryRows: 5, ReferenceRows: 6, Low: -1, High: 1, Step: 1, Offset: -1, Score: 0.99},
		{BlockID: "2", PrimaryRows: 3, ReferenceRows: 3, Low: -1, High: 1, Step: 1, Offset: 0, Score: 0.95},
		{BlockID: "3", PrimaryRows: 4, ReferenceRows: 4, Offset: 2, Score: math.Inf(-1), Degenerate: true},
		{BlockID: "4", PrimaryRows: 2, Skipped: true, SkipReason: "missing from reference"},
	}
}

func TestSummarizeOffsets(t *testing.T) {
	sum := SummarizeOffsets(sampleBlocks())
	if sum.Blocks != 4 || sum.Aligned != 3 || sum.Skipped != 1 || sum.Degenerate != 1 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if sum.MinOffset != -1 || sum.MaxOffset != 2 {
		t.Fatalf("unexpected offset range: %+v", sum)
	}
	if math.Abs(sum.MeanOffset-1.0/3.0) > 1e-9 {
		t.Fatalf("unexpected mean offset: %v", sum.MeanOffset)
	}
	if sum.Median != 0 {
		t.Fatalf("unexpected median: %v", sum.Median)
	}
	if math.Abs(sum.MeanScore-0.97) > 1e-9 || sum.MinScore != 0.95 {
		t.Fatalf("degenerate score must be left out: %+v", sum)
	}
}

func TestSummarizeOffsetsEmpty(t *testing.T) {
	sum := SummarizeOffsets(nil)
	if sum.Aligned != 0 || sum.StdOffset != 0 || !math.IsNaN(sum.MeanScore) {
		t.Fatalf("unexpected empty summary: %+v", sum)
	}
}

func TestRenderBlocks(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderBlocks(&buf, sampleBlocks()); err != nil {
		t.Fatalf("RenderBlocks failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Offset", "[-1, 1]", "0.9900", "degenerate", "skipped: missing from reference"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, "Session 2022-06-14_ST13-01", sampleBlocks()); err != nil {
		t.Fatalf("RenderSummary failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Blocks: 3 aligned, 1 skipped, 1 degenerate") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "range [-1, 2]") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRuns(&buf, nil); err != nil {
		t.Fatalf("RenderRuns failed: %v", err)
	}
	if buf.String() != "No runs found.\n" {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := RenderRuns(&buf, []model.RunAggregate{{
		RunID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		Session:       "2022-06-14_ST13-01",
		Status:        model.StatusDone,
		StartedAt:     start,
		EndedAt:       start.Add(1500 * time.Millisecond),
		AlignedBlocks: 12,
	}})
	if err != nil {
		t.Fatalf("RenderRuns failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "0f8fad5b ") || !strings.Contains(out, "1.5s") {
		t.Fatalf("unexpected runs output:\n%s", out)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 3, math.NaN(), 5}, 2)
	want := []float64{1, 2, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected moving average: %v", got)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 9}); got != " @" {
		t.Fatalf("unexpected sparkline: %q", got)
	}
	if got := Sparkline([]float64{2, 2, 2}); got != "+++" {
		t.Fatalf("unexpected flat sparkline: %q", got)
	}
}
