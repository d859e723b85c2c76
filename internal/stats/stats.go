package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/touchsync/internal/model"
)

const sparkChars = " .:-=+*#%@"

// OffsetSummary describes the offsets chosen for a set of blocks.
type OffsetSummary struct {
	Blocks     int
	Aligned    int
	Skipped    int
	Degenerate int
	MinOffset  int
	MaxOffset  int
	MeanOffset float64
	StdOffset  float64
	Median     float64
	// MeanScore and MinScore only count blocks with a defined correlation.
	MeanScore float64
	MinScore  float64
}

// SummarizeOffsets aggregates block results. Skipped blocks only count towards Skipped.
func SummarizeOffsets(blocks []model.BlockResult) OffsetSummary {
	sum := OffsetSummary{Blocks: len(blocks), MinScore: math.NaN(), MeanScore: math.NaN()}
	var offsets, scores []float64
	for _, b := range blocks {
		if b.Skipped {
			sum.Skipped++
			continue
		}
		sum.Aligned++
		if b.Degenerate {
			sum.Degenerate++
		}
		if len(offsets) == 0 || b.Offset < sum.MinOffset {
			sum.MinOffset = b.Offset
		}
		if len(offsets) == 0 || b.Offset > sum.MaxOffset {
			sum.MaxOffset = b.Offset
		}
		offsets = append(offsets, float64(b.Offset))
		if !math.IsInf(b.Score, 0) && !math.IsNaN(b.Score) {
			scores = append(scores, b.Score)
		}
	}
	if len(offsets) > 0 {
		sum.MeanOffset = stat.Mean(offsets, nil)
		if len(offsets) > 1 {
			sum.StdOffset = stat.StdDev(offsets, nil)
		}
		sorted := append([]float64(nil), offsets...)
		sort.Float64s(sorted)
		sum.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	if len(scores) > 0 {
		sum.MeanScore = stat.Mean(scores, nil)
		sum.MinScore = scores[0]
		for _, s := range scores[1:] {
			sum.MinScore = math.Min(sum.MinScore, s)
		}
	}
	return sum
}

// RenderSummary prints an offset summary.
func RenderSummary(w io.Writer, title string, blocks []model.BlockResult) error {
	sum := SummarizeOffsets(blocks)
	var b strings.Builder
	if title != "" {
		fmt.Fprintln(&b, title)
	}
	fmt.Fprintf(&b, "Blocks: %d aligned, %d skipped, %d degenerate\n", sum.Aligned, sum.Skipped, sum.Degenerate)
	if sum.Aligned > 0 {
		fmt.Fprintf(&b, "Offset: mean %.2f, sd %.2f, median %.1f, range [%d, %d]\n",
			sum.MeanOffset, sum.StdOffset, sum.Median, sum.MinOffset, sum.MaxOffset)
		fmt.Fprintf(&b, "Offsets: %s\n", Sparkline(alignedOffsets(blocks)))
	}
	if !math.IsNaN(sum.MeanScore) {
		fmt.Fprintf(&b, "Score: mean %.4f, min %.4f\n", sum.MeanScore, sum.MinScore)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderBlocks prints one row per block result.
func RenderBlocks(w io.Writer, blocks []model.BlockResult) error {
	if len(blocks) == 0 {
		_, err := fmt.Fprintln(w, "No blocks recorded.")
		return err
	}
	headers := []string{"Block", "Rows", "Window", "Step", "Offset", "Score", "Note"}
	rows := make([][]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Skipped {
			rows = append(rows, []string{
				b.BlockID,
				fmt.Sprintf("%d/%d", b.PrimaryRows, b.ReferenceRows),
				"", "", "", "",
				"skipped: " + b.SkipReason,
			})
			continue
		}
		note := ""
		if b.Degenerate {
			note = "degenerate"
		}
		rows = append(rows, []string{
			b.BlockID,
			fmt.Sprintf("%d/%d", b.PrimaryRows, b.ReferenceRows),
			fmt.Sprintf("[%d, %d]", b.Low, b.High),
			strconv.Itoa(b.Step),
			strconv.Itoa(b.Offset),
			FormatScore(b.Score),
			note,
		})
	}
	return RenderTable(w, headers, rows, map[int]bool{1: true, 3: true, 4: true, 5: true})
}

// RenderRuns prints recorded runs, newest first as given.
func RenderRuns(w io.Writer, runs []model.RunAggregate) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	headers := []string{"Run", "Session", "Status", "Started", "Took", "Aligned", "Skipped", "Output"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := ""
		if !r.EndedAt.IsZero() && !r.StartedAt.IsZero() {
			took = r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			shortID(r.RunID),
			r.Session,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			took,
			strconv.Itoa(r.AlignedBlocks),
			strconv.Itoa(r.SkippedBlocks),
			r.OutputPath,
		})
	}
	return RenderTable(w, headers, rows, map[int]bool{4: true, 5: true, 6: true})
}

// RenderOffsetCurve plots the chosen offset and smoothed score per aligned block.
func RenderOffsetCurve(w io.Writer, blocks []model.BlockResult, window int, opts PlotOptions) error {
	offsets := alignedOffsets(blocks)
	if len(offsets) == 0 {
		return nil
	}
	scores := make([]float64, 0, len(offsets))
	for _, b := range blocks {
		if b.Skipped {
			continue
		}
		s := b.Score
		if math.IsInf(s, 0) {
			s = math.NaN()
		}
		scores = append(scores, s)
	}
	return Plot(w, "Offsets per block", []Series{
		{Name: "Offset", Values: offsets},
		{Name: "Score", Values: MovingAverage(scores, window)},
	}, opts)
}

// FormatScore renders a correlation score; undefined scores print as "-".
func FormatScore(score float64) string {
	if math.IsInf(score, 0) || math.IsNaN(score) {
		return "-"
	}
	return fmt.Sprintf("%.4f", score)
}

// MovingAverage computes a rolling mean over the provided window size.
// NaN values are left out of the windows they fall into.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		n := 0
		for _, v := range values[start : i+1] {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	r := rangeOf(values)
	var b strings.Builder
	for _, v := range values {
		if math.IsNaN(v) {
			b.WriteByte(' ')
			continue
		}
		pos := (v - r.min) / (r.max - r.min)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

func alignedOffsets(blocks []model.BlockResult) []float64 {
	out := make([]float64, 0, len(blocks))
	for _, b := range blocks {
		if !b.Skipped {
			out = append(out, float64(b.Offset))
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
