package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/verte-zerg/touchsync/internal/dataset"
	"github.com/verte-zerg/touchsync/internal/stats"
)

// ErrNoMarker reports a marker column absent from a dataset.
var ErrNoMarker = errors.New("marker column not found")

// MarkerDiff returns, for every corrected row, the corrected marker value
// minus the original value of the same source row. Cells that are not
// numbers compare as text: equal text gives 0, anything else NaN.
func MarkerDiff(original, corrected *dataset.Dataset, column string) ([]float64, error) {
	before, err := markerText(original, column)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}
	after, err := markerText(corrected, column)
	if err != nil {
		return nil, fmt.Errorf("corrected: %w", err)
	}

	byIndex := make(map[int]string, len(original.Records))
	for i, rec := range original.Records {
		byIndex[rec.Index] = before[i]
	}
	diff := make([]float64, len(corrected.Records))
	for i, rec := range corrected.Records {
		prev, ok := byIndex[rec.Index]
		if !ok {
			diff[i] = math.NaN()
			continue
		}
		diff[i] = cellDiff(prev, after[i])
	}
	return diff, nil
}

// MarkerInvariant reports whether the marker column is unchanged on every corrected row.
func MarkerInvariant(original, corrected *dataset.Dataset, column string) (bool, error) {
	diff, err := MarkerDiff(original, corrected, column)
	if err != nil {
		return false, err
	}
	return countChanged(diff) == 0, nil
}

// WriteMarkerReport plots the marker difference and states whether it is flat zero.
func WriteMarkerReport(w io.Writer, original, corrected *dataset.Dataset, column string, width, height int) error {
	diff, err := MarkerDiff(original, corrected, column)
	if err != nil {
		return err
	}
	changed := countChanged(diff)
	verdict := "unchanged"
	if changed > 0 {
		verdict = fmt.Sprintf("CHANGED on %d of %d rows", changed, len(diff))
	}
	if _, err := fmt.Fprintf(w, "Marker %q after correction: %s\n", column, verdict); err != nil {
		return err
	}
	return stats.Plot(w, fmt.Sprintf("%s difference (corrected - original, should be 0)", column), []stats.Series{
		{Name: column, Values: diff},
	}, stats.PlotOptions{Width: width, Height: height})
}

func countChanged(diff []float64) int {
	n := 0
	for _, d := range diff {
		if d != 0 {
			n++
		}
	}
	return n
}

func markerText(d *dataset.Dataset, column string) ([]string, error) {
	if values, ok := d.PassColumn(column); ok {
		return values, nil
	}
	if values, ok := d.ContactColumn(column); ok {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = dataset.FormatValue(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoMarker, column)
}

func cellDiff(before, after string) float64 {
	b, errB := strconv.ParseFloat(strings.TrimSpace(before), 64)
	a, errA := strconv.ParseFloat(strings.TrimSpace(after), 64)
	if errA == nil && errB == nil {
		if math.IsNaN(a) && math.IsNaN(b) {
			return 0
		}
		return a - b
	}
	if before == after {
		return 0
	}
	return math.NaN()
}
