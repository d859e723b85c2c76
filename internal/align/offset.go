// Package align estimates the integer sample offset between two multichannel signals.
//
// Offsets follow one convention throughout: applying offset k moves every
// sample k rows later (out[i] = in[i-k]). Rows vacated by the move take a fill
// value and nothing wraps around. FindBestOffset(m, Shift(m, k, 0), ...)
// therefore reports -k.
package align

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Options bounds an offset search.
type Options struct {
	// Low and High are the inclusive search bounds before clamping.
	Low  int
	High int
	// Hint is the number of candidates to sample across the range.
	// Zero or negative searches every offset.
	Hint int
	// Progress, when set, receives each new integer completion percentage.
	Progress func(percent int)
}

// Result is the outcome of an offset search.
type Result struct {
	Offset int
	// Score is the Pearson correlation at Offset, or -Inf when no candidate scored.
	Score float64
	// Low, High and Step describe the grid that was actually searched.
	Low        int
	High       int
	Step       int
	Candidates int
	// Degenerate is set when every candidate had a zero-variance signal.
	Degenerate bool
}

// Clamp limits bounds so that no shift exceeds the signal length.
func Clamp(low, high, rows int) (int, int) {
	limit := rows - 1
	if limit < 0 {
		limit = 0
	}
	if low < -limit {
		low = -limit
	}
	if high > limit {
		high = limit
	}
	return low, high
}

// Step derives the candidate spacing from a sampling hint.
func Step(low, high, hint int) int {
	if hint <= 0 || high <= low {
		return 1
	}
	step := (high - low) / hint
	if step < 1 {
		return 1
	}
	return step
}

// FindBestOffset searches for the shift of b that best correlates with a.
//
// Both matrices must have the same shape; a mismatch panics with mat.ErrShape.
// Undefined samples (NaN) count as 0. Each candidate flattens both matrices
// row-major so all channels contribute to one correlation coefficient.
// The first maximum in search order wins.
func FindBestOffset(a, b mat.Matrix, opts Options) Result {
	rows, cols := a.Dims()
	rb, cb := b.Dims()
	if rows != rb || cols != cb {
		panic(mat.ErrShape)
	}

	low, high := Clamp(opts.Low, opts.High, rows)
	step := Step(low, high, opts.Hint)
	res := Result{
		Offset:     0,
		Score:      math.Inf(-1),
		Low:        low,
		High:       high,
		Step:       step,
		Degenerate: true,
	}
	if low > high {
		return res
	}

	flatA := flatten(a)
	flatB := flatten(b)
	shifted := make([]float64, len(flatB))

	total := (high-low)/step + 1
	lastPct := -1
	for k := low; k <= high; k += step {
		res.Candidates++
		shiftFlat(shifted, flatB, k, cols, 0)
		score := stat.Correlation(flatA, shifted, nil)
		if !math.IsNaN(score) {
			res.Degenerate = false
			score = math.Max(-1, math.Min(1, score))
			if score > res.Score {
				res.Score = score
				res.Offset = k
			}
		}
		if opts.Progress != nil {
			pct := res.Candidates * 100 / total
			if pct != lastPct {
				opts.Progress(pct)
				lastPct = pct
			}
		}
	}
	return res
}

// Shift returns a copy of m moved by k rows; vacated rows hold fill.
func Shift(m mat.Matrix, k int, fill float64) *mat.Dense {
	rows, cols := m.Dims()
	src := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			src = append(src, m.At(i, j))
		}
	}
	dst := make([]float64, len(src))
	shiftFlat(dst, src, k, cols, fill)
	return mat.NewDense(rows, cols, dst)
}

// ShiftRows returns a copy of values moved by k rows; vacated rows hold fill.
func ShiftRows(values [][]float64, k int, fill float64) [][]float64 {
	out := make([][]float64, len(values))
	for i := range out {
		width := len(values[i])
		row := make([]float64, width)
		src := i - k
		if src >= 0 && src < len(values) {
			copy(row, values[src])
		} else {
			for j := range row {
				row[j] = fill
			}
		}
		out[i] = row
	}
	return out
}

func flatten(m mat.Matrix) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) {
				v = 0
			}
			out = append(out, v)
		}
	}
	return out
}

// shiftFlat writes src moved by k rows of width cols into dst.
func shiftFlat(dst, src []float64, k, cols int, fill float64) {
	n := len(src)
	off := k * cols
	switch {
	case off >= n || -off >= n:
		fillRange(dst, fill)
	case off > 0:
		fillRange(dst[:off], fill)
		copy(dst[off:], src[:n-off])
	case off < 0:
		copy(dst, src[-off:])
		fillRange(dst[n+off:], fill)
	default:
		copy(dst, src)
	}
}

func fillRange(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}
