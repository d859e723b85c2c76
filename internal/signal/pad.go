package signal

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Pad returns a copy of m with rows rows. Appended rows hold Neutral and are
// false in the returned mask.
func Pad(m mat.Matrix, rows int) (*mat.Dense, []bool) {
	r, c := m.Dims()
	if rows < r {
		panic(fmt.Sprintf("signal: cannot pad %d rows down to %d", r, rows))
	}
	// NewDense zero-fills, which is the Neutral value.
	out := mat.NewDense(rows, c, nil)
	if r > 0 {
		out.Slice(0, r, 0, c).(*mat.Dense).Copy(m)
	}
	return out, validMask(r, rows)
}

// Equalize pads the shorter matrix so both have the same row count.
func Equalize(a, b mat.Matrix) (pa, pb *mat.Dense, maskA, maskB []bool) {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ca != cb {
		panic(fmt.Sprintf("signal: channel count mismatch %d != %d", ca, cb))
	}
	rows := ra
	if rb > rows {
		rows = rb
	}
	pa, maskA = Pad(a, rows)
	pb, maskB = Pad(b, rows)
	return pa, pb, maskA, maskB
}

// PadValues extends values to rows rows using fill for the appended rows.
func PadValues(values [][]float64, rows int, fill float64) ([][]float64, []bool) {
	if rows < len(values) {
		panic(fmt.Sprintf("signal: cannot pad %d rows down to %d", len(values), rows))
	}
	width := 0
	if len(values) > 0 {
		width = len(values[0])
	}
	out := make([][]float64, rows)
	for i := range out {
		if i < len(values) {
			out[i] = append([]float64(nil), values[i]...)
			continue
		}
		row := make([]float64, width)
		for j := range row {
			row[j] = fill
		}
		out[i] = row
	}
	return out, validMask(len(values), rows)
}

func validMask(valid, rows int) []bool {
	mask := make([]bool, rows)
	for i := 0; i < valid && i < rows; i++ {
		mask[i] = true
	}
	return mask
}
