// Package signal builds dense numeric matrices from contact records.
//
// A signal matrix has one row per sample and one column per channel. It is
// only used for similarity scoring: undefined samples become 0 and padding
// rows are flagged in a validity mask so callers can tell them from data.
package signal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/touchsync/internal/dataset"
)

// Neutral is the value that stands in for undefined samples and padding rows.
const Neutral = 0.0

var (
	// ErrUnknownChannel reports a requested channel absent from the schema.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrEmpty reports a matrix request without samples or channels.
	ErrEmpty = errors.New("empty signal")
)

// Build extracts channels from records into a samples × channels matrix.
func Build(records []dataset.Record, schema *dataset.Schema, channels []string) (*mat.Dense, error) {
	cols, err := channelIndexes(schema, channels)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrEmpty)
	}
	data := make([]float64, 0, len(records)*len(cols))
	for _, rec := range records {
		for _, c := range cols {
			v := rec.Contact[c]
			if math.IsNaN(v) {
				v = Neutral
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(records), len(cols), data), nil
}

// Values copies channels from records keeping NaN for undefined samples.
func Values(records []dataset.Record, schema *dataset.Schema, channels []string) ([][]float64, error) {
	cols, err := channelIndexes(schema, channels)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = rec.Contact[c]
		}
		out[i] = row
	}
	return out, nil
}

func channelIndexes(schema *dataset.Schema, channels []string) ([]int, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channels requested", ErrEmpty)
	}
	cols := make([]int, len(channels))
	for i, name := range channels {
		idx, ok := schema.ContactIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
		cols[i] = idx
	}
	return cols, nil
}
