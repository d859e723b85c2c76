// Package reconcile replaces the contact channels of a primary dataset with
// the reference dataset's channels, aligned block by block.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/verte-zerg/touchsync/internal/align"
	"github.com/verte-zerg/touchsync/internal/dataset"
	"github.com/verte-zerg/touchsync/internal/model"
	"github.com/verte-zerg/touchsync/internal/signal"
)

// ErrConfig reports channel settings that do not match the input datasets.
var ErrConfig = errors.New("configuration error")

// Options controls a reconciliation.
type Options struct {
	// ContactChannels are shifted and spliced into the output.
	ContactChannels []string
	// CorrelationChannels score candidate offsets. Must be a subset of ContactChannels.
	CorrelationChannels []string
	Observer            Observer
	// MaxBound caps the search bound of every block. Zero means unlimited.
	MaxBound int
	// HintScale multiplies the number of sampled offsets. Zero means 1, which
	// searches every offset inside the bound.
	HintScale float64
}

// Report summarizes a reconciliation.
type Report struct {
	Blocks           []model.BlockResult
	BlockSetMismatch bool
}

// Reconcile aligns reference to primary per block and returns the corrected
// dataset. The output keeps the primary schema, the primary block order and
// every non-contact cell of the primary dataset. Blocks missing on either side
// are skipped and produce no rows.
func Reconcile(ctx context.Context, primary, reference *dataset.Dataset, opts Options) (*dataset.Dataset, Report, error) {
	var report Report
	if err := validate(primary, reference, opts); err != nil {
		return nil, report, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	if !dataset.SameBlockIDs(primary, reference) {
		report.BlockSetMismatch = true
		obs.Warn("block ids differ between primary and reference",
			"primary_blocks", len(primary.BlockIDs()),
			"reference_blocks", len(reference.BlockIDs()))
	}

	primaryBlocks := primary.Blocks()
	referenceBlocks := reference.Blocks()
	out := &dataset.Dataset{Schema: primary.Schema}

	for _, id := range primary.BlockIDs() {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		p := primaryBlocks[id]
		r := referenceBlocks[id]
		if len(r) == 0 {
			obs.Warn("skipping block missing from reference", "block", id)
			report.Blocks = append(report.Blocks, model.BlockResult{
				BlockID:     id,
				PrimaryRows: len(p),
				Skipped:     true,
				SkipReason:  "missing from reference",
			})
			continue
		}
		records, res, err := alignBlock(id, p, r, primary.Schema, reference.Schema, opts, obs)
		if err != nil {
			return nil, report, fmt.Errorf("block %s: %w", id, err)
		}
		report.Blocks = append(report.Blocks, res)
		out.Records = append(out.Records, records...)
	}

	for _, id := range reference.BlockIDs() {
		if _, ok := primaryBlocks[id]; ok {
			continue
		}
		obs.Warn("skipping block missing from primary", "block", id)
		report.Blocks = append(report.Blocks, model.BlockResult{
			BlockID:       id,
			ReferenceRows: len(referenceBlocks[id]),
			Skipped:       true,
			SkipReason:    "missing from primary",
		})
	}
	return out, report, nil
}

func alignBlock(
	id string,
	p, r []dataset.Record,
	primarySchema, referenceSchema *dataset.Schema,
	opts Options,
	obs Observer,
) ([]dataset.Record, model.BlockResult, error) {
	res := model.BlockResult{
		BlockID:       id,
		PrimaryRows:   len(p),
		ReferenceRows: len(r),
	}

	bound := searchBound(p, r, opts.MaxBound)
	hint := int(float64(2*bound) * hintScale(opts.HintScale))

	pm, err := signal.Build(p, primarySchema, opts.CorrelationChannels)
	if err != nil {
		return nil, res, fmt.Errorf("%w: primary: %w", ErrConfig, err)
	}
	rm, err := signal.Build(r, referenceSchema, opts.CorrelationChannels)
	if err != nil {
		return nil, res, fmt.Errorf("%w: reference: %w", ErrConfig, err)
	}
	pm, rm, _, _ = signal.Equalize(pm, rm)
	rows, _ := pm.Dims()

	found := align.FindBestOffset(pm, rm, align.Options{
		Low:  -bound,
		High: bound,
		Hint: hint,
		Progress: func(percent int) {
			obs.SearchProgress(id, percent)
		},
	})
	res.Low = found.Low
	res.High = found.High
	res.Step = found.Step
	res.Offset = found.Offset
	res.Score = found.Score
	res.Degenerate = found.Degenerate
	if found.Degenerate {
		obs.Warn("no candidate offset had a defined correlation, keeping offset 0", "block", id)
	}
	if found.Step > 1 {
		obs.Warn("offset search used a coarse grid", "block", id, "step", found.Step, "candidates", found.Candidates)
	}

	primaryValues, err := signal.Values(p, primarySchema, opts.ContactChannels)
	if err != nil {
		return nil, res, fmt.Errorf("%w: primary: %w", ErrConfig, err)
	}
	referenceValues, err := signal.Values(r, referenceSchema, opts.ContactChannels)
	if err != nil {
		return nil, res, fmt.Errorf("%w: reference: %w", ErrConfig, err)
	}
	padded, _ := signal.PadValues(referenceValues, rows, math.NaN())
	shifted := align.ShiftRows(padded, found.Offset, math.NaN())
	corrected := shifted[:len(p)]

	records, err := splice(p, corrected, primarySchema, opts.ContactChannels)
	if err != nil {
		return nil, res, err
	}

	obs.BlockAligned(BlockTrace{
		BlockID:   id,
		Channels:  opts.ContactChannels,
		Rows:      rows,
		Primary:   primaryValues,
		Reference: referenceValues,
		Corrected: corrected,
		Result:    res,
	})
	return records, res, nil
}

// searchBound is the distance between the last source rows of both blocks.
func searchBound(p, r []dataset.Record, maxBound int) int {
	bound := p[len(p)-1].Index - r[len(r)-1].Index
	if bound < 0 {
		bound = -bound
	}
	if maxBound > 0 && bound > maxBound {
		bound = maxBound
	}
	return bound
}

func hintScale(scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 1
	}
	return scale
}

// splice copies primary records and overwrites their contact channels.
func splice(p []dataset.Record, values [][]float64, schema *dataset.Schema, channels []string) ([]dataset.Record, error) {
	idx := make([]int, len(channels))
	for j, name := range channels {
		pos, ok := schema.ContactIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: primary: %w: %q", ErrConfig, signal.ErrUnknownChannel, name)
		}
		idx[j] = pos
	}
	out := make([]dataset.Record, len(p))
	for i, rec := range p {
		contact := append([]float64(nil), rec.Contact...)
		for j, pos := range idx {
			contact[pos] = values[i][j]
		}
		out[i] = rec.WithContact(contact)
	}
	return out, nil
}

func validate(primary, reference *dataset.Dataset, opts Options) error {
	if primary == nil || reference == nil {
		return fmt.Errorf("%w: missing dataset", ErrConfig)
	}
	if len(opts.ContactChannels) == 0 {
		return fmt.Errorf("%w: no contact channels", ErrConfig)
	}
	if len(opts.CorrelationChannels) == 0 {
		return fmt.Errorf("%w: no correlation channels", ErrConfig)
	}
	contact := make(map[string]struct{}, len(opts.ContactChannels))
	for _, name := range opts.ContactChannels {
		contact[name] = struct{}{}
	}
	for _, name := range opts.CorrelationChannels {
		if _, ok := contact[name]; !ok {
			return fmt.Errorf("%w: correlation channel %q is not a contact channel", ErrConfig, name)
		}
	}
	for _, name := range opts.ContactChannels {
		if _, ok := primary.Schema.ContactIndex(name); !ok {
			return fmt.Errorf("%w: primary: %w: %q", ErrConfig, signal.ErrUnknownChannel, name)
		}
		if _, ok := reference.Schema.ContactIndex(name); !ok {
			return fmt.Errorf("%w: reference: %w: %q", ErrConfig, signal.ErrUnknownChannel, name)
		}
	}
	return nil
}
