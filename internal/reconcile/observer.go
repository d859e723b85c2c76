package reconcile

import "github.com/verte-zerg/touchsync/internal/model"

// BlockTrace carries the contact values of one aligned block for diagnostics.
// Rows are indexed by position inside the block; channels follow Channels.
type BlockTrace struct {
	BlockID  string
	Channels []string
	// Rows is the equalized row count fed to the offset search.
	Rows      int
	Primary   [][]float64
	Reference [][]float64
	Corrected [][]float64
	Result    model.BlockResult
}

// Observer receives progress and diagnostics from a reconciliation.
// Implementations must not modify the values they receive.
type Observer interface {
	SearchProgress(block string, percent int)
	BlockAligned(trace BlockTrace)
	Warn(msg string, args ...any)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) SearchProgress(string, int) {}

func (NopObserver) BlockAligned(BlockTrace) {}

func (NopObserver) Warn(string, ...any) {}
