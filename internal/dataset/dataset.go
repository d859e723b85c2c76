package dataset

import "math"

// Record is one sample row.
type Record struct {
	// Index is the 0-based row position in the source table.
	Index   int
	BlockID string
	// Contact holds the schema's contact channels in order. NaN marks an empty cell.
	Contact []float64
	// Pass holds the raw text of every non-contact column in file order.
	Pass []string
}

// WithContact returns a copy of r carrying the given contact values.
func (r Record) WithContact(values []float64) Record {
	out := r
	out.Contact = append([]float64(nil), values...)
	out.Pass = append([]string(nil), r.Pass...)
	return out
}

// Dataset is a loaded table.
type Dataset struct {
	Schema  *Schema
	Records []Record
}

// BlockIDs returns the distinct block ids in order of first appearance.
func (d *Dataset) BlockIDs() []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, rec := range d.Records {
		if _, ok := seen[rec.BlockID]; ok {
			continue
		}
		seen[rec.BlockID] = struct{}{}
		ids = append(ids, rec.BlockID)
	}
	return ids
}

// Blocks groups records by block id, preserving row order inside each block.
func (d *Dataset) Blocks() map[string][]Record {
	out := map[string][]Record{}
	for _, rec := range d.Records {
		out[rec.BlockID] = append(out[rec.BlockID], rec)
	}
	return out
}

// ContactColumn returns the values of a contact channel across all records.
func (d *Dataset) ContactColumn(name string) ([]float64, bool) {
	idx, ok := d.Schema.ContactIndex(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(d.Records))
	for i, rec := range d.Records {
		out[i] = rec.Contact[idx]
	}
	return out, true
}

// PassColumn returns the raw text of a pass-through column across all records.
func (d *Dataset) PassColumn(name string) ([]string, bool) {
	idx, ok := d.Schema.PassIndex(name)
	if !ok {
		return nil, false
	}
	out := make([]string, len(d.Records))
	for i, rec := range d.Records {
		out[i] = rec.Pass[idx]
	}
	return out, true
}

// SameBlockIDs reports whether two datasets carry the same set of block ids.
func SameBlockIDs(a, b *Dataset) bool {
	left := setOf(a.BlockIDs())
	right := setOf(b.BlockIDs())
	if len(left) != len(right) {
		return false
	}
	for id := range left {
		if _, ok := right[id]; !ok {
			return false
		}
	}
	return true
}

func setOf(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func isMissing(v float64) bool {
	return math.IsNaN(v)
}
