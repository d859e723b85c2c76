// Package dataset loads and writes per-sample contact tables with an explicit schema.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn reports a configured column absent from a table header.
	ErrMissingColumn = errors.New("missing column")
	// ErrDuplicateColumn reports a header naming the same column twice.
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Schema describes the column layout of a dataset.
//
// Contact channels are parsed as float64; every other column, the block
// column included, is kept as raw text so it can be written back unchanged.
type Schema struct {
	Columns     []string
	BlockColumn string
	Contact     []string

	colIndex   map[string]int
	contactPos []int
	passPos    []int
	passIndex  map[string]int
	contactIdx map[string]int
	blockPass  int
}

// NewSchema validates header against the block column and contact channels.
func NewSchema(header []string, blockColumn string, contact []string) (*Schema, error) {
	if strings.TrimSpace(blockColumn) == "" {
		return nil, fmt.Errorf("block column name is empty")
	}
	if len(contact) == 0 {
		return nil, fmt.Errorf("no contact channels configured")
	}
	s := &Schema{
		Columns:     append([]string(nil), header...),
		BlockColumn: blockColumn,
		Contact:     append([]string(nil), contact...),
		colIndex:    make(map[string]int, len(header)),
		passIndex:   map[string]int{},
		contactIdx:  make(map[string]int, len(contact)),
	}
	for i, name := range header {
		if _, ok := s.colIndex[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		s.colIndex[name] = i
	}
	for i, name := range contact {
		if name == blockColumn {
			return nil, fmt.Errorf("block column %q cannot be a contact channel", name)
		}
		if _, ok := s.contactIdx[name]; ok {
			return nil, fmt.Errorf("%w: contact channel %q listed twice", ErrDuplicateColumn, name)
		}
		pos, ok := s.colIndex[name]
		if !ok {
			return nil, fmt.Errorf("%w: contact channel %q", ErrMissingColumn, name)
		}
		s.contactIdx[name] = i
		s.contactPos = append(s.contactPos, pos)
	}
	if _, ok := s.colIndex[blockColumn]; !ok {
		return nil, fmt.Errorf("%w: block column %q", ErrMissingColumn, blockColumn)
	}
	for i, name := range header {
		if _, ok := s.contactIdx[name]; ok {
			continue
		}
		s.passIndex[name] = len(s.passPos)
		s.passPos = append(s.passPos, i)
	}
	s.blockPass = s.passIndex[blockColumn]
	return s, nil
}

// ContactIndex returns the position of a contact channel within Record.Contact.
func (s *Schema) ContactIndex(name string) (int, bool) {
	idx, ok := s.contactIdx[name]
	return idx, ok
}

// PassIndex returns the position of a pass-through column within Record.Pass.
func (s *Schema) PassIndex(name string) (int, bool) {
	idx, ok := s.passIndex[name]
	return idx, ok
}

// PassColumns returns the pass-through column names in file order.
func (s *Schema) PassColumns() []string {
	out := make([]string, len(s.passPos))
	for i, pos := range s.passPos {
		out[i] = s.Columns[pos]
	}
	return out
}

// HasColumn reports whether the schema carries the named column.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.colIndex[name]
	return ok
}
