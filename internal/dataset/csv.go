package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadOptions selects the schema applied to a table.
type LoadOptions struct {
	BlockColumn string
	Contact     []string
	// Drop lists columns removed before the schema is built. Absent names are ignored.
	Drop []string
}

// Load reads a CSV file.
func Load(path string, opts LoadOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only input.
			_ = cerr
		}
	}()
	ds, err := Read(bufio.NewReader(file), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Read parses CSV content with a header row.
func Read(r io.Reader, opts LoadOptions) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("table is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	keep, kept, err := dropColumns(header, opts)
	if err != nil {
		return nil, err
	}
	schema, err := NewSchema(kept, opts.BlockColumn, opts.Contact)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Schema: schema}
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row+1, err)
		}
		rec, err := parseRecord(schema, keep, fields, row)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func dropColumns(header []string, opts LoadOptions) ([]int, []string, error) {
	protected := map[string]struct{}{opts.BlockColumn: {}}
	for _, name := range opts.Contact {
		protected[name] = struct{}{}
	}
	drop := make(map[string]struct{}, len(opts.Drop))
	for _, name := range opts.Drop {
		if _, ok := protected[name]; ok {
			return nil, nil, fmt.Errorf("column %q is both dropped and required", name)
		}
		drop[name] = struct{}{}
	}
	keep := make([]int, 0, len(header))
	kept := make([]string, 0, len(header))
	for i, name := range header {
		if _, ok := drop[name]; ok {
			continue
		}
		keep = append(keep, i)
		kept = append(kept, name)
	}
	return keep, kept, nil
}

func parseRecord(schema *Schema, keep []int, fields []string, row int) (Record, error) {
	rec := Record{
		Index:   row,
		Contact: make([]float64, len(schema.contactPos)),
		Pass:    make([]string, len(schema.passPos)),
	}
	for i, pos := range schema.contactPos {
		raw := fields[keep[pos]]
		v, err := parseValue(raw)
		if err != nil {
			return Record{}, fmt.Errorf("row %d column %q: %w", row+1, schema.Contact[i], err)
		}
		rec.Contact[i] = v
	}
	for i, pos := range schema.passPos {
		rec.Pass[i] = fields[keep[pos]]
	}
	rec.BlockID = rec.Pass[schema.blockPass]
	return rec, nil
}

func parseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return v, nil
}

// FormatValue renders a contact value the way Write does. NaN becomes an empty cell.
func FormatValue(v float64) string {
	if isMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write encodes a dataset as CSV with its schema's column order.
func Write(w io.Writer, d *Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.Schema.Columns); err != nil {
		return err
	}
	row := make([]string, len(d.Schema.Columns))
	for _, rec := range d.Records {
		for i, pos := range d.Schema.contactPos {
			row[pos] = FormatValue(rec.Contact[i])
		}
		for i, pos := range d.Schema.passPos {
			row[pos] = rec.Pass[i]
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Save writes a dataset to path through a temporary file and rename.
func Save(path string, d *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".touchsync-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp output: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	if err := Write(writer, d); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
