package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNoInput reports a session without its input files.
	ErrNoInput = errors.New("input file not found")
	// ErrAmbiguousInput reports more than one candidate primary input file.
	ErrAmbiguousInput = errors.New("more than one input file")
)

// Inputs are the two files reconciled for one session.
type Inputs struct {
	Primary   string
	Reference string
}

// Resolve finds the single primary file whose name contains the unit name
// and the reference file with the same name.
func Resolve(primaryDir, referenceDir string, id ID) (Inputs, error) {
	entries, err := os.ReadDir(primaryDir)
	if err != nil {
		return Inputs{}, fmt.Errorf("read primary dir: %w", err)
	}
	unit := id.UnitName()
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() || !containsUnit(entry.Name(), unit) {
			continue
		}
		matches = append(matches, entry.Name())
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return Inputs{}, fmt.Errorf("%w: no file containing %q in %s", ErrNoInput, unit, primaryDir)
	case 1:
	default:
		return Inputs{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousInput, strings.Join(matches, ", "), primaryDir)
	}

	in := Inputs{
		Primary:   filepath.Join(primaryDir, matches[0]),
		Reference: filepath.Join(referenceDir, matches[0]),
	}
	info, err := os.Stat(in.Reference)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Inputs{}, fmt.Errorf("%w: reference %s", ErrNoInput, in.Reference)
		}
		return Inputs{}, err
	}
	if info.IsDir() {
		return Inputs{}, fmt.Errorf("%w: reference %s is a directory", ErrNoInput, in.Reference)
	}
	return in, nil
}

// containsUnit matches unit inside name unless more digits follow it, so
// unit1 does not pick up unit10.
func containsUnit(name, unit string) bool {
	for rest := name; ; {
		i := strings.Index(rest, unit)
		if i < 0 {
			return false
		}
		end := i + len(unit)
		if end == len(rest) || rest[end] < '0' || rest[end] > '9' {
			return true
		}
		rest = rest[i+1:]
	}
}
