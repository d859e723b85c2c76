// Package session resolves session inputs and runs reconciliation per session.
package session

import (
	"fmt"
	"regexp"
	"strconv"
)

var idPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(ST\d+)-(\d+)$`)

// ID is a parsed session identifier such as 2022-06-14_ST13-01.
type ID struct {
	Raw         string
	Date        string
	Participant string
	Index       int
}

// Parse validates a session identifier.
func Parse(raw string) (ID, error) {
	m := idPattern.FindStringSubmatch(raw)
	if m == nil {
		return ID{}, fmt.Errorf("invalid session id %q: want YYYY-MM-DD_STnn-kk", raw)
	}
	idx, err := strconv.Atoi(m[3])
	if err != nil {
		return ID{}, fmt.Errorf("invalid session index in %q: %w", raw, err)
	}
	return ID{Raw: raw, Date: m[1], Participant: m[2], Index: idx}, nil
}

// UnitName is the token that names the session's primary input file,
// for example 2022-06-14-ST13-unit1.
func (id ID) UnitName() string {
	return fmt.Sprintf("%s-%s-unit%d", id.Date, id.Participant, id.Index)
}

// OutputName is the file name of the corrected dataset.
func (id ID) OutputName(suffix string) string {
	return id.Raw + suffix
}

func (id ID) String() string {
	return id.Raw
}
