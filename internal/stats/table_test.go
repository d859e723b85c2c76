package stats

import (
	"bytes"
	"testing"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Block", "Offset", "Score"}
	rows := [][]string{
		{"1", "-3", "0.981"},
		{"stroke-12", "0", "1.000"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Block     Offset Score" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "1             -3 0.981" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "stroke-12      0 1.000" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"Name", "N"}, [][]string{{"触覚", "1"}, {"ab", "22"}}, map[int]bool{1: true})
	if lines[1] != "触覚  1" {
		t.Fatalf("unexpected wide row: %q", lines[1])
	}
	if lines[2] != "ab   22" {
		t.Fatalf("unexpected row: %q", lines[2])
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderTable(&buf, []string{"A", "B"}, [][]string{{"x", "y"}}, nil); err != nil {
		t.Fatalf("RenderTable failed: %v", err)
	}
	if buf.String() != "A B\nx y\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
