package sessionlist

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadSkipsBlanksAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.txt")
	body := "# ST13\n2022-06-14_ST13-01\n\n  2022-06-14_ST13-02  \n# ST14\n2022-06-15_ST14-01\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ids, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"2022-06-14_ST13-01", "2022-06-14_ST13-02", "2022-06-15_ST14-01"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestLoadRejectsInvalidAndEmpty(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("2022-06-14_ST13-01\nST13-02\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), ":2:") {
		t.Fatalf("expected line-numbered error, got %v", err)
	}
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("# nothing\n\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(empty); err == nil {
		t.Fatalf("expected error for empty list")
	}
	if _, err := Load(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMergeDedupes(t *testing.T) {
	got := Merge([]string{"a", "b"}, []string{"b", " ", "c", "a"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected merge: %v", got)
	}
}

func TestFilterForParticipant(t *testing.T) {
	ids := []string{"2022-06-14_ST13-01", "2022-06-15_ST14-01", "junk", "2022-06-14_ST13-03"}
	got := Apply(ids, FilterForParticipant("st13"))
	if !reflect.DeepEqual(got, []string{"2022-06-14_ST13-01", "2022-06-14_ST13-03"}) {
		t.Fatalf("unexpected filter result: %v", got)
	}
	all := Apply(ids, FilterForParticipant(""))
	if len(all) != 3 {
		t.Fatalf("expected every valid id, got %v", all)
	}
}
