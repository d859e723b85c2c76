package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/touchsync/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	})
	return st
}

func TestInsertRunRoundTrip(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	res := model.SessionResult{
		Session:          "2022-06-14_ST13-01",
		PrimaryPath:      "/in/2022-06-14-ST13-unit1.csv",
		ReferencePath:    "/ref/2022-06-14-ST13-unit1.csv",
		OutputPath:       "/out/2022-06-14_ST13-01_semicontrolled.csv",
		Status:           model.StatusDone,
		StartedAt:        start,
		EndedAt:          start.Add(2 * time.Second),
		BlockSetMismatch: true,
		Blocks: []model.BlockResult{
			{BlockID: "1", PrimaryRows: 5, ReferenceRows: 6, Low: -1, High: 1, Step: 1, Offset: -1, Score: 0.98},
			{BlockID: "2", PrimaryRows: 3, ReferenceRows: 3, Offset: 0, Score: math.Inf(-1), Degenerate: true},
			{BlockID: "3", PrimaryRows: 2, Skipped: true, SkipReason: "missing from reference"},
		},
	}

	id, err := st.InsertRun(ctx, res)
	if err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}

	runs, err := st.ListRuns(ctx, model.RunsConfig{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.RunID != id || run.Session != res.Session || run.Status != model.StatusDone {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.AlignedBlocks != 2 || run.SkippedBlocks != 1 {
		t.Fatalf("unexpected block counts: %+v", run)
	}
	if !run.StartedAt.Equal(start) || !run.EndedAt.Equal(res.EndedAt) {
		t.Fatalf("unexpected times: %+v", run)
	}

	blocks, err := st.ListBlocks(ctx, id)
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].BlockID != "1" || blocks[0].Offset != -1 || blocks[0].Score != 0.98 || blocks[0].Low != -1 {
		t.Fatalf("unexpected first block: %+v", blocks[0])
	}
	if !blocks[1].Degenerate || !math.IsInf(blocks[1].Score, -1) {
		t.Fatalf("degenerate score must round-trip as -Inf: %+v", blocks[1])
	}
	if !blocks[2].Skipped || blocks[2].SkipReason != "missing from reference" {
		t.Fatalf("unexpected skipped block: %+v", blocks[2])
	}
}

func TestListRunsNewestFirstAndFiltered(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	sessions := []string{"2022-06-14_ST13-01", "2022-06-14_ST13-02", "2022-06-14_ST13-01"}
	for i, session := range sessions {
		started := base.Add(time.Duration(i) * time.Minute)
		if i == 1 {
			// Fractional seconds must not break ordering.
			started = started.Add(500 * time.Millisecond)
		}
		_, err := st.InsertRun(ctx, model.SessionResult{
			RunID:     "run-" + string(rune('a'+i)),
			Session:   session,
			Status:    model.StatusSkippedExisting,
			StartedAt: started,
			EndedAt:   started,
		})
		if err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}

	runs, err := st.ListRuns(ctx, model.RunsConfig{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 || runs[0].RunID != "run-c" || runs[2].RunID != "run-a" {
		t.Fatalf("unexpected order: %+v", runs)
	}

	runs, err = st.ListRuns(ctx, model.RunsConfig{Session: "2022-06-14_ST13-01", Last: 1})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-c" {
		t.Fatalf("unexpected filtered runs: %+v", runs)
	}

	latest, ok, err := st.LatestRun(ctx, "2022-06-14_ST13-02")
	if err != nil || !ok || latest.RunID != "run-b" {
		t.Fatalf("unexpected latest run: %+v %v %v", latest, ok, err)
	}
	_, ok, err = st.LatestRun(ctx, "2023-01-01_ST01-01")
	if err != nil || ok {
		t.Fatalf("expected no run, got ok=%v err=%v", ok, err)
	}
}

func TestInsertRunDuplicateIDRollsBack(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	res := model.SessionResult{
		RunID:  "fixed",
		Status: model.StatusDone,
		Blocks: []model.BlockResult{{BlockID: "1"}},
	}
	if _, err := st.InsertRun(ctx, res); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	res.Blocks = append(res.Blocks, model.BlockResult{BlockID: "2"})
	if _, err := st.InsertRun(ctx, res); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	blocks, err := st.ListBlocks(ctx, "fixed")
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("failed insert must not leave blocks, got %d", len(blocks))
	}
}
