package generator

import (
	"reflect"
	"sort"
	"testing"

	"github.com/verte-zerg/touchsync/internal/model"
)

func testConfig() model.ExperimentConfig {
	return model.ExperimentConfig{
		Types:        []string{"tap", "stroke"},
		ContactAreas: []string{"one finger tip", "whole hand", "two finger pads"},
		Speeds:       []float64{3, 6},
		Forces:       []string{"light", "strong"},
	}
}

func TestBuildOrderAndBlocks(t *testing.T) {
	plan, err := Build(testConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(plan.Stimuli) != 24 || plan.BlockSize != 4 || plan.Blocks() != 6 {
		t.Fatalf("unexpected plan size: %d stimuli, block size %d", len(plan.Stimuli), plan.BlockSize)
	}
	first := model.Stimulus{Type: "tap", ContactArea: "one finger tip", Speed: 3, Force: "light"}
	second := model.Stimulus{Type: "tap", ContactArea: "one finger tip", Speed: 3, Force: "strong"}
	last := model.Stimulus{Type: "stroke", ContactArea: "two finger pads", Speed: 6, Force: "strong"}
	if plan.Stimuli[0] != first || plan.Stimuli[1] != second || plan.Stimuli[23] != last {
		t.Fatalf("unexpected order: %+v", plan.Stimuli)
	}
	if plan.BlockOf(0) != 1 || plan.BlockOf(3) != 1 || plan.BlockOf(4) != 2 || plan.BlockOf(23) != 6 {
		t.Fatalf("unexpected block numbering")
	}
}

func TestBuildRejectsEmptyAxes(t *testing.T) {
	cfg := testConfig()
	cfg.Forces = nil
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for empty forces")
	}
	cfg = testConfig()
	cfg.Speeds = []float64{3, 0}
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for zero speed")
	}
}

func TestShuffleIsSeededAndKeepsBlocks(t *testing.T) {
	plan, _ := Build(testConfig())
	a := NewSeeded(42).Shuffle(plan)
	b := NewSeeded(42).Shuffle(plan)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed must give the same order")
	}
	if len(a.Stimuli) != len(plan.Stimuli) {
		t.Fatalf("shuffle changed the plan size")
	}
	for blk := 0; blk < a.Blocks(); blk++ {
		block := a.Stimuli[blk*a.BlockSize : (blk+1)*a.BlockSize]
		for _, s := range block {
			if s.Type != block[0].Type || s.ContactArea != block[0].ContactArea {
				t.Fatalf("block %d mixes conditions: %+v", blk+1, block)
			}
		}
	}
	key := func(s model.Stimulus) string {
		return s.Type + "|" + s.ContactArea + "|" + s.Force + "|" + string(rune('0'+int(s.Speed)))
	}
	var want, got []string
	for i := range plan.Stimuli {
		want = append(want, key(plan.Stimuli[i]))
		got = append(got, key(a.Stimuli[i]))
	}
	sort.Strings(want)
	sort.Strings(got)
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("shuffle must be a permutation")
	}
}
