// Package generator builds stimulus sequences for the experiment controller.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/verte-zerg/touchsync/internal/model"
)

// Generator produces stimulus sequences.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a Generator with a fixed seed, for reproducible orders.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Plan is a stimulus sequence split into equally sized blocks.
type Plan struct {
	Stimuli   []model.Stimulus
	BlockSize int
}

// Blocks returns the number of blocks in the plan.
func (p Plan) Blocks() int {
	if p.BlockSize <= 0 {
		return 0
	}
	return len(p.Stimuli) / p.BlockSize
}

// BlockOf returns the 1-based block number of the 0-based stimulus index.
func (p Plan) BlockOf(stim int) int {
	return stim/p.BlockSize + 1
}

// Product lists every type, contact area, speed and force combination,
// varying force fastest and type slowest.
func Product(types, areas []string, speeds []float64, forces []string) []model.Stimulus {
	out := make([]model.Stimulus, 0, len(types)*len(areas)*len(speeds)*len(forces))
	for _, typ := range types {
		for _, area := range areas {
			for _, speed := range speeds {
				for _, force := range forces {
					out = append(out, model.Stimulus{
						Type:        typ,
						ContactArea: area,
						Speed:       speed,
						Force:       force,
					})
				}
			}
		}
	}
	return out
}

// Build returns the plan for cfg. One block covers every speed and force of
// a single type and contact area.
func Build(cfg model.ExperimentConfig) (Plan, error) {
	if len(cfg.Types) == 0 || len(cfg.ContactAreas) == 0 || len(cfg.Speeds) == 0 || len(cfg.Forces) == 0 {
		return Plan{}, fmt.Errorf("types, contact areas, speeds and forces must not be empty")
	}
	for _, speed := range cfg.Speeds {
		if speed <= 0 {
			return Plan{}, fmt.Errorf("speed must be > 0, got %g", speed)
		}
	}
	return Plan{
		Stimuli:   Product(cfg.Types, cfg.ContactAreas, cfg.Speeds, cfg.Forces),
		BlockSize: len(cfg.Speeds) * len(cfg.Forces),
	}, nil
}

// Shuffle permutes the block order and the stimuli inside every block.
// Blocks keep their contents, so block boundaries stay meaningful.
func (g *Generator) Shuffle(p Plan) Plan {
	n := p.Blocks()
	order := g.rnd.Perm(n)
	out := Plan{Stimuli: make([]model.Stimulus, 0, len(p.Stimuli)), BlockSize: p.BlockSize}
	for _, b := range order {
		block := append([]model.Stimulus(nil), p.Stimuli[b*p.BlockSize:(b+1)*p.BlockSize]...)
		g.rnd.Shuffle(len(block), func(i, j int) {
			block[i], block[j] = block[j], block[i]
		})
		out.Stimuli = append(out.Stimuli, block...)
	}
	return out
}
