package session

import (
	"os"
	"path/filepath"

	"github.com/verte-zerg/touchsync/internal/model"
)

// Probe tells whether a session's inputs resolve and whether its output exists.
type Probe struct {
	Session      string
	Inputs       Inputs
	OutputPath   string
	OutputExists bool
	Err          error
}

// ProbeSession resolves a session without loading or writing anything.
func ProbeSession(cfg model.ReconcileConfig, raw string) Probe {
	p := Probe{Session: raw}
	id, err := Parse(raw)
	if err != nil {
		p.Err = err
		return p
	}
	p.OutputPath = filepath.Join(cfg.OutputDir, id.OutputName(cfg.OutputSuffix))
	if _, err := os.Stat(p.OutputPath); err == nil {
		p.OutputExists = true
	}
	p.Inputs, p.Err = Resolve(cfg.PrimaryDir, cfg.ReferenceDir, id)
	return p
}
