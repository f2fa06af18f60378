// Package passes implements the three CORE optimization passes —
// LocalOpts, LICM and LoopFusion — plus the pass manager that drives them
// over a module and the structured trace used to observe their decisions.
package passes

import "github.com/oxidesoft/ssaopt/internal/ir"

// PreservedAnalyses is the two-valued token every pass returns, per §6:
// All means the pass made no change (every analysis is still valid), None
// means it changed the IR and the driver must invalidate dominance/loop
// analyses before running anything else over that function.
type PreservedAnalyses int

const (
	All PreservedAnalyses = iota
	None
)

// Pass is anything the manager can run over a module.
type Pass interface {
	Name() string
	Run(m *ir.Module, tr *Trace) PreservedAnalyses
}

// Manager runs a fixed sequence of passes over every function of a
// module. Per §5, passes never communicate directly; the manager is the
// only place invalidation/ordering decisions live.
type Manager struct {
	Passes []Pass
}

func NewManager(p ...Pass) *Manager {
	return &Manager{Passes: p}
}

// Run executes every pass in order over m, returning whether any pass
// reported a change.
func (mgr *Manager) Run(m *ir.Module, tr *Trace) bool {
	changed := false
	for _, p := range mgr.Passes {
		if tr != nil {
			tr.BeginPass(p.Name())
		}
		if p.Run(m, tr) == None {
			changed = true
		}
	}
	return changed
}
