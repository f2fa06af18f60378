package passes

import (
	"fmt"

	"github.com/oxidesoft/ssaopt/internal/ir"
)

// LICM implements spec §4.2: for every loop in simplified form, classify
// loop-body instructions as invariant and hoist the ones that are safe to
// hoist into the pre-header, immediately before its terminator.
type LICM struct{}

func (LICM) Name() string { return "LICM" }

func (LICM) Run(m *ir.Module, tr *Trace) PreservedAnalyses {
	changed := false
	for _, f := range m.Functions {
		dom := ir.BuildDomTree(f)
		forest := ir.BuildLoopForest(f, dom)
		var loops []*ir.Loop
		collectLoops(forest.TopLevel, &loops)
		for _, l := range loops {
			if runLICMOnLoop(f, l, tr) {
				changed = true
			}
		}
	}
	if changed {
		return None
	}
	return All
}

func collectLoops(top []*ir.Loop, out *[]*ir.Loop) {
	for _, l := range top {
		*out = append(*out, l)
		collectLoops(l.Children, out)
	}
}

func runLICMOnLoop(f *ir.Function, l *ir.Loop, tr *Trace) bool {
	if !l.IsSimplifiedForm() {
		record(tr, "LICM", nil, false, fmt.Sprintf("loop %s: not in simplified form", l.Header.Name))
		return false
	}

	invariant := classifyInvariants(l)
	if len(invariant) == 0 {
		return false
	}

	preheader := l.Preheader()
	exitBlocks := map[*ir.BasicBlock]bool{}
	if xb := l.ExitBlock(); xb != nil {
		exitBlocks[xb] = true
	}

	// Walk the loop body in dominance order so hoisted instructions are
	// re-inserted in a dependency-preserving order (§4.2.3).
	var toHoist []*ir.Instruction
	for _, b := range l.BodyInDominanceOrder() {
		if b == l.Header {
			continue
		}
		for _, inst := range b.Instrs {
			if !invariant[inst] {
				continue
			}
			if isHoistable(inst, l, dominatesAllExits(inst, l, exitBlocks)) {
				toHoist = append(toHoist, inst)
			}
		}
	}
	if len(toHoist) == 0 {
		return false
	}

	term := preheader.Terminator()
	for _, inst := range toHoist {
		ir.RemoveFromParent(inst)
		ir.InsertBefore(term, inst)
		record(tr, "LICM-Hoist", inst, true, fmt.Sprintf("hoisted %s into %s", inst, preheader.Name))
	}
	return true
}

// classifyInvariants implements §4.2.1's monotone fixed-point: base
// invariants are constants, arguments, and defs outside the loop; the set
// then expands to instructions whose operands are all invariant. A single
// dominance-ordered walk suffices because SSA guarantees each def
// precedes its non-phi uses within the defining block.
func classifyInvariants(l *ir.Loop) map[*ir.Instruction]bool {
	invariant := map[*ir.Instruction]bool{}
	var isInvariantValue func(v ir.Value) bool
	isInvariantValue = func(v ir.Value) bool {
		switch vv := v.(type) {
		case *ir.ConstInt, *ir.Argument:
			return true
		case *ir.Instruction:
			if !l.Contains(vv.Parent) {
				return true
			}
			return invariant[vv]
		default:
			return false
		}
	}

	for _, b := range l.BodyInDominanceOrder() {
		if b == l.Header {
			continue
		}
		for _, inst := range b.Instrs {
			if inst.Op == ir.OpPhi || inst.Op.IsTerminator() {
				continue // phis are never invariant, per §4.2.1
			}
			if inst.HasSideEffects() {
				continue
			}
			allInvariant := true
			for _, o := range inst.Operands {
				if !isInvariantValue(o) {
					allInvariant = false
					break
				}
			}
			if allInvariant {
				invariant[inst] = true
			}
		}
	}
	return invariant
}

// dominatesAllExits reports whether inst's defining block dominates every
// loop-exit block, the first hoisting-safety condition of §4.2.2.
func dominatesAllExits(inst *ir.Instruction, l *ir.Loop, exitBlocks map[*ir.BasicBlock]bool) bool {
	if len(exitBlocks) == 0 {
		return false
	}
	for xb := range exitBlocks {
		if !l.DomTreeDominates(inst.Parent, xb) {
			return false
		}
	}
	return true
}

// isHoistable implements §4.2.2: an invariant instruction is hoistable if
// it dominates every exit, or if it has no uses outside the loop (the
// "dead outside the loop" shortcut — safe because after hoisting, all of
// its in-loop uses are trivially dominated by the pre-header).
func isHoistable(inst *ir.Instruction, l *ir.Loop, dominatesExits bool) bool {
	if inst.HasSideEffects() {
		return false
	}
	if dominatesExits {
		return true
	}
	for _, u := range inst.Users() {
		if !l.Contains(u.Parent) {
			return false
		}
	}
	return true
}
