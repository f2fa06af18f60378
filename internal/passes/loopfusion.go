package passes

import (
	"fmt"
	"sort"

	"github.com/oxidesoft/ssaopt/internal/ir"
)

// LoopFusion implements spec §4.3: pairwise-merge adjacent, control-flow
// equivalent, same-trip-count top-level sibling loops with no
// negative-distance dependence between their bodies.
type LoopFusion struct{}

func (LoopFusion) Name() string { return "LoopFusion" }

func (LoopFusion) Run(m *ir.Module, tr *Trace) PreservedAnalyses {
	changed := false
	for _, f := range m.Functions {
		if runLoopFusionOnFunction(f, tr) {
			changed = true
		}
	}
	if changed {
		return None
	}
	return All
}

// runLoopFusionOnFunction repeatedly re-derives dominance/loop analyses
// and scans for one fusable pair at a time: per §5, an analysis snapshot
// must never be held across the mutation it would be invalidated by, and
// fusion changes block structure enough that reusing the old forest for a
// second pair in the same round would be unsound.
func runLoopFusionOnFunction(f *ir.Function, tr *Trace) bool {
	changed := false
	for {
		dom := ir.BuildDomTree(f)
		pdom := ir.BuildPostDomTree(f)
		forest := ir.BuildLoopForest(f, dom)
		tops := orderedTopLevel(forest.TopLevel, f)
		if len(tops) < 2 {
			return changed
		}

		fused := false
		var leading *ir.Loop
		for _, cand := range tops {
			if leading == nil {
				leading = cand
				continue
			}
			if !loopEligible(leading) || !loopEligible(cand) {
				record(tr, "LoopFusion", nil, false, fmt.Sprintf("%s/%s: not eligible for fusion", leading.Header.Name, cand.Header.Name))
				leading = cand
				continue
			}
			if fusable(leading, cand, dom, pdom, tr) {
				fuseLoops(f, leading, cand, tr)
				changed = true
				fused = true
				break
			}
			leading = cand
		}
		if !fused {
			return changed
		}
	}
}

// orderedTopLevel returns the top-level loops in the source order their
// headers appear in f.Blocks.
func orderedTopLevel(loops []*ir.Loop, f *ir.Function) []*ir.Loop {
	index := map[*ir.BasicBlock]int{}
	for i, b := range f.Blocks {
		index[b] = i
	}
	out := append([]*ir.Loop{}, loops...)
	sort.Slice(out, func(i, j int) bool {
		return index[out[i].Header] < index[out[j].Header]
	})
	return out
}

// loopEligible implements the fusion candidate precondition of §4.3 step
// 1: missing pre-header, latch, dedicated exit, or a header/latch that
// coincide (the degenerate single-block loop this façade's body-entry
// convention can't express) makes the loop ineligible.
func loopEligible(l *ir.Loop) bool {
	if !l.IsSimplifiedForm() {
		return false
	}
	if l.Header == l.Latch {
		return false
	}
	return loopBodyEntry(l.Header, l) != nil
}

// loopBodyEntry returns the successor of header that lies inside the loop
// and isn't the header itself — the "B1x"/"B2x" body-entry block §4.3.2
// splices adjacent loops around.
func loopBodyEntry(header *ir.BasicBlock, l *ir.Loop) *ir.BasicBlock {
	for _, s := range header.Succs {
		if s != header && l.Contains(s) {
			return s
		}
	}
	return nil
}

// fusable checks the four preconditions of §4.3.1.
func fusable(l1, l2 *ir.Loop, dom *ir.DomTree, pdom *ir.PostDomTree, tr *Trace) bool {
	if !adjacent(l1, l2) {
		record(tr, "LoopFusion", nil, false, "loops are not adjacent")
		return false
	}
	tc1 := ir.ExitCount(l1, l1.ExitingBlock())
	tc2 := ir.ExitCount(l2, l2.ExitingBlock())
	if tc1 == nil || tc2 == nil || !tc1.Equal(tc2) {
		record(tr, "LoopFusion", nil, false, "trip counts not provably identical")
		return false
	}
	e1, e2 := l1.EntryBlock(), l2.EntryBlock()
	if !dom.Dominates(e1, e2) || !pdom.Dominates(e2, e1) {
		record(tr, "LoopFusion", nil, false, "loops are not control-flow equivalent")
		return false
	}
	if !ir.NoNegativeDistance(blockInstrs(l1.Blocks), blockInstrs(l2.Blocks)) {
		record(tr, "LoopFusion", nil, false, "possible negative-distance dependence")
		return false
	}
	return true
}

// adjacent implements §4.3.1 precondition 1.
func adjacent(l1, l2 *ir.Loop) bool {
	entry2 := l2.EntryBlock()
	if g := l1.Guard(); g != nil {
		ph := l1.Preheader()
		for _, s := range g.Succs {
			if s == ph {
				continue
			}
			if s == entry2 {
				return true
			}
		}
		return false
	}
	return l1.ExitBlock() == entry2
}

func blockInstrs(blocks map[*ir.BasicBlock]bool) []*ir.Instruction {
	var out []*ir.Instruction
	for b := range blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

// fuseLoops performs the §4.3.2 rewrite: l1 keeps its header and latch,
// l2's body is spliced in between l1's body and l1's latch, and l2's
// header/latch are left detached for the unreachable-block cleanup.
func fuseLoops(f *ir.Function, l1, l2 *ir.Loop, tr *Trace) {
	h1, lt1 := l1.Header, l1.Latch
	h2, lt2 := l2.Header, l2.Latch
	x2 := l2.ExitBlock()
	e2 := l2.EntryBlock()
	b2x := loopBodyEntry(h2, l2)

	// Step 1: induction variable unification. MemRef.IV is a side-channel
	// reference the use-def graph doesn't track, so it needs its own
	// rewrite pass before iv2 is erased.
	iv1, _ := l1.CanonicalIV()
	iv2, _ := l2.CanonicalIV()
	if iv2 != nil {
		if iv1 != nil {
			ir.ReplaceAllUsesWith(iv2, iv1)
			for _, inst := range blockInstrs(l2.Blocks) {
				if inst.Mem != nil && inst.Mem.IV == iv2 {
					inst.Mem.IV = iv1
				}
			}
		}
		ir.EraseFromParent(iv2)
	}

	// Step 2: header re-target — l1's exit edge now skips straight past l2.
	ir.ReplaceSuccessor(h1.Terminator(), e2, x2)

	// Step 3: merge bodies — l1's back-edges now enter l2's body.
	for _, p := range append([]*ir.BasicBlock{}, lt1.Preds...) {
		ir.ReplaceSuccessor(p.Terminator(), lt1, b2x)
	}

	// Step 4: close the iteration — l2's back-edges now target l1's latch.
	for _, p := range append([]*ir.BasicBlock{}, lt2.Preds...) {
		ir.ReplaceSuccessor(p.Terminator(), lt2, lt1)
	}

	// Step 5: detach h2 — its old body edge now bypasses straight to lt2.
	ir.ReplaceSuccessor(h2.Terminator(), b2x, lt2)

	// Steps 6-7: re-parent l2's surviving blocks into l1, dispose l2.
	for b := range l2.Blocks {
		if b == h2 || b == lt2 {
			continue
		}
		l1.Blocks[b] = true
	}

	// Step 8: drop h2, lt2 and anything else now unreachable.
	ir.EliminateUnreachableBlocks(f)

	record(tr, "LoopFusion", nil, true, fmt.Sprintf("fused loop at %s into loop at %s", h2.Name, h1.Name))
}
