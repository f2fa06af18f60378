package ir

import "math/big"

// TripCount is a closed-form, finite trip-count expression: the loop's
// canonical IV starts at Start, steps by Step each iteration, and the
// exiting branch compares it against Bound. Two TripCounts are "identical"
// (spec §4.3.1 precondition 2) when Equal reports true.
type TripCount struct {
	Start *big.Int
	Step  *big.Int
	Bound Value // either a *ConstInt or an invariant Value shared by both loops
}

// Equal reports whether t and o describe the same number of iterations,
// computed from syntactically identical start/step/bound expressions.
// This is the conservative notion of "identical" scalar evolution a
// from-scratch oracle can offer without a full expression algebra.
func (t *TripCount) Equal(o *TripCount) bool {
	if t == nil || o == nil {
		return false
	}
	if t.Start.Cmp(o.Start) != 0 || t.Step.Cmp(o.Step) != 0 {
		return false
	}
	return sameValue(t.Bound, o.Bound)
}

func sameValue(a, b Value) bool {
	if a == b {
		return true
	}
	ca, aok := AsConstInt(a)
	cb, bok := AsConstInt(b)
	if aok && bok {
		return ca.Eq(cb)
	}
	return false
}

// ExitCount computes the trip count of the loop whose exiting branch is
// in exitingBlock, recognizing the canonical
// "icmp iv, bound; condbr" shape. Returns nil if the loop's exit
// condition isn't in a form this (deliberately narrow) oracle understands
// — per §7's AnalysisUnavailable semantics, the caller treats a nil
// result as "decline to transform".
func ExitCount(l *Loop, exitingBlock *BasicBlock) *TripCount {
	iv, step := l.CanonicalIV()
	if iv == nil {
		return nil
	}
	term := exitingBlock.Terminator()
	if term == nil || term.Op != OpCondBr {
		return nil
	}
	cmp, ok := term.Operands[0].(*Instruction)
	if !ok || cmp.Op != OpICmp {
		return nil
	}
	var bound Value
	if cmp.Operands[0] == Value(iv) {
		bound = cmp.Operands[1]
	} else if cmp.Operands[1] == Value(iv) {
		bound = cmp.Operands[0]
	} else {
		return nil
	}

	start := findPreheaderValue(iv, l)
	if start == nil {
		return nil
	}
	return &TripCount{Start: start.Val, Step: step.Val, Bound: bound}
}

func findPreheaderValue(iv *Instruction, l *Loop) *ConstInt {
	ph := l.Preheader()
	if ph == nil {
		return nil
	}
	for _, e := range iv.Incoming {
		if e.Pred == ph {
			c, _ := AsConstInt(e.Value)
			return c
		}
	}
	return nil
}
