package passes

import (
	"fmt"

	"github.com/oxidesoft/ssaopt/internal/ir"
)

// LocalOpts is the peephole optimizer of spec §4.1: for every basic block,
// classify each binary instruction by opcode and attempt a prioritized
// sequence of rewrites, then sweep the block for dead code.
type LocalOpts struct{}

func (LocalOpts) Name() string { return "LocalOpts" }

func (LocalOpts) Run(m *ir.Module, tr *Trace) PreservedAnalyses {
	changed := false
	for _, f := range m.Functions {
		for _, b := range f.Blocks {
			if runLocalOptsOnBlock(f, b, tr) {
				changed = true
			}
		}
	}
	if changed {
		return None
	}
	return All
}

// runLocalOptsOnBlock applies the peephole rewrite table over a snapshot
// of the block's original instructions — per §9, newly created
// instructions must never be revisited within the same sweep — and then
// runs the DCE sweep.
func runLocalOptsOnBlock(f *ir.Function, b *ir.BasicBlock, tr *Trace) bool {
	original := append([]*ir.Instruction{}, b.Instrs...)
	changed := false
	for _, i := range original {
		if dispatchRewrite(f, i, tr) {
			changed = true
		}
	}
	if blockDCE(f, b, tr) {
		changed = true
	}
	return changed
}

// dispatchRewrite implements the opcode dispatch table of §4.1: the first
// rewrite in the priority list whose precondition matches is the only one
// applied to that instruction.
func dispatchRewrite(f *ir.Function, i *ir.Instruction, tr *Trace) bool {
	switch i.Op {
	case ir.OpAdd:
		if algebraicIdentity(i, tr) {
			return true
		}
		return pairCancellation(i, tr)
	case ir.OpSub:
		return pairCancellation(i, tr)
	case ir.OpMul:
		if algebraicIdentity(i, tr) {
			return true
		}
		return strengthReductionMul(f, i, tr)
	case ir.OpSDiv, ir.OpUDiv:
		return strengthReductionDiv(f, i, tr)
	default:
		return false
	}
}

// algebraicIdentity implements §4.1.1: x+0 -> x, x*1 -> x, in either
// operand order (right operand checked first, matching the tie-break rule
// spelled out for StrengthReduction).
func algebraicIdentity(i *ir.Instruction, tr *Trace) bool {
	var identity int64
	switch i.Op {
	case ir.OpAdd:
		identity = 0
	case ir.OpMul:
		identity = 1
	default:
		return false
	}
	lhs, rhs := i.Operands[0], i.Operands[1]
	if c, ok := ir.AsConstInt(rhs); ok && c.EqInt64(identity) {
		ir.ReplaceAllUsesWith(i, lhs)
		record(tr, "AlgebraicIdentity", i, true, fmt.Sprintf("%s -> %s", i, lhs))
		return true
	}
	if c, ok := ir.AsConstInt(lhs); ok && c.EqInt64(identity) {
		ir.ReplaceAllUsesWith(i, rhs)
		record(tr, "AlgebraicIdentity", i, true, fmt.Sprintf("%s -> %s", i, rhs))
		return true
	}
	return false
}

// strengthReductionMul implements §4.1.2's multiplication cases.
func strengthReductionMul(f *ir.Function, i *ir.Instruction, tr *Trace) bool {
	lhs, rhs := i.Operands[0], i.Operands[1]
	if c, ok := ir.AsConstInt(rhs); ok && c.Val.Sign() >= 0 {
		if applyMulStrengthReduction(f, i, lhs, c, tr) {
			return true
		}
	}
	if c, ok := ir.AsConstInt(lhs); ok && c.Val.Sign() >= 0 {
		if applyMulStrengthReduction(f, i, rhs, c, tr) {
			return true
		}
	}
	record(tr, "StrengthReduction", i, false, "no power-of-two or near-power-of-two constant operand")
	return false
}

func applyMulStrengthReduction(f *ir.Function, i *ir.Instruction, x ir.Value, c *ir.ConstInt, tr *Trace) bool {
	typ := i.Typ
	if c.IsPowerOfTwo() {
		k := c.ExactLog2()
		if k >= typ.Width {
			return false
		}
		shl := ir.NewBinary(f, ir.OpShl, x, ir.NewConstInt(typ.Width, typ.Signed, int64(k)), typ)
		ir.InsertAfter(i, shl)
		ir.ReplaceAllUsesWith(i, shl)
		record(tr, "StrengthReduction", i, true, fmt.Sprintf("%s*%s -> %s", x, c, shl))
		return true
	}
	if !c.GTInt64(2) {
		return false
	}
	// x*(2^k+1) -> (x<<k)+x
	if cMinus1 := c.SubConst(ir.NewConstInt(typ.Width, typ.Signed, 1)); cMinus1.IsPowerOfTwo() {
		k := cMinus1.ExactLog2()
		if k >= typ.Width {
			return false
		}
		shl := ir.NewBinary(f, ir.OpShl, x, ir.NewConstInt(typ.Width, typ.Signed, int64(k)), typ)
		ir.InsertAfter(i, shl)
		adj := ir.NewBinary(f, ir.OpAdd, shl, x, typ)
		ir.InsertAfter(shl, adj)
		ir.ReplaceAllUsesWith(i, adj)
		record(tr, "StrengthReduction", i, true, fmt.Sprintf("%s*%s -> (%s<<%d)+%s", x, c, x, k, x))
		return true
	}
	// x*(2^k-1) -> (x<<k)-x
	if cPlus1 := c.AddConst(ir.NewConstInt(typ.Width, typ.Signed, 1)); cPlus1.IsPowerOfTwo() {
		k := cPlus1.ExactLog2()
		if k >= typ.Width {
			return false
		}
		shl := ir.NewBinary(f, ir.OpShl, x, ir.NewConstInt(typ.Width, typ.Signed, int64(k)), typ)
		ir.InsertAfter(i, shl)
		adj := ir.NewBinary(f, ir.OpSub, shl, x, typ)
		ir.InsertAfter(shl, adj)
		ir.ReplaceAllUsesWith(i, adj)
		record(tr, "StrengthReduction", i, true, fmt.Sprintf("%s*%s -> (%s<<%d)-%s", x, c, x, k, x))
		return true
	}
	return false
}

// strengthReductionDiv implements §4.1.2's division case: SDiv by 2^k
// lowers to an arithmetic shift, UDiv to a logical shift (§9's resolution
// of the signedness open question).
func strengthReductionDiv(f *ir.Function, i *ir.Instruction, tr *Trace) bool {
	rhs := i.Operands[1]
	c, ok := ir.AsConstInt(rhs)
	if !ok || !c.IsPowerOfTwo() {
		record(tr, "StrengthReduction", i, false, "divisor is not a power of two")
		return false
	}
	typ := i.Typ
	k := c.ExactLog2()
	if k >= typ.Width {
		return false
	}
	op := ir.OpLShr
	if i.Op == ir.OpSDiv {
		op = ir.OpAShr
	}
	shr := ir.NewBinary(f, op, i.Operands[0], ir.NewConstInt(typ.Width, typ.Signed, int64(k)), typ)
	ir.InsertAfter(i, shr)
	ir.ReplaceAllUsesWith(i, shr)
	record(tr, "StrengthReduction", i, true, fmt.Sprintf("%s -> %s", i, shr))
	return true
}

// pairCancellation implements §4.1.3: i = x (+|-) C, and for every user u
// of i with u = i (-|+) C (opposite operation, i strictly on u's left
// operand), replace u's uses with x.
func pairCancellation(i *ir.Instruction, tr *Trace) bool {
	var x ir.Value
	var c *ir.ConstInt
	switch i.Op {
	case ir.OpAdd:
		if cc, ok := ir.AsConstInt(i.Operands[1]); ok {
			x, c = i.Operands[0], cc
		} else if cc, ok := ir.AsConstInt(i.Operands[0]); ok {
			x, c = i.Operands[1], cc
		} else {
			return false
		}
	case ir.OpSub:
		cc, ok := ir.AsConstInt(i.Operands[1])
		if !ok {
			return false
		}
		x, c = i.Operands[0], cc
	default:
		return false
	}

	opposite := ir.OpSub
	if i.Op == ir.OpSub {
		opposite = ir.OpAdd
	}

	applied := false
	for _, u := range append([]*ir.Instruction{}, i.Users()...) {
		if u.Op != opposite {
			continue
		}
		// u = C - i is excluded: i must be the left operand.
		if len(u.Operands) != 2 || u.Operands[0] != ir.Value(i) {
			continue
		}
		c2, ok := ir.AsConstInt(u.Operands[1])
		if !ok || !c2.Eq(c) {
			continue
		}
		ir.ReplaceAllUsesWith(u, x)
		record(tr, "PairCancellation", u, true, fmt.Sprintf("%s -> %s", u, x))
		applied = true
	}
	return applied
}

// blockDCE implements §4.1.4: erase binary instructions (including the
// shift/adjust instructions LocalOpts itself may have introduced) with an
// empty use-list. Traversal runs last-to-first: SSA guarantees a def
// precedes its in-block users, so erasing a dead instruction can only
// expose instructions earlier in the block as newly dead, never later
// ones. A single reverse pass therefore catches cascades (erasing c
// empties a's use-list, and the walk reaches a right after) without
// needing a fixed-point loop.
func blockDCE(f *ir.Function, b *ir.BasicBlock, tr *Trace) bool {
	changed := false
	for cur := len(b.Instrs) - 1; cur >= 0; cur-- {
		inst := b.Instrs[cur]
		if isDCECandidate(inst.Op) && len(inst.Users()) == 0 {
			record(tr, "DCE", inst, true, "erased, no remaining uses")
			ir.EraseFromParent(inst)
			changed = true
		}
	}
	return changed
}

func isDCECandidate(op ir.Opcode) bool {
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv,
		ir.OpShl, ir.OpAShr, ir.OpLShr, ir.OpICmp, ir.OpSelect, ir.OpCast:
		return true
	default:
		return false
	}
}

func record(tr *Trace, rewrite string, target *ir.Instruction, applied bool, detail string) {
	if tr == nil {
		return
	}
	fn, targetStr := "", ""
	if target != nil {
		targetStr = target.String()
		if target.Parent != nil && target.Parent.Parent != nil {
			fn = target.Parent.Parent.Name
		}
	}
	tr.Record(rewrite, fn, targetStr, applied, detail)
}
