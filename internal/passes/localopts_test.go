package passes

import (
	"testing"

	"github.com/oxidesoft/ssaopt/internal/ir"
)

func runLocalOpts(f *ir.Function) {
	m := ir.NewModule()
	m.AddFunction(f)
	NewManager(LocalOpts{}).Run(m, nil)
}

func TestLocalOptsAlgebraicIdentityAddZero(t *testing.T) {
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	add := ir.NewBinary(f, ir.OpAdd, f.Args[0], ir.NewConstInt(32, true, 0), ir.IntType(32, true))
	entry.Append(add)
	entry.Append(ir.NewRet(f, add))

	runLocalOpts(f)

	ret := entry.Terminator()
	if ret.Operands[0] != ir.Value(f.Args[0]) {
		t.Fatalf("expected x+0 to fold to x, ret operand is %v", ret.Operands[0])
	}
	for _, i := range entry.Instrs {
		if i == add {
			t.Fatal("expected the now-dead add to be eliminated")
		}
	}
}

func TestLocalOptsAlgebraicIdentityMulOne(t *testing.T) {
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	mul := ir.NewBinary(f, ir.OpMul, ir.NewConstInt(32, true, 1), f.Args[0], ir.IntType(32, true))
	entry.Append(mul)
	entry.Append(ir.NewRet(f, mul))

	runLocalOpts(f)

	ret := entry.Terminator()
	if ret.Operands[0] != ir.Value(f.Args[0]) {
		t.Fatalf("expected 1*x to fold to x, ret operand is %v", ret.Operands[0])
	}
}

func TestLocalOptsStrengthReductionPowerOfTwo(t *testing.T) {
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	mul := ir.NewBinary(f, ir.OpMul, f.Args[0], ir.NewConstInt(32, true, 8), ir.IntType(32, true))
	entry.Append(mul)
	entry.Append(ir.NewRet(f, mul))

	runLocalOpts(f)

	ret := entry.Terminator()
	shl, ok := ir.AsInstruction(ret.Operands[0])
	if !ok {
		t.Fatalf("expected ret operand to be an instruction, got %v", ret.Operands[0])
	}
	if shl.Op != ir.OpShl {
		t.Fatalf("expected x*8 to reduce to a shift, got opcode %v", shl.Op)
	}
	k, ok := ir.AsConstInt(shl.Operands[1])
	if !ok || !k.EqInt64(3) {
		t.Fatalf("expected shift amount 3, got %v", shl.Operands[1])
	}
}

func TestLocalOptsStrengthReductionNearPowerOfTwoMinusOne(t *testing.T) {
	// x*7 -> (x<<3)-x
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	mul := ir.NewBinary(f, ir.OpMul, f.Args[0], ir.NewConstInt(32, true, 7), ir.IntType(32, true))
	entry.Append(mul)
	entry.Append(ir.NewRet(f, mul))

	runLocalOpts(f)

	ret := entry.Terminator()
	sub, ok := ir.AsInstruction(ret.Operands[0])
	if !ok || sub.Op != ir.OpSub {
		t.Fatalf("expected x*7 to reduce to a sub of a shift, got %v", ret.Operands[0])
	}
	shl, ok := ir.AsInstruction(sub.Operands[0])
	if !ok || shl.Op != ir.OpShl {
		t.Fatalf("expected sub's left operand to be a shift, got %v", sub.Operands[0])
	}
	k, ok := ir.AsConstInt(shl.Operands[1])
	if !ok || !k.EqInt64(3) {
		t.Fatalf("expected shift amount 3, got %v", shl.Operands[1])
	}
	if sub.Operands[1] != ir.Value(f.Args[0]) {
		t.Fatalf("expected sub's right operand to be x, got %v", sub.Operands[1])
	}
}

func TestLocalOptsStrengthReductionNearPowerOfTwoPlusOne(t *testing.T) {
	// x*9 -> (x<<3)+x
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	mul := ir.NewBinary(f, ir.OpMul, f.Args[0], ir.NewConstInt(32, true, 9), ir.IntType(32, true))
	entry.Append(mul)
	entry.Append(ir.NewRet(f, mul))

	runLocalOpts(f)

	ret := entry.Terminator()
	add, ok := ir.AsInstruction(ret.Operands[0])
	if !ok || add.Op != ir.OpAdd {
		t.Fatalf("expected x*9 to reduce to an add of a shift, got %v", ret.Operands[0])
	}
	shl, ok := ir.AsInstruction(add.Operands[0])
	if !ok || shl.Op != ir.OpShl {
		t.Fatalf("expected add's left operand to be a shift, got %v", add.Operands[0])
	}
	k, ok := ir.AsConstInt(shl.Operands[1])
	if !ok || !k.EqInt64(3) {
		t.Fatalf("expected shift amount 3, got %v", shl.Operands[1])
	}
}

func TestLocalOptsStrengthReductionDivision(t *testing.T) {
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	sdiv := ir.NewBinary(f, ir.OpSDiv, f.Args[0], ir.NewConstInt(32, true, 4), ir.IntType(32, true))
	entry.Append(sdiv)
	entry.Append(ir.NewRet(f, sdiv))

	runLocalOpts(f)

	ret := entry.Terminator()
	ashr, ok := ir.AsInstruction(ret.Operands[0])
	if !ok || ashr.Op != ir.OpAShr {
		t.Fatalf("expected sdiv by 4 to reduce to an arithmetic shift, got %v", ret.Operands[0])
	}
	k, ok := ir.AsConstInt(ashr.Operands[1])
	if !ok || !k.EqInt64(2) {
		t.Fatalf("expected shift amount 2, got %v", ashr.Operands[1])
	}
}

func TestLocalOptsUnsignedDivisionUsesLogicalShift(t *testing.T) {
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, false)})
	entry := f.NewBlock("entry")
	udiv := ir.NewBinary(f, ir.OpUDiv, f.Args[0], ir.NewConstInt(32, false, 4), ir.IntType(32, false))
	entry.Append(udiv)
	entry.Append(ir.NewRet(f, udiv))

	runLocalOpts(f)

	ret := entry.Terminator()
	lshr, ok := ir.AsInstruction(ret.Operands[0])
	if !ok || lshr.Op != ir.OpLShr {
		t.Fatalf("expected udiv by 4 to reduce to a logical shift, got %v", ret.Operands[0])
	}
}

func TestLocalOptsPairCancellationAddThenSub(t *testing.T) {
	// %a = x + 5; %b = %a - 5 -> %b replaced by x.
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	a := ir.NewBinary(f, ir.OpAdd, f.Args[0], ir.NewConstInt(32, true, 5), ir.IntType(32, true))
	entry.Append(a)
	b := ir.NewBinary(f, ir.OpSub, a, ir.NewConstInt(32, true, 5), ir.IntType(32, true))
	entry.Append(b)
	entry.Append(ir.NewRet(f, b))

	runLocalOpts(f)

	ret := entry.Terminator()
	if ret.Operands[0] != ir.Value(f.Args[0]) {
		t.Fatalf("expected (x+5)-5 to fold to x, ret operand is %v", ret.Operands[0])
	}
	for _, i := range entry.Instrs {
		if i == a {
			t.Fatal("expected a to be erased once its only user (b) is erased")
		}
		if i == b {
			t.Fatal("expected the now-dead b to be erased")
		}
	}
}

func TestLocalOptsPairCancellationDoesNotApplyWhenConstMismatches(t *testing.T) {
	// %a = x + 5; %b = %a - 3 -> no cancellation, both survive.
	f := ir.NewFunction("f", []ir.Type{ir.IntType(32, true)})
	entry := f.NewBlock("entry")
	a := ir.NewBinary(f, ir.OpAdd, f.Args[0], ir.NewConstInt(32, true, 5), ir.IntType(32, true))
	entry.Append(a)
	b := ir.NewBinary(f, ir.OpSub, a, ir.NewConstInt(32, true, 3), ir.IntType(32, true))
	entry.Append(b)
	entry.Append(ir.NewRet(f, b))

	runLocalOpts(f)

	ret := entry.Terminator()
	if ret.Operands[0] != ir.Value(b) {
		t.Fatalf("expected mismatched constants to block cancellation, ret operand is %v", ret.Operands[0])
	}
}
