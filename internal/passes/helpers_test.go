package passes

import "github.com/oxidesoft/ssaopt/internal/ir"

// buildCountingLoop builds a single canonical counting loop:
//
//	pre:    br header
//	header: %iv = phi [0, pre], [%next, latch]
//	        %cmp = icmp %iv, bound
//	        condbr %cmp, body, exit
//	body:   (caller-supplied via bodyFn, appended before the closing br)
//	        br latch
//	latch:  %next = add %iv, 1
//	        br header
//	exit:   (terminator supplied by the caller, via exitFn)
func buildCountingLoop(f *ir.Function, prefix string, bound int64, bodyFn func(body *ir.BasicBlock, iv *ir.Instruction), exitFn func(exit *ir.BasicBlock)) (pre, header, body, latch, exit *ir.BasicBlock, iv *ir.Instruction) {
	return buildCountingLoopWithPreheader(f, nil, prefix, bound, bodyFn, exitFn)
}

// buildCountingLoopWithPreheader is buildCountingLoop, but takes an
// existing block to wire as the pre-header (br straight into the header)
// instead of creating a fresh one — used to chain a second loop directly
// off a first loop's exit block without an extra, never-entered block in
// between that would give the header two outside predecessors.
func buildCountingLoopWithPreheader(f *ir.Function, preheader *ir.BasicBlock, prefix string, bound int64, bodyFn func(body *ir.BasicBlock, iv *ir.Instruction), exitFn func(exit *ir.BasicBlock)) (pre, header, body, latch, exit *ir.BasicBlock, iv *ir.Instruction) {
	i32 := ir.IntType(32, true)
	if preheader != nil {
		pre = preheader
	} else {
		pre = f.NewBlock(prefix + "pre")
	}
	header = f.NewBlock(prefix + "header")
	body = f.NewBlock(prefix + "body")
	latch = f.NewBlock(prefix + "latch")
	exit = f.NewBlock(prefix + "exit")

	ir.AppendWithEdge(pre, ir.NewBr(f, header))

	iv = ir.NewPhi(f, i32)
	header.Append(iv)
	cmp := ir.NewBinary(f, ir.OpICmp, iv, ir.NewConstInt(32, true, bound), ir.IntType(1, true))
	header.Append(cmp)
	ir.AppendWithEdge(header, ir.NewCondBr(f, cmp, body, exit))

	if bodyFn != nil {
		bodyFn(body, iv)
	}
	ir.AppendWithEdge(body, ir.NewBr(f, latch))

	next := ir.NewBinary(f, ir.OpAdd, iv, ir.NewConstInt(32, true, 1), i32)
	latch.Append(next)
	ir.AppendWithEdge(latch, ir.NewBr(f, header))

	ir.AddIncoming(iv, pre, ir.NewConstInt(32, true, 0))
	ir.AddIncoming(iv, latch, next)

	if exitFn != nil {
		exitFn(exit)
	}
	return
}

func storeInst(f *ir.Function, base string, iv *ir.Instruction, coeff, constOff int64, val ir.Value) *ir.Instruction {
	i := ir.NewStore(f, val)
	i.Mem = &ir.MemRef{Base: base, IV: iv, Coeff: coeff, Const: constOff}
	return i
}

func loadInst(f *ir.Function, base string, iv *ir.Instruction, coeff, constOff int64, typ ir.Type) *ir.Instruction {
	i := ir.NewLoad(f, typ)
	i.Mem = &ir.MemRef{Base: base, IV: iv, Coeff: coeff, Const: constOff}
	return i
}
