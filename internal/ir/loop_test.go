package ir

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildCountingLoop builds:
//
//	pre:    br header
//	header: %iv = phi [0, pre], [%next, latch]
//	        %cmp = icmp %iv, bound
//	        condbr %cmp, body, exit
//	body:   ... (caller-supplied instructions appended via bodyFn)
//	        br latch
//	latch:  %next = add %iv, 1
//	        br header
//	exit:   ret 0
func buildCountingLoop(t *testing.T, bound int64, bodyFn func(f *Function, header, body *BasicBlock, iv *Instruction)) (f *Function, pre, header, body, latch, exit *BasicBlock, iv *Instruction) {
	t.Helper()
	i32 := IntType(32, true)
	f = NewFunction("f", nil)
	pre = f.NewBlock("pre")
	header = f.NewBlock("header")
	body = f.NewBlock("body")
	latch = f.NewBlock("latch")
	exit = f.NewBlock("exit")

	AppendWithEdge(pre, NewBr(f, header))

	iv = NewPhi(f, i32)
	header.Append(iv)
	cmp := NewBinary(f, OpICmp, iv, NewConstInt(32, true, bound), IntType(1, true))
	header.Append(cmp)
	AppendWithEdge(header, NewCondBr(f, cmp, body, exit))

	if bodyFn != nil {
		bodyFn(f, header, body, iv)
	}
	AppendWithEdge(body, NewBr(f, latch))

	next := NewBinary(f, OpAdd, iv, NewConstInt(32, true, 1), i32)
	latch.Append(next)
	AppendWithEdge(latch, NewBr(f, header))

	AddIncoming(iv, pre, NewConstInt(32, true, 0))
	AddIncoming(iv, latch, next)

	exit.Append(NewRet(f, NewConstInt(32, true, 0)))
	return
}

func TestLoopIsSimplifiedForm(t *testing.T) {
	f, pre, header, _, latch, exit, iv := buildCountingLoop(t, 10, nil)
	dom := BuildDomTree(f)
	forest := BuildLoopForest(f, dom)
	if len(forest.TopLevel) != 1 {
		t.Fatalf("expected exactly one top-level loop, got %d", len(forest.TopLevel))
	}
	l := forest.TopLevel[0]
	if l.Header != header {
		t.Fatalf("expected loop header to be %v, got %v", header, l.Header)
	}
	if !l.IsSimplifiedForm() {
		t.Fatal("expected loop to be in simplified form")
	}
	if l.Preheader() != pre {
		t.Fatalf("expected preheader %v, got %v", pre, l.Preheader())
	}
	if l.Latch != latch {
		t.Fatalf("expected latch %v, got %v", latch, l.Latch)
	}
	if l.ExitBlock() != exit {
		t.Fatalf("expected exit block %v, got %v", exit, l.ExitBlock())
	}
	gotIV, step := l.CanonicalIV()
	if gotIV != iv {
		t.Fatalf("expected canonical IV %v, got %v", iv, gotIV)
	}
	if !step.EqInt64(1) {
		t.Fatalf("expected step 1, got %v", step)
	}
}

func TestExitCount(t *testing.T) {
	f, _, header, _, _, _, _ := buildCountingLoop(t, 10, nil)
	dom := BuildDomTree(f)
	forest := BuildLoopForest(f, dom)
	l := forest.TopLevel[0]
	_ = header
	tc := ExitCount(l, l.ExitingBlock())
	if tc == nil {
		t.Fatal("expected a computable trip count")
	}
	want := &TripCount{Start: big.NewInt(0), Step: big.NewInt(1), Bound: NewConstInt(32, true, 10)}
	assert.Equal(t, want, tc, "computed trip count should match the loop's literal bounds")
}

func TestNotSimplifiedWithoutPreheader(t *testing.T) {
	// Two distinct predecessors feeding the header from outside the loop
	// means there is no unique pre-header.
	f := NewFunction("f", []Type{IntType(1, true)})
	entry := f.NewBlock("entry")
	predA := f.NewBlock("predA")
	predB := f.NewBlock("predB")
	header := f.NewBlock("header")
	latch := f.NewBlock("latch")
	exit := f.NewBlock("exit")

	AppendWithEdge(entry, NewCondBr(f, f.Args[0], predA, predB))
	AppendWithEdge(predA, NewBr(f, header))
	AppendWithEdge(predB, NewBr(f, header))
	AppendWithEdge(header, NewCondBr(f, f.Args[0], latch, exit))
	AppendWithEdge(latch, NewBr(f, header))
	exit.Append(NewRet(f, NewConstInt(32, true, 0)))

	dom := BuildDomTree(f)
	forest := BuildLoopForest(f, dom)
	if len(forest.TopLevel) != 1 {
		t.Fatalf("expected one loop, got %d", len(forest.TopLevel))
	}
	if forest.TopLevel[0].IsSimplifiedForm() {
		t.Fatal("expected loop with two outside predecessors to not be simplified")
	}
}
