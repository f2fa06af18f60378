// Package ir implements the intermediate representation the optimizer
// passes in internal/passes operate on: modules of functions, each a CFG
// of basic blocks of SSA instructions.
//
// This is the "IR Façade" the passes treat as an external collaborator:
// module/function/block/instruction/value graph, use-def edges, and a
// narrow rewrite API. Dominance, loop structure and scalar evolution live
// in dom.go, loop.go and scev.go respectively.
package ir

import (
	"fmt"
	"math/big"
)

// ValueID is a small dense identifier assigned to every Value for use in
// sets and maps keyed by identity.
type ValueID int

// Type is a minimal integer type: a bit width and a signedness flag. The
// core only ever needs to reason about integers (and the pseudo-type of
// block labels used by branch operands).
type Type struct {
	Width  int
	Signed bool
	Label  bool // true for the pseudo-type of a BlockRef operand
}

func IntType(width int, signed bool) Type {
	return Type{Width: width, Signed: signed}
}

func LabelType() Type {
	return Type{Label: true}
}

func (t Type) String() string {
	if t.Label {
		return "label"
	}
	prefix := "i"
	if !t.Signed {
		prefix = "u"
	}
	return fmt.Sprintf("%s%d", prefix, t.Width)
}

func (t Type) Equal(o Type) bool {
	return t == o
}

// Value is anything an Instruction can take as an operand: another
// Instruction, a Constant, a function Argument, or a BlockRef used by
// terminators and phis.
type Value interface {
	fmt.Stringer
	ValueID() ValueID
	Type() Type
}

// Module is an ordered sequence of Functions.
type Module struct {
	Functions []*Function
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) AddFunction(f *Function) {
	m.Functions = append(m.Functions, f)
}

// Function is an ordered sequence of BasicBlocks with a single entry block.
type Function struct {
	Name    string
	Args    []*Argument
	Blocks  []*BasicBlock
	Entry   *BasicBlock
	nextID  ValueID
	nextBID int
}

// NewFunction creates a function with the given name and argument types.
// The caller must still create and append an entry block.
func NewFunction(name string, argTypes []Type) *Function {
	f := &Function{Name: name}
	for i, t := range argTypes {
		f.Args = append(f.Args, &Argument{id: f.allocID(), name: fmt.Sprintf("arg%d", i), typ: t, Parent: f})
	}
	return f
}

func (f *Function) allocID() ValueID {
	id := f.nextID
	f.nextID++
	return id
}

// NewBlock creates and appends a new, empty basic block to f. If f has no
// blocks yet, the new block becomes the entry block.
func (f *Function) NewBlock(name string) *BasicBlock {
	if name == "" {
		name = fmt.Sprintf("bb%d", f.nextBID)
	}
	f.nextBID++
	b := &BasicBlock{Name: name, Parent: f}
	f.Blocks = append(f.Blocks, b)
	if f.Entry == nil {
		f.Entry = b
	}
	return b
}

// RemoveBlock drops a block from the function's block list without
// touching its instructions or edges.
func (f *Function) RemoveBlock(b *BasicBlock) {
	for i, bb := range f.Blocks {
		if bb == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

// BasicBlock is an ordered sequence of Instructions terminated by exactly
// one Terminator.
type BasicBlock struct {
	Name   string
	Parent *Function
	Instrs []*Instruction
	Preds  []*BasicBlock
	Succs  []*BasicBlock
}

func (b *BasicBlock) String() string { return b.Name }

// Terminator returns the block's terminator instruction, which by
// invariant is always the last instruction in Instrs.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

// Append adds an instruction to the end of the block and wires its
// use-def edges.
func (b *BasicBlock) Append(i *Instruction) {
	i.Parent = b
	b.Instrs = append(b.Instrs, i)
	linkOperands(i)
}

// InsertBefore inserts i immediately before ref in ref's parent block.
func InsertBefore(ref, i *Instruction) {
	b := ref.Parent
	idx := indexOf(b, ref)
	i.Parent = b
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[idx+1:], b.Instrs[idx:])
	b.Instrs[idx] = i
	linkOperands(i)
}

// InsertAfter inserts i immediately after ref in ref's parent block.
func InsertAfter(ref, i *Instruction) {
	b := ref.Parent
	idx := indexOf(b, ref)
	i.Parent = b
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[idx+2:], b.Instrs[idx+1:])
	b.Instrs[idx+1] = i
	linkOperands(i)
}

func indexOf(b *BasicBlock, i *Instruction) int {
	for idx, ii := range b.Instrs {
		if ii == i {
			return idx
		}
	}
	panic(fmt.Sprintf("ir: instruction %s not found in block %s", i, b.Name))
}

// AddSuccessor records a CFG edge b -> s (and the matching predecessor
// edge). Used by LoopFusion's CFG surgery.
func AddSuccessor(b, s *BasicBlock) {
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}

// RemoveSuccessor removes one instance of the b -> s edge, if present.
func RemoveSuccessor(b, s *BasicBlock) {
	b.Succs = removeBlock(b.Succs, s)
	s.Preds = removeBlock(s.Preds, b)
}

func removeBlock(list []*BasicBlock, target *BasicBlock) []*BasicBlock {
	for i, b := range list {
		if b == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Argument is a function parameter; it is always loop-invariant.
type Argument struct {
	id     ValueID
	name   string
	typ    Type
	Parent *Function
}

func (a *Argument) ValueID() ValueID { return a.id }
func (a *Argument) Type() Type       { return a.typ }
func (a *Argument) String() string   { return "%" + a.name }

// ConstInt is an arbitrary-precision integer constant with a fixed bit
// width, per §6's requirement for arbitrary-precision constant arithmetic.
type ConstInt struct {
	id  ValueID
	typ Type
	Val *big.Int
}

func NewConstInt(width int, signed bool, v int64) *ConstInt {
	return &ConstInt{id: -1, typ: IntType(width, signed), Val: big.NewInt(v)}
}

func NewConstIntBig(width int, signed bool, v *big.Int) *ConstInt {
	return &ConstInt{id: -1, typ: IntType(width, signed), Val: new(big.Int).Set(v)}
}

func (c *ConstInt) ValueID() ValueID { return c.id }
func (c *ConstInt) Type() Type       { return c.typ }
func (c *ConstInt) String() string   { return c.Val.String() }

// Eq reports whether c has the same bit width and value as o.
func (c *ConstInt) Eq(o *ConstInt) bool {
	return c.typ.Width == o.typ.Width && c.Val.Cmp(o.Val) == 0
}

// BlockRef is a Value wrapper around a BasicBlock, used as a branch
// target or phi predecessor-label operand.
type BlockRef struct {
	id    ValueID
	Block *BasicBlock
}

func (r *BlockRef) ValueID() ValueID { return r.id }
func (r *BlockRef) Type() Type       { return LabelType() }
func (r *BlockRef) String() string   { return r.Block.Name }

// AsConstInt returns v as a *ConstInt if it is one.
func AsConstInt(v Value) (*ConstInt, bool) {
	c, ok := v.(*ConstInt)
	return c, ok
}

// AsInstruction returns v as an *Instruction if it is one.
func AsInstruction(v Value) (*Instruction, bool) {
	i, ok := v.(*Instruction)
	return i, ok
}
