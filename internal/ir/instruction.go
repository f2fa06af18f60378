package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies the operation an Instruction performs.
type Opcode int

const (
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpShl
	OpAShr // arithmetic (sign-extending) right shift
	OpLShr // logical (zero-extending) right shift
	OpICmp
	OpSelect
	OpCast  // generic truncate/extend, purity-wise harmless
	OpLoad
	OpStore
	OpCall
	OpPhi
	OpBr     // unconditional branch, operand[0] is a BlockRef
	OpCondBr // conditional branch: operand[0] cond, [1] true target, [2] false target
	OpRet
)

func (op Opcode) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpSDiv:
		return "sdiv"
	case OpUDiv:
		return "udiv"
	case OpShl:
		return "shl"
	case OpAShr:
		return "ashr"
	case OpLShr:
		return "lshr"
	case OpICmp:
		return "icmp"
	case OpSelect:
		return "select"
	case OpCast:
		return "cast"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpCall:
		return "call"
	case OpPhi:
		return "phi"
	case OpBr:
		return "br"
	case OpCondBr:
		return "condbr"
	case OpRet:
		return "ret"
	default:
		return "?"
	}
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool {
	return op == OpBr || op == OpCondBr || op == OpRet
}

// IsBinary reports whether op is a two-operand arithmetic/division op
// eligible for LocalOpts dispatch (spec §4.1's opcode dispatch table).
func (op Opcode) IsBinary() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv:
		return true
	default:
		return false
	}
}

// hasSideEffects reports whether an instruction of this opcode may not be
// freely duplicated or reordered: stores, calls and loads (no purity
// tracking is exposed by this façade, so all loads are treated as
// effectful per §4.2.2's fallback rule) all qualify.
func (op Opcode) hasSideEffects() bool {
	switch op {
	case OpStore, OpCall, OpLoad:
		return true
	default:
		return false
	}
}

// MemRef describes the address touched by a Load/Store as an affine
// expression relative to some loop's canonical induction variable, which
// is all the dependence oracle in depend.go needs to reason about.
// A nil MemRef (or nil IV) means "unknown access pattern".
type MemRef struct {
	Base  string // symbolic array/buffer name
	IV    *Instruction
	Coeff int64 // index = Coeff*iv + Const
	Const int64
}

func (m *MemRef) String() string {
	ivName := "?"
	if m.IV != nil {
		ivName = m.IV.String()
	}
	return fmt.Sprintf("[%s + %d*%s + %d]", m.Base, m.Coeff, ivName, m.Const)
}

// PhiEdge is one (predecessor-block, incoming-value) pair of a Phi.
type PhiEdge struct {
	Pred  *BasicBlock
	Value Value
}

// Instruction is a single IR operation: it has an Opcode, operands, a
// Type, a parent block, a use-list, and is itself a Value.
type Instruction struct {
	id       ValueID
	Op       Opcode
	Operands []Value
	Typ      Type
	Parent   *BasicBlock
	users    []*Instruction

	Incoming []PhiEdge // only meaningful when Op == OpPhi
	Mem      *MemRef   // only meaningful when Op == OpLoad || Op == OpStore
	Name     string    // optional symbolic name, for printing/debugging
}

func (i *Instruction) ValueID() ValueID { return i.id }
func (i *Instruction) Type() Type       { return i.Typ }

// ResultName returns the symbolic name this instruction's result is
// referenced by ("%name" once prefixed).
func (i *Instruction) ResultName() string {
	if i.Name != "" {
		return i.Name
	}
	return fmt.Sprintf("v%d", i.id)
}

// String returns the short reference form ("%name") used when i appears
// as someone else's operand. Use Text for the full definition line.
func (i *Instruction) String() string {
	if i.Op.IsTerminator() {
		return i.Op.String()
	}
	return "%" + i.ResultName()
}

// Text renders the full definition line for i, the way Function.Print
// emits one line per instruction.
func (i *Instruction) Text() string {
	name := i.ResultName()
	if i.Op == OpPhi {
		parts := make([]string, len(i.Incoming))
		for idx, e := range i.Incoming {
			parts[idx] = fmt.Sprintf("[%s, %s]", e.Value, e.Pred.Name)
		}
		return fmt.Sprintf("%%%s = phi %s %s", name, i.Typ, strings.Join(parts, ", "))
	}
	if i.Op == OpLoad && i.Mem != nil {
		return fmt.Sprintf("%%%s = load %s %s", name, i.Typ, i.Mem)
	}
	if i.Op == OpStore && i.Mem != nil {
		return fmt.Sprintf("store %s %s, %s", i.Typ, i.Operands[0], i.Mem)
	}
	operands := make([]string, len(i.Operands))
	for idx, o := range i.Operands {
		operands[idx] = o.String()
	}
	if i.Op == OpBr || i.Op == OpCondBr {
		return fmt.Sprintf("%s %s", i.Op, strings.Join(operands, ", "))
	}
	if i.Op == OpRet {
		return fmt.Sprintf("ret %s", strings.Join(operands, ", "))
	}
	return fmt.Sprintf("%%%s = %s %s %s", name, i.Op, i.Typ, strings.Join(operands, ", "))
}

// Users returns the instructions that reference i as an operand.
func (i *Instruction) Users() []*Instruction {
	return i.users
}

// HasSideEffects reports whether i must never be hoisted, fused across,
// or otherwise reordered relative to other effectful instructions.
func (i *Instruction) HasSideEffects() bool {
	return i.Op.hasSideEffects()
}

// NewBinary creates a detached binary instruction (not yet inserted into
// any block). Callers insert it with InsertAfter/InsertBefore or Append.
func NewBinary(f *Function, op Opcode, lhs, rhs Value, typ Type) *Instruction {
	return &Instruction{id: f.allocID(), Op: op, Operands: []Value{lhs, rhs}, Typ: typ}
}

// NewPhi creates a detached phi instruction with no incoming edges yet.
func NewPhi(f *Function, typ Type) *Instruction {
	return &Instruction{id: f.allocID(), Op: OpPhi, Typ: typ}
}

// AddIncoming appends a (pred, value) edge to a phi and wires the use-def
// edge for value.
func AddIncoming(phi *Instruction, pred *BasicBlock, value Value) {
	phi.Incoming = append(phi.Incoming, PhiEdge{Pred: pred, Value: value})
	phi.Operands = append(phi.Operands, value)
	addUser(value, phi)
}

// linkOperands registers i as a user of each of its operands. Called once
// when i is inserted into a block (or for a phi, each time AddIncoming
// runs).
func linkOperands(i *Instruction) {
	for _, o := range i.Operands {
		addUser(o, i)
	}
}

func addUser(v Value, user *Instruction) {
	def, ok := v.(*Instruction)
	if !ok {
		return
	}
	def.users = append(def.users, user)
}

func removeUser(v Value, user *Instruction) {
	def, ok := v.(*Instruction)
	if !ok {
		return
	}
	for idx, u := range def.users {
		if u == user {
			def.users = append(def.users[:idx], def.users[idx+1:]...)
			return
		}
	}
}

// ReplaceAllUsesWith rewrites every operand edge pointing at old so it
// points at repl instead, updating use-lists atomically. old's own
// use-list is left empty afterwards.
func ReplaceAllUsesWith(old *Instruction, repl Value) {
	users := old.users
	old.users = nil
	for _, u := range users {
		for idx, o := range u.Operands {
			if o == Value(old) {
				u.Operands[idx] = repl
				addUser(repl, u)
			}
		}
		if u.Op == OpPhi {
			for idx := range u.Incoming {
				if u.Incoming[idx].Value == Value(old) {
					u.Incoming[idx].Value = repl
				}
			}
		}
	}
}

// RemoveFromParent unlinks i from its block's instruction list without
// destroying it or touching its use-def edges. Used mid-rewrite to move
// an instruction elsewhere (e.g. LICM hoisting).
func RemoveFromParent(i *Instruction) {
	b := i.Parent
	idx := indexOf(b, i)
	b.Instrs = append(b.Instrs[:idx], b.Instrs[idx+1:]...)
	i.Parent = nil
}

// EraseFromParent unlinks i and destroys it: it must have no remaining
// users, and its own operand edges are torn down so it no longer appears
// in anyone's use-list. Referencing i after this is an InvariantViolation.
func EraseFromParent(i *Instruction) {
	if len(i.users) != 0 {
		panic(fmt.Sprintf("ir: erasing %s with %d remaining uses", i, len(i.users)))
	}
	if i.Parent != nil {
		RemoveFromParent(i)
	}
	for _, o := range i.Operands {
		removeUser(o, i)
	}
	i.Operands = nil
}

// ReplaceSuccessor rewrites a terminator's branch-target operand from
// oldTarget to newTarget and fixes up the block-level Preds/Succs edges
// to match.
func ReplaceSuccessor(term *Instruction, oldTarget, newTarget *BasicBlock) {
	found := false
	for idx, o := range term.Operands {
		if ref, ok := o.(*BlockRef); ok && ref.Block == oldTarget {
			term.Operands[idx] = &BlockRef{Block: newTarget}
			found = true
		}
	}
	if !found {
		panic(fmt.Sprintf("ir: %s does not branch to %s", term, oldTarget.Name))
	}
	RemoveSuccessor(term.Parent, oldTarget)
	AddSuccessor(term.Parent, newTarget)
}

// Successors returns the BlockRef targets referenced directly by a
// terminator's operands, in operand order.
func Successors(term *Instruction) []*BasicBlock {
	var out []*BasicBlock
	for _, o := range term.Operands {
		if ref, ok := o.(*BlockRef); ok {
			out = append(out, ref.Block)
		}
	}
	return out
}

// NewBr creates a detached unconditional branch.
func NewBr(f *Function, target *BasicBlock) *Instruction {
	return &Instruction{id: f.allocID(), Op: OpBr, Operands: []Value{&BlockRef{Block: target}}, Typ: LabelType()}
}

// NewCondBr creates a detached conditional branch.
func NewCondBr(f *Function, cond Value, trueTarget, falseTarget *BasicBlock) *Instruction {
	return &Instruction{
		id:  f.allocID(),
		Op:  OpCondBr,
		Typ: LabelType(),
		Operands: []Value{cond,
			&BlockRef{Block: trueTarget},
			&BlockRef{Block: falseTarget},
		},
	}
}

// NewLoad creates a detached load with no address operand; the caller
// sets its Mem field (the façade's only notion of "address") before
// inserting it.
func NewLoad(f *Function, typ Type) *Instruction {
	return &Instruction{id: f.allocID(), Op: OpLoad, Typ: typ}
}

// NewStore creates a detached store of val; the caller sets its Mem field
// before inserting it.
func NewStore(f *Function, val Value) *Instruction {
	return &Instruction{id: f.allocID(), Op: OpStore, Operands: []Value{val}, Typ: val.Type()}
}

// NewRet creates a detached return terminator.
func NewRet(f *Function, val Value) *Instruction {
	return &Instruction{id: f.allocID(), Op: OpRet, Operands: []Value{val}, Typ: val.Type()}
}

// AppendWithEdge appends a branch/condbr terminator to b and wires the
// corresponding CFG successor edges.
func AppendWithEdge(b *BasicBlock, term *Instruction) {
	b.Append(term)
	for _, t := range Successors(term) {
		AddSuccessor(b, t)
	}
}
