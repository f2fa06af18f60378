package ir

// Loop is a natural loop with a single header, grounded in the standard
// back-edge/dominance construction (see e.g. original_source's
// LoopWalk.cpp, which walks a loop's body in the same dominance-respecting
// order used by BodyInDominanceOrder below).
type Loop struct {
	Header       *BasicBlock
	Latch        *BasicBlock // nil if the loop has more than one latch
	Latches      []*BasicBlock
	Blocks       map[*BasicBlock]bool
	Parent       *Loop
	Children     []*Loop
	dom          *DomTree
	pdom         *PostDomTree
}

// Contains reports whether b is part of the loop body (including the
// header and latches).
func (l *Loop) Contains(b *BasicBlock) bool { return l.Blocks[b] }

// DomTreeDominates exposes the loop's underlying dominator-tree query, so
// passes never need to hold their own copy of the analysis result.
func (l *Loop) DomTreeDominates(a, b *BasicBlock) bool { return l.dom.Dominates(a, b) }

// Preheader returns the loop's pre-header: the unique predecessor of the
// header that lies outside the loop and whose only successor is the
// header. Returns nil if no such block exists (loop is not simplified).
func (l *Loop) Preheader() *BasicBlock {
	var outside *BasicBlock
	count := 0
	for _, p := range l.Header.Preds {
		if !l.Contains(p) {
			outside = p
			count++
		}
	}
	if count != 1 {
		return nil
	}
	if len(outside.Succs) != 1 || outside.Succs[0] != l.Header {
		return nil
	}
	return outside
}

// Guard returns the block that guards entry into the loop's pre-header:
// a conditional-branch block whose two successors are the pre-header and
// some outside region. Returns nil if the loop is unguarded. Mirrors
// LoopICM.cpp's habit of walking up through the guard when locating the
// loop's true entry block.
func (l *Loop) Guard() *BasicBlock {
	ph := l.Preheader()
	if ph == nil {
		return nil
	}
	if len(ph.Preds) != 1 {
		return nil
	}
	g := ph.Preds[0]
	term := g.Terminator()
	if term == nil || term.Op != OpCondBr {
		return nil
	}
	if len(g.Succs) != 2 {
		return nil
	}
	// A genuine if-guard is not itself a loop header: if some predecessor
	// of g is dominated by g, that predecessor closes a back edge and g is
	// this (or some other) loop's header, not an outer guard wrapping the
	// pre-header — the two-successor shape is coincidental (one target
	// happens to be the next loop's pre-header, the other is its own body).
	for _, p := range g.Preds {
		if l.dom.Dominates(g, p) {
			return nil
		}
	}
	var sawPreheader bool
	for _, s := range g.Succs {
		if s == ph {
			sawPreheader = true
		}
	}
	if !sawPreheader {
		return nil
	}
	return g
}

// EntryBlock returns the block control enters the loop region through:
// the guard if guarded, otherwise the pre-header.
func (l *Loop) EntryBlock() *BasicBlock {
	if g := l.Guard(); g != nil {
		return g
	}
	return l.Preheader()
}

// ExitingBlocks returns in-loop blocks with at least one successor
// outside the loop.
func (l *Loop) ExitingBlocks() []*BasicBlock {
	var out []*BasicBlock
	for b := range l.Blocks {
		for _, s := range b.Succs {
			if !l.Contains(s) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// ExitingBlock and ExitBlock return the loop's unique exiting/exit block
// pair, or nil if the loop does not have dedicated exits (i.e. is not in
// simplified form, per §4.2's precondition).
func (l *Loop) ExitingBlock() *BasicBlock {
	eb, _ := l.dedicatedExit()
	return eb
}

func (l *Loop) ExitBlock() *BasicBlock {
	_, xb := l.dedicatedExit()
	return xb
}

func (l *Loop) dedicatedExit() (*BasicBlock, *BasicBlock) {
	exiting := l.ExitingBlocks()
	if len(exiting) != 1 {
		return nil, nil
	}
	eb := exiting[0]
	var exits []*BasicBlock
	for _, s := range eb.Succs {
		if !l.Contains(s) {
			exits = append(exits, s)
		}
	}
	if len(exits) != 1 {
		return nil, nil
	}
	xb := exits[0]
	// Dedicated exit: every predecessor of the exit block must be
	// in-loop (spec §4.2 "each exit block has only in-loop predecessors").
	for _, p := range xb.Preds {
		if !l.Contains(p) {
			return nil, nil
		}
	}
	return eb, xb
}

// IsSimplifiedForm reports whether l satisfies the preconditions LICM and
// LoopFusion both require: single pre-header, single latch, dedicated
// exits.
func (l *Loop) IsSimplifiedForm() bool {
	return l.Preheader() != nil && l.Latch != nil && l.ExitingBlock() != nil
}

// CanonicalIV finds l's canonical induction variable: a header phi with
// one incoming edge from the pre-header (the start value) and one from
// the latch equal to Add(phi, step) for some constant step.
func (l *Loop) CanonicalIV() (*Instruction, *ConstInt) {
	ph := l.Preheader()
	if ph == nil || l.Latch == nil {
		return nil, nil
	}
	for _, i := range l.Header.Instrs {
		if i.Op != OpPhi {
			continue
		}
		var fromLatch Value
		sawPreheader := false
		for _, e := range i.Incoming {
			if e.Pred == ph {
				sawPreheader = true
			}
			if e.Pred == l.Latch {
				fromLatch = e.Value
			}
		}
		if !sawPreheader || fromLatch == nil {
			continue
		}
		step, ok := fromLatch.(*Instruction)
		if !ok || step.Op != OpAdd {
			continue
		}
		var stepVal *ConstInt
		var other Value
		if c, ok := AsConstInt(step.Operands[1]); ok {
			stepVal, other = c, step.Operands[0]
		} else if c, ok := AsConstInt(step.Operands[0]); ok {
			stepVal, other = c, step.Operands[1]
		}
		if stepVal == nil || other != Value(i) {
			continue
		}
		return i, stepVal
	}
	return nil, nil
}

// Forest holds a function's top-level loops (loops with no parent).
type Forest struct {
	TopLevel []*Loop
	all      []*Loop
}

// BuildLoopForest detects all natural loops in f via the standard
// back-edge construction: an edge b->h is a back edge if h dominates b,
// and the loop body is the set of blocks that can reach b without
// crossing h.
func BuildLoopForest(f *Function, dom *DomTree) *Forest {
	pdom := BuildPostDomTree(f)
	headers := map[*BasicBlock]*Loop{}
	var order []*BasicBlock // preserve discovery order for determinism

	for _, b := range f.Blocks {
		for _, s := range b.Succs {
			if dom.Dominates(s, b) {
				l, ok := headers[s]
				if !ok {
					l = &Loop{Header: s, Blocks: map[*BasicBlock]bool{s: true}, dom: dom, pdom: pdom}
					headers[s] = l
					order = append(order, s)
				}
				l.Latches = append(l.Latches, b)
				growLoopBody(l, b)
			}
		}
	}

	var all []*Loop
	for _, h := range order {
		l := headers[h]
		if len(l.Latches) == 1 {
			l.Latch = l.Latches[0]
		}
		all = append(all, l)
	}

	// Nest loops: a loop is a child of the smallest enclosing loop whose
	// body is a strict superset of its own.
	for _, inner := range all {
		var bestParent *Loop
		for _, outer := range all {
			if outer == inner || !outer.Contains(inner.Header) || outer.Header == inner.Header {
				continue
			}
			if bestParent == nil || len(outer.Blocks) < len(bestParent.Blocks) {
				bestParent = outer
			}
		}
		inner.Parent = bestParent
		if bestParent != nil {
			bestParent.Children = append(bestParent.Children, inner)
		}
	}

	forest := &Forest{all: all}
	for _, l := range all {
		if l.Parent == nil {
			forest.TopLevel = append(forest.TopLevel, l)
		}
	}
	return forest
}

// growLoopBody walks predecessors backward from latch until reaching
// blocks already known to be in the loop (including the header).
func growLoopBody(l *Loop, latch *BasicBlock) {
	if l.Blocks[latch] {
		return
	}
	stack := []*BasicBlock{latch}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if l.Blocks[b] {
			continue
		}
		l.Blocks[b] = true
		for _, p := range b.Preds {
			stack = append(stack, p)
		}
	}
}

// BodyInDominanceOrder returns l's blocks, header first, in an order
// where every block's dominator within the loop precedes it — the order LoopWalk.cpp uses before
// classifying invariants, and the order LICM's invariance fixed-point
// relies on.
func (l *Loop) BodyInDominanceOrder() []*BasicBlock {
	var order []*BasicBlock
	seen := map[*BasicBlock]bool{}
	var visit func(b *BasicBlock)
	byIdom := map[*BasicBlock][]*BasicBlock{}
	for b := range l.Blocks {
		if b == l.Header {
			continue
		}
		parent := l.dom.IDom(b)
		byIdom[parent] = append(byIdom[parent], b)
	}
	visit = func(b *BasicBlock) {
		if seen[b] {
			return
		}
		seen[b] = true
		order = append(order, b)
		for _, c := range byIdom[b] {
			visit(c)
		}
	}
	order = append(order, l.Header)
	seen[l.Header] = true
	for _, c := range byIdom[l.Header] {
		visit(c)
	}
	// Any remaining blocks whose idom lies outside the loop's dominator
	// chain (can't happen for a proper natural loop, but keep this total).
	for b := range l.Blocks {
		if !seen[b] {
			order = append(order, b)
		}
	}
	return order
}
