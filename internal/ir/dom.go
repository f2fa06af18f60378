package ir

// DomTree and PostDomTree are read-only analysis snapshots, per §5: the
// core must not hold one across a mutation and must re-request it
// afterwards. They are computed with the Cooper-Harvey-Kennedy iterative
// dominance algorithm, which is simple enough to re-derive from scratch
// for every pass invocation without a dedicated analysis-caching layer.

// DomTree answers dominance queries over a function's forward CFG.
type DomTree struct {
	idom  map[*BasicBlock]*BasicBlock
	order map[*BasicBlock]int // postorder number, for the CHK fast-path
}

// PostDomTree answers dominance queries over a function's reverse CFG,
// i.e. post-dominance: "does b execute on every path from a to the
// (virtual) exit".
type PostDomTree struct {
	inner *DomTree
}

// BuildDomTree computes the dominator tree of f, rooted at f.Entry.
// Unreachable blocks (those with no path from Entry) are simply absent.
func BuildDomTree(f *Function) *DomTree {
	po := postorder(f.Entry, succs)
	return buildFromPostorder(f.Entry, po, preds)
}

// BuildPostDomTree computes the post-dominator tree of f. The reverse walk
// is rooted at the first block in f.Blocks with no successors; no virtual
// exit joining several return blocks is built, so blocks that only reach
// some other exit block are absent from the tree. Functions are expected
// to have exactly one real exit block in the fixtures this core handles.
func BuildPostDomTree(f *Function) *PostDomTree {
	var exit *BasicBlock
	for _, b := range f.Blocks {
		if len(b.Succs) == 0 {
			exit = b
			break
		}
	}
	if exit == nil {
		return &PostDomTree{inner: &DomTree{idom: map[*BasicBlock]*BasicBlock{}}}
	}
	po := postorder(exit, preds)
	return &PostDomTree{inner: buildFromPostorder(exit, po, succs)}
}

func succs(b *BasicBlock) []*BasicBlock { return b.Succs }
func preds(b *BasicBlock) []*BasicBlock { return b.Preds }

// postorder computes a DFS postorder traversal of the graph reachable
// from root following the given edge function.
func postorder(root *BasicBlock, edges func(*BasicBlock) []*BasicBlock) []*BasicBlock {
	seen := map[*BasicBlock]bool{}
	var order []*BasicBlock
	var visit func(*BasicBlock)
	visit = func(b *BasicBlock) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range edges(b) {
			visit(s)
		}
		order = append(order, b)
	}
	visit(root)
	return order
}

// buildFromPostorder is the CHK fixed-point: idom[root] = root, then
// repeatedly recompute idom[b] as the intersection of all processed
// predecessors' idoms, in reverse postorder, until nothing changes.
func buildFromPostorder(root *BasicBlock, po []*BasicBlock, pred func(*BasicBlock) []*BasicBlock) *DomTree {
	order := map[*BasicBlock]int{}
	for i, b := range po {
		order[b] = i
	}
	rpo := make([]*BasicBlock, len(po))
	for i, b := range po {
		rpo[len(po)-1-i] = b
	}

	idom := map[*BasicBlock]*BasicBlock{root: root}

	intersect := func(a, b *BasicBlock) *BasicBlock {
		for a != b {
			for order[a] < order[b] {
				a = idom[a]
			}
			for order[b] < order[a] {
				b = idom[b]
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == root {
				continue
			}
			var newIdom *BasicBlock
			for _, p := range pred(b) {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if newIdom == nil {
				continue
			}
			if idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	return &DomTree{idom: idom, order: order}
}

// Dominates reports whether a dominates b (a block always dominates
// itself).
func (d *DomTree) Dominates(a, b *BasicBlock) bool {
	if _, ok := d.idom[b]; !ok {
		return false // b unreachable
	}
	for cur := b; ; {
		if cur == a {
			return true
		}
		if cur == d.idom[cur] {
			return cur == a
		}
		cur = d.idom[cur]
	}
}

// IDom returns the immediate dominator of b, or nil for the entry block
// or an unreachable block.
func (d *DomTree) IDom(b *BasicBlock) *BasicBlock {
	idom := d.idom[b]
	if idom == b {
		return nil
	}
	return idom
}

// Dominates reports whether a post-dominates b.
func (p *PostDomTree) Dominates(a, b *BasicBlock) bool {
	return p.inner.Dominates(a, b)
}
