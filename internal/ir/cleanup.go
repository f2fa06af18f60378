package ir

// EliminateUnreachableBlocks drops every block of f that cannot be reached
// from f.Entry, per §6's reachability-cleanup collaborator. Used by
// LoopFusion's step 8 after detaching a loop's old header/latch.
func EliminateUnreachableBlocks(f *Function) bool {
	reachable := map[*BasicBlock]bool{}
	var visit func(*BasicBlock)
	visit = func(b *BasicBlock) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
	}
	if f.Entry != nil {
		visit(f.Entry)
	}

	changed := false
	var kept []*BasicBlock
	for _, b := range f.Blocks {
		if reachable[b] {
			kept = append(kept, b)
			continue
		}
		changed = true
		// Detach remaining CFG edges so Preds/Succs stay consistent even
		// though the block itself is dropped.
		for _, s := range append([]*BasicBlock{}, b.Succs...) {
			RemoveSuccessor(b, s)
		}
		for _, p := range append([]*BasicBlock{}, b.Preds...) {
			RemoveSuccessor(p, b)
		}
	}
	f.Blocks = kept
	return changed
}
