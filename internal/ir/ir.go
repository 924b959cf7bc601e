package ir

// IR is the whole function: its block list, the number of locals it
// declares, and the tree count established by the last Reindex.
type IR struct {
	Blocks    *BlockList
	LocalVars int

	// IRIdxCount is the total number of trees after Reindex.
	IRIdxCount int
}

// New returns an IR over a fresh BlockList with localVars locals.
func New(localVars int) *IR {
	return &IR{Blocks: NewBlockList(), LocalVars: localVars}
}

// BlockExecutionOrder yields every Block in list order (i.e. ILIdx
// ascending).
func (ir *IR) BlockExecutionOrder(yield func(*Block)) {
	for b := ir.Blocks.First; b != nil; b = b.Next {
		yield(b)
	}
}

// TreeExecutionOrder yields every Tree in the IR, block by block in
// list order, post-order within each block.
func (ir *IR) TreeExecutionOrder(yield func(*Tree)) {
	ir.BlockExecutionOrder(func(b *Block) {
		b.TreeExecutionOrder(yield)
	})
}

// Reindex assigns IRIdx values by a single post-order traversal across
// blocks in execution order, establishing invariant I5: after this
// call, {tree.IRIdx} is exactly [0, IRIdxCount).
func (ir *IR) Reindex() {
	idx := 0
	ir.TreeExecutionOrder(func(t *Tree) {
		t.IRIdx = idx
		idx++
	})
	ir.IRIdxCount = idx
}

// RecomputePredecessors walks every block, inspects its terminator's
// edges, and appends the source block to each target's Predecessors.
// It first clears any predecessors computed by a previous call.
func (ir *IR) RecomputePredecessors() {
	ir.BlockExecutionOrder(func(b *Block) {
		b.Predecessors = nil
	})
	ir.BlockExecutionOrder(func(b *Block) {
		b.OutgoingEdges(func(e *BlockEdge) {
			e.Target.Predecessors = append(e.Target.Predecessors, b)
		})
	})
}
