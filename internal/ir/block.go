package ir

import "fmt"

// Statement is a root Tree together with the stack-instruction index at
// which the root became complete, doubly linked to its neighbors inside
// one Block's statement list.
type Statement struct {
	ILIdx int
	Tree  *Tree

	Next, Prev *Statement
}

// BlockEdge is a directed reference from a terminator to a target
// Block. Every terminator owns its edges; BlockEdge.Target is a weak
// reference to the (shared, not owned) destination Block.
//
// Spills, Moves and Restores are filled in by Phase C of the allocator
// (edge reconciliation) and are empty until then. Moves are recorded
// without any ordering for cyclic permutations: if two values swap
// registers along one edge, the emitter must insert a scratch register,
// which the allocator does not reserve.
type BlockEdge struct {
	Target *Block

	Spills   []*SpillRec
	Moves    []*RegMove
	Restores []*RestoreRec
}

func (e *BlockEdge) String() string {
	return fmt.Sprintf("-> %s", e.Target)
}

// Block is a sequence of Statements with a unique ILIdx (the stack
// index at which the block starts), doubly linked to its siblings in
// the owning BlockList.
type Block struct {
	ILIdx int

	Next, Prev *Block

	FirstStatement, LastStatement *Statement

	// Predecessors is filled by IR.RecomputePredecessors. Weak
	// back-references.
	Predecessors []*Block

	// ActiveIn and ActiveOut are filled by the allocator's per-block
	// linear scan (Phase B) and are nil until then.
	ActiveIn, ActiveOut []ActiveInterval
}

// String implements fmt.Stringer for debug dumps, e.g. "blk 0x0004".
func (b *Block) String() string {
	return fmt.Sprintf("blk 0x%04x", b.ILIdx)
}

// AppendTree adds a new Statement rooted at tree to the tail of this
// block's statement list, with the given stack-instruction start index.
func (b *Block) AppendTree(ilIdx int, tree *Tree) {
	tree.Block = b
	stmt := &Statement{ILIdx: ilIdx, Tree: tree, Prev: b.LastStatement}
	if b.LastStatement == nil {
		b.FirstStatement = stmt
		b.LastStatement = stmt
		return
	}
	b.LastStatement.Next = stmt
	b.LastStatement = stmt
}

// TreeExecutionOrder yields every Tree in this block, across every
// statement, in post-order.
func (b *Block) TreeExecutionOrder(yield func(*Tree)) {
	for stmt := b.FirstStatement; stmt != nil; stmt = stmt.Next {
		stmt.Tree.TreeExecutionOrder(yield)
	}
}

// OutgoingEdges yields the BlockEdge(s) carried by this block's
// terminator. It panics if the block has no statements or its last
// statement isn't a terminator, since that is an ill-formed IR
// (invariant I6) rather than a recoverable condition at this point in
// the pipeline.
func (b *Block) OutgoingEdges(yield func(*BlockEdge)) {
	if b.LastStatement == nil {
		panic(fmt.Sprintf("BUG: %s has no statements", b))
	}
	term := b.LastStatement.Tree
	if !term.Kind.IsTerminator() {
		panic(fmt.Sprintf("BUG: %s does not end in a terminator (got %s)", b, term.Kind))
	}
	for _, e := range term.Edges {
		yield(e)
	}
}

// Terminator returns the tree that terminates this block, or nil if
// the block has no statements yet.
func (b *Block) Terminator() *Tree {
	if b.LastStatement == nil {
		return nil
	}
	return b.LastStatement.Tree
}
