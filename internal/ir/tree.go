// Package ir implements the tree-structured, basic-block intermediate
// representation that the stack-bytecode importer produces and that the
// linear scan allocator annotates in place.
//
// The ownership spine is a DAG: an IR owns its BlockList, each Block owns
// its Statements, each Statement owns its root Tree, and each Tree owns
// its Subtrees. Every other reference (Tree.Parent, Block.Predecessors,
// BlockEdge.Target, Interval.TreeOf) is a weak, non-owning back-reference
// and is a plain Go pointer rather than any kind of ownership wrapper:
// this is a single-threaded, in-process compiler pass, so there is
// nothing to be gained from enforcing that in the type system.
package ir

import "fmt"

// Operator is the arithmetic/comparison operator carried by a BinOp tree.
type Operator int

const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
	OpEq
)

func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpEq:
		return "cmp"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// TreeKind discriminates the shape of a Tree's operands and subtrees.
type TreeKind int

const (
	KindLdLocal TreeKind = iota
	KindStLocal
	KindConst
	KindDiscard
	KindBinOp
	// KindRet, KindBranch and KindJmp are terminator kinds: every Block
	// (other than possibly the very last) ends in one of these.
	KindRet
	KindBranch
	KindJmp
)

func (k TreeKind) String() string {
	switch k {
	case KindLdLocal:
		return "LdLocal"
	case KindStLocal:
		return "StLocal"
	case KindConst:
		return "Const"
	case KindDiscard:
		return "Discard"
	case KindBinOp:
		return "BinOp"
	case KindRet:
		return "Ret"
	case KindBranch:
		return "Branch"
	case KindJmp:
		return "Jmp"
	default:
		return fmt.Sprintf("TreeKind(%d)", int(k))
	}
}

// IsTerminator reports whether this kind always ends a Block.
func (k TreeKind) IsTerminator() bool {
	return k == KindRet || k == KindBranch || k == KindJmp
}

// NoReg is the sentinel Tree.Reg value for a tree that has not been
// assigned a register, or that produces no value.
const NoReg = -1

// Tree is a node in an expression forest. Since Go has no tagged union,
// this is a flattened struct: Local, ConstValue, Op and Edges are only
// meaningful for the TreeKind(s) documented on each field, the same
// flattened-operand shape wazero's own wazevo Instruction struct uses
// for its SSA values.
type Tree struct {
	Kind     TreeKind
	Subtrees []*Tree

	// Local holds the local id for KindLdLocal and KindStLocal.
	Local int
	// ConstValue holds the literal for KindConst.
	ConstValue int64
	// Op holds the operator for KindBinOp.
	Op Operator
	// Edges holds the BlockEdge(s) of a terminator: one for KindJmp,
	// two (if-edge, else-edge) for KindBranch, none otherwise. Per
	// invariant I6, every terminator's operands are exclusively
	// BlockEdge(s).
	Edges []*BlockEdge
	// StoreReg records, for a KindStLocal tree only, the register the
	// variable ended up occupying (purely informational, for downstream
	// dump clarity; see regalloc's StLocal handling).
	StoreReg int

	// Parent is nil exactly when this Tree is the root of a Statement
	// (invariant I4). Weak back-reference.
	Parent *Tree
	// Block is the Block this Tree's statement belongs to. Weak
	// back-reference, set when the statement is appended.
	Block *Block

	// IRIdx is the post-order index assigned by IR.Reindex.
	IRIdx int
	// Reg is the register id holding this tree's produced value, or
	// NoReg if this tree produces no value or hasn't been allocated
	// yet.
	Reg int

	// Spills and Restores are fix-ups the allocator attaches to this
	// tree, to be emitted immediately before the tree executes.
	Spills   []*SpillRec
	Restores []*RestoreRec
}

func newTree(kind TreeKind, subtrees []*Tree) *Tree {
	t := &Tree{Kind: kind, Subtrees: subtrees, Reg: NoReg, StoreReg: NoReg}
	for _, sub := range subtrees {
		sub.Parent = t
	}
	return t
}

// NewLdLocal builds a leaf tree that pushes the value of local `local`.
func NewLdLocal(local int) *Tree {
	t := newTree(KindLdLocal, nil)
	t.Local = local
	return t
}

// NewStLocal builds a tree that writes `value` to local `local`.
func NewStLocal(local int, value *Tree) *Tree {
	t := newTree(KindStLocal, []*Tree{value})
	t.Local = local
	return t
}

// NewConst builds a leaf tree that produces a literal value.
func NewConst(value int64) *Tree {
	t := newTree(KindConst, nil)
	t.ConstValue = value
	return t
}

// NewDiscard builds a tree that pops and drops `value`.
func NewDiscard(value *Tree) *Tree {
	return newTree(KindDiscard, []*Tree{value})
}

// NewBinOp builds a tree that applies `op` to `lhs` and `rhs`, in that
// order, producing a value.
func NewBinOp(op Operator, lhs, rhs *Tree) *Tree {
	t := newTree(KindBinOp, []*Tree{lhs, rhs})
	t.Op = op
	return t
}

// NewRet builds the terminator that returns `value`.
func NewRet(value *Tree) *Tree {
	return newTree(KindRet, []*Tree{value})
}

// NewJmp builds the unconditional terminator targeting `edge`.
func NewJmp(edge *BlockEdge) *Tree {
	t := newTree(KindJmp, nil)
	t.Edges = []*BlockEdge{edge}
	return t
}

// NewBranch builds the conditional terminator: `ifEdge` is taken when
// `cond` is non-zero, `elseEdge` otherwise.
func NewBranch(cond *Tree, ifEdge, elseEdge *BlockEdge) *Tree {
	t := newTree(KindBranch, []*Tree{cond})
	t.Edges = []*BlockEdge{ifEdge, elseEdge}
	return t
}

// TreeExecutionOrder yields every Tree rooted at t in post-order:
// subtrees strictly before their parent, left-to-right among siblings.
func (t *Tree) TreeExecutionOrder(yield func(*Tree)) {
	for _, sub := range t.Subtrees {
		sub.TreeExecutionOrder(yield)
	}
	yield(t)
}

// ProducesValue reports whether this tree's result is consumed by a
// parent (i.e. it is not itself a statement root), which is the
// condition under which the allocator must assign it a register.
func (t *Tree) ProducesValue() bool {
	return t.Parent != nil
}
