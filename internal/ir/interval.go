package ir

import "fmt"

// UsePos records a single point where an Interval's value is consumed.
// OnBlockBoundary is currently always false; it is structurally
// reserved for accesses synthesized by edge reconciliation (see
// BlockEdge.Restores), matching spec §4.3.
type UsePos struct {
	Tree            *Tree
	OnBlockBoundary bool
}

// WritePos records a single point where an Interval's value is produced.
type WritePos struct {
	Tree            *Tree
	OnBlockBoundary bool
}

// Interval is one live-value record: either a variable interval,
// aggregating every read and write of one local across the whole
// function, or a tree-temp interval, carrying exactly one write (the
// producing tree) and one use (the parent tree).
//
// Go has no sum type, so the two kinds share this one struct; IsVariable
// discriminates which of Local/TreeOf is meaningful, mirroring the
// flattened-struct idiom used throughout this IR (see Tree).
type Interval struct {
	IsVariable bool
	Local      int   // meaningful iff IsVariable
	TreeOf     *Tree // meaningful iff !IsVariable: the producing tree

	UsePositions   []UsePos
	WritePositions []WritePos

	FirstWriteAt int
	LastReadAt   int

	// LiveIn is the register currently holding this interval's value,
	// or NoReg if the interval is not active.
	LiveIn int
}

// NewVariableInterval returns an empty variable interval for local.
func NewVariableInterval(local int, irIdxCount int) *Interval {
	return &Interval{
		IsVariable:   true,
		Local:        local,
		FirstWriteAt: irIdxCount,
		LastReadAt:   -1,
		LiveIn:       NoReg,
	}
}

// NewTreeTempInterval returns a tree-temp interval for the value
// produced by tree, consumed by tree.Parent.
func NewTreeTempInterval(tree *Tree) *Interval {
	iv := &Interval{
		TreeOf:       tree,
		FirstWriteAt: tree.IRIdx,
		LastReadAt:   tree.Parent.IRIdx,
		LiveIn:       NoReg,
	}
	iv.WritePositions = append(iv.WritePositions, WritePos{Tree: tree})
	iv.UsePositions = append(iv.UsePositions, UsePos{Tree: tree.Parent})
	return iv
}

func (iv *Interval) String() string {
	if iv.IsVariable {
		return fmt.Sprintf("local %d", iv.Local)
	}
	return fmt.Sprintf("tree tmp %d", iv.TreeOf.IRIdx)
}

// FirstUsePos returns the earliest use position at or after pos, or
// false if none remains. Use positions are appended in execution
// order, so this linear search finds them in order.
func (iv *Interval) FirstUsePos(pos int) (UsePos, bool) {
	for _, up := range iv.UsePositions {
		if up.Tree.IRIdx < pos {
			continue
		}
		return up, true
	}
	return UsePos{}, false
}

// FirstWritePos returns the earliest write position at or after pos,
// or false if none remains. Symmetric to FirstUsePos.
func (iv *Interval) FirstWritePos(pos int) (WritePos, bool) {
	for _, wp := range iv.WritePositions {
		if wp.Tree.IRIdx < pos {
			continue
		}
		return wp, true
	}
	return WritePos{}, false
}

// SpillRec is a fix-up recording that the value held in Reg by Interval
// must be written back to memory.
type SpillRec struct {
	Reg      int
	Interval *Interval
}

func (s *SpillRec) String() string {
	return fmt.Sprintf("spill %s from r%d", s.Interval, s.Reg)
}

// RestoreRec is a fix-up recording that Interval's value must be
// reloaded into Reg from memory. Reg may be NoReg when the record is a
// placeholder awaiting resolution at the restoring tree (see the
// allocator's spill-victim handling).
type RestoreRec struct {
	Reg      int
	Interval *Interval
}

func (r *RestoreRec) String() string {
	return fmt.Sprintf("restore %s into r%d", r.Interval, r.Reg)
}

// RegMove is an edge fix-up recording a register-to-register copy of
// Interval's value, needed to reconcile two blocks' active sets.
type RegMove struct {
	RegFrom, RegTo int
	Interval       *Interval
}

func (m *RegMove) String() string {
	return fmt.Sprintf("mov r%d, r%d", m.RegTo, m.RegFrom)
}

// ActiveInterval pairs a register with the Interval currently occupying
// it, as recorded in Block.ActiveIn / Block.ActiveOut.
type ActiveInterval struct {
	Reg      int
	Interval *Interval
}
