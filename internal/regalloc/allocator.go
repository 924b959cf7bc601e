// Package regalloc implements the three-phase linear scan register
// allocator described for this IR: interval discovery, a per-block scan
// that assigns registers and records spill/restore fix-ups directly on
// trees, and an edge-reconciliation pass that closes the gap between
// every pair of adjacent blocks' active sets.
//
// The allocator mutates an *ir.IR in place. It expects the IR to have
// already been through IR.Reindex and IR.RecomputePredecessors; nothing
// here recomputes either.
package regalloc

import (
	"github.com/philippegsk/lsra/internal/diag"
	"github.com/philippegsk/lsra/internal/ir"
)

// Allocator is a single linear-scan run. It is not reusable across
// functions: construct a fresh Allocator per Allocate call.
type Allocator struct {
	NumRegs           int
	AllowOperandReuse bool

	regs   []*ir.Interval
	active []*ir.Interval

	varIntervals []*ir.Interval
	currentTree  *ir.Tree

	done map[*ir.Block]bool
	log  *diag.Logger
}

// NewAllocator returns an Allocator with numRegs register slots. If
// allowOperandReuse is true, a BinOp or Const whose operand dies at the
// same tree may reuse that operand's register for its own output.
// Allocation decisions are silently discarded until SetLogger installs
// one.
func NewAllocator(numRegs int, allowOperandReuse bool) *Allocator {
	return &Allocator{
		NumRegs:           numRegs,
		AllowOperandReuse: allowOperandReuse,
		regs:              make([]*ir.Interval, numRegs),
		log:               diag.NewNop(),
	}
}

// SetLogger installs log as the destination for this allocator's
// per-phase trace output.
func (a *Allocator) SetLogger(log *diag.Logger) {
	a.log = log
}

// Allocate runs all three phases over irr, annotating every Tree and
// BlockEdge with the register/spill/restore/move metadata a downstream
// emitter needs. It panics with an *InvariantError if the allocator's
// own invariants are violated or if register starvation occurs with no
// eligible spill victim; both indicate a bug in the allocator or a
// caller that skipped Reindex/RecomputePredecessors, not a malformed
// input program.
func (a *Allocator) Allocate(irr *ir.IR) {
	a.done = make(map[*ir.Block]bool)
	a.phaseA(irr)
	a.phaseB(irr)
	a.phaseC(irr)
}

// phaseA allocates one variable interval per local and walks every tree
// in execution order to establish first_write_at, last_read_at and the
// use positions of each variable. It finishes by forcing every
// variable's last_read_at to ir_idx_count: the documented conservative
// approximation in place of real liveness dataflow (see Open Question
// decisions in DESIGN.md).
func (a *Allocator) phaseA(irr *ir.IR) {
	a.varIntervals = make([]*ir.Interval, irr.LocalVars)
	for i := range a.varIntervals {
		a.varIntervals[i] = ir.NewVariableInterval(i, irr.IRIdxCount)
	}

	irr.TreeExecutionOrder(func(t *ir.Tree) {
		switch t.Kind {
		case ir.KindStLocal:
			iv := a.varIntervals[t.Local]
			if t.IRIdx < iv.FirstWriteAt {
				iv.FirstWriteAt = t.IRIdx
			}
		case ir.KindLdLocal:
			iv := a.varIntervals[t.Local]
			loc := t.Parent.IRIdx
			if loc > iv.LastReadAt {
				iv.LastReadAt = loc
			}
			iv.UsePositions = append(iv.UsePositions, ir.UsePos{Tree: t})
		}
	})

	for _, iv := range a.varIntervals {
		iv.LastReadAt = irr.IRIdxCount
		a.log.IntervalDiscovered(iv, iv.FirstWriteAt, iv.LastReadAt)
	}
}

// phaseB traverses blocks in list order, adopting an active_in set from
// whichever predecessor has already been scanned (if any), running the
// per-tree scan described in phaseBTree, and recording active_out once
// the block's trees are exhausted.
func (a *Allocator) phaseB(irr *ir.IR) {
	irr.BlockExecutionOrder(func(b *ir.Block) {
		for i := range a.regs {
			a.regs[i] = nil
		}
		for _, iv := range a.active {
			iv.LiveIn = ir.NoReg
		}
		a.active = a.active[:0]

		a.adoptActiveIn(b)

		b.TreeExecutionOrder(func(t *ir.Tree) {
			a.phaseBTree(t)
		})

		a.closeBlock(b)
		a.done[b] = true
	})
}

// adoptActiveIn installs the first already-scanned predecessor's
// active_out as b's active_in, per the per-block scan's stated
// guarantee: a predecessor with a computed active_out exists for every
// block but the entry block, since every other block is reached from
// an earlier-scanned block in list order.
func (a *Allocator) adoptActiveIn(b *ir.Block) {
	var adopted []ir.ActiveInterval
	for _, pred := range b.Predecessors {
		if a.done[pred] {
			adopted = pred.ActiveOut
			break
		}
	}
	b.ActiveIn = adopted
	for _, ai := range adopted {
		a.regs[ai.Reg] = ai.Interval
		ai.Interval.LiveIn = ai.Reg
		a.active = append(a.active, ai.Interval)
	}
	a.log.BlockEntered(b, len(adopted))
}

// phaseBTree runs the first four numbered steps of the per-tree scan
// (spec §4.4) for one tree, with pos = t.IRIdx. The fifth step,
// end-of-block cleanup, is closeBlock.
func (a *Allocator) phaseBTree(t *ir.Tree) {
	a.currentTree = t
	pos := t.IRIdx

	// Step 1: pre-tree freeing, strict (no operand reuse).
	a.freeIntervals(pos, false)

	// Step 2: apply fix-ups already attached by an earlier spill
	// decision (this tree is the use site of a placeholder restore).
	for _, spill := range t.Spills {
		if spill.Interval.LiveIn == ir.NoReg {
			panic(a.invariant("spill of inactive interval %s", spill.Interval))
		}
		if spill.Reg != spill.Interval.LiveIn {
			panic(a.invariant("spill register r%d disagrees with %s's live_in r%d", spill.Reg, spill.Interval, spill.Interval.LiveIn))
		}
		a.evict(spill.Interval)
	}
	for _, restore := range t.Restores {
		if restore.Interval.LiveIn != ir.NoReg {
			panic(a.invariant("restore of already-active interval %s", restore.Interval))
		}
		a.activateInterval(restore.Interval)
		restore.Reg = restore.Interval.LiveIn
	}

	// Step 3: post-restore freeing, reuse-enabled, only meaningful when
	// the allocator actually allows operand reuse.
	if a.AllowOperandReuse {
		a.freeIntervals(pos, true)
	}

	// Step 4: per-kind semantics.
	switch t.Kind {
	case ir.KindLdLocal:
		iv := a.varIntervals[t.Local]
		a.activateInterval(iv)
		t.Reg = iv.LiveIn

	case ir.KindStLocal:
		a.allocateStLocal(t)

	case ir.KindConst, ir.KindBinOp:
		if t.ProducesValue() {
			iv := ir.NewTreeTempInterval(t)
			a.activateInterval(iv)
			t.Reg = iv.LiveIn
		}

	case ir.KindDiscard:
		// The child was freed in step 1; nothing else to do.

	default:
		// Terminators: operand registers are already allocated by their
		// condition subtree, if any.
	}
}

// allocateStLocal implements the StLocal bullet of spec §4.4 step 4:
// adopt the child's register for the variable, evicting whatever
// currently occupies it.
func (a *Allocator) allocateStLocal(t *ir.Tree) {
	child := t.Subtrees[0]
	rC := child.Reg
	varIv := a.varIntervals[t.Local]

	if varIv.LiveIn != rC {
		if occupant := a.regs[rC]; occupant != nil {
			if occupant.IsVariable {
				a.spill(occupant)
			} else {
				a.evict(occupant)
			}
		}
		if varIv.LiveIn != ir.NoReg {
			a.evict(varIv)
		}
		a.regs[rC] = varIv
		varIv.LiveIn = rC
		a.active = append(a.active, varIv)
	}
	t.StoreReg = rC
}

// closeBlock drops any tree-temp interval that was produced but never
// consumed (possible when the block's terminator read it with operand
// reuse disabled) and records the surviving variable intervals as
// active_out.
func (a *Allocator) closeBlock(b *ir.Block) {
	remaining := a.active[:0]
	for _, iv := range a.active {
		if !iv.IsVariable {
			a.regs[iv.LiveIn] = nil
			iv.LiveIn = ir.NoReg
			continue
		}
		remaining = append(remaining, iv)
	}
	a.active = remaining

	out := make([]ir.ActiveInterval, len(a.active))
	for i, iv := range a.active {
		out[i] = ir.ActiveInterval{Reg: iv.LiveIn, Interval: iv}
	}
	b.ActiveOut = out
}

// freeIntervals removes every active interval whose last read has
// passed pos from the active set and its register. With
// allowReuse == false this is strict: only last_read_at < pos is freed,
// so an interval whose last_read_at == pos survives. With
// allowReuse == true, an interval whose last_read_at == pos is freed as
// well, opening its register for this tree's own output.
func (a *Allocator) freeIntervals(pos int, allowReuse bool) {
	kept := a.active[:0]
	for _, iv := range a.active {
		if iv.LastReadAt > pos || (!allowReuse && iv.LastReadAt == pos) {
			kept = append(kept, iv)
			continue
		}
		a.regs[iv.LiveIn] = nil
		iv.LiveIn = ir.NoReg
	}
	a.active = kept
}

// evict removes iv from the active set and frees its register without
// recording a spill. Used when a value is about to be overwritten (a
// tree-temp occupant of an StLocal's target register) and its old
// contents need not be preserved.
func (a *Allocator) evict(iv *ir.Interval) {
	a.regs[iv.LiveIn] = nil
	a.active = removeInterval(a.active, iv)
	iv.LiveIn = ir.NoReg
}

// spill evicts iv, recording a SpillRec on the current tree and, if iv
// has a use at or after the current tree, a placeholder RestoreRec
// (register to be decided at activation time) on that use's tree. A
// variable interval with no remaining use ahead (legal under the
// conservative last_read_at == ir_idx_count approximation, which can
// keep a variable "active" well past its last real read) is spilled
// with nothing to restore.
func (a *Allocator) spill(iv *ir.Interval) {
	reg := iv.LiveIn
	a.currentTree.Spills = append(a.currentTree.Spills, &ir.SpillRec{Reg: reg, Interval: iv})
	if up, ok := iv.FirstUsePos(a.currentTree.IRIdx); ok {
		up.Tree.Restores = append(up.Tree.Restores, &ir.RestoreRec{Reg: ir.NoReg, Interval: iv})
	}
	a.log.SpillChosen(iv, reg, a.currentTree.IRIdx)
	a.evict(iv)
}

func removeInterval(active []*ir.Interval, target *ir.Interval) []*ir.Interval {
	for i, iv := range active {
		if iv == target {
			return append(active[:i], active[i+1:]...)
		}
	}
	return active
}

// activateInterval ensures iv occupies a register, spilling another
// active interval if none is free.
func (a *Allocator) activateInterval(iv *ir.Interval) {
	if iv.LiveIn != ir.NoReg {
		return
	}
	if a.tryActivateWithFreeReg(iv) {
		return
	}

	currentPos := a.currentTree.IRIdx
	ivUsePos, ok := iv.FirstUsePos(currentPos)
	if !ok {
		panic(a.invariant("activating %s with no use at or after ir_idx %d", iv, currentPos))
	}

	var best *ir.Interval
	var bestUsePos ir.UsePos
	haveBest := false
	for _, candidate := range a.active {
		usePos, ok := candidate.FirstUsePos(currentPos)
		if !ok {
			// A variable with no use left ahead (legal under the
			// last_read_at == ir_idx_count approximation) is never
			// chosen as a victim.
			continue
		}
		if usePos.Tree.IRIdx <= ivUsePos.Tree.IRIdx {
			// Cannot evict something we are about to read.
			continue
		}
		if !haveBest || usePos.Tree.IRIdx > bestUsePos.Tree.IRIdx {
			best = candidate
			bestUsePos = usePos
			haveBest = true
		}
	}

	if best == nil {
		panic(a.starvation())
	}

	reg := best.LiveIn
	a.currentTree.Spills = append(a.currentTree.Spills, &ir.SpillRec{Reg: reg, Interval: best})
	bestUsePos.Tree.Restores = append(bestUsePos.Tree.Restores, &ir.RestoreRec{Reg: ir.NoReg, Interval: best})
	a.log.SpillChosen(best, reg, currentPos)

	a.active = removeInterval(a.active, best)
	best.LiveIn = ir.NoReg

	a.regs[reg] = iv
	iv.LiveIn = reg
	a.active = append(a.active, iv)
}

// tryActivateWithFreeReg scans for a free register, preferring one that
// already holds one of the current tree's operands (seeding the next
// tree's operand-reuse opportunity), and installs iv there. It returns
// false if every register is occupied.
func (a *Allocator) tryActivateWithFreeReg(iv *ir.Interval) bool {
	bestRegI := -1

	for regI, occupant := range a.regs {
		if occupant != nil {
			continue
		}
		if bestRegI == -1 {
			bestRegI = regI
			continue
		}
		// An already-free register was found earlier; prefer this one
		// instead if it coincides with one of the operands of the tree
		// that is about to use iv.
		if up, ok := iv.FirstUsePos(a.currentTree.IRIdx); ok {
			for _, sub := range up.Tree.Subtrees {
				if sub.Reg == regI {
					bestRegI = regI
					break
				}
			}
		}
	}

	if bestRegI == -1 {
		return false
	}

	// The first load of a variable (or a restore of a previously spilled
	// tree-temp) needs its value materialized into the chosen register;
	// a tree that is itself the producer of iv's value does not.
	if iv.IsVariable || a.currentTree != iv.TreeOf {
		already := false
		for _, r := range a.currentTree.Restores {
			if r.Interval == iv {
				already = true
				break
			}
		}
		if !already {
			a.currentTree.Restores = append(a.currentTree.Restores, &ir.RestoreRec{Reg: bestRegI, Interval: iv})
		}
	}

	a.regs[bestRegI] = iv
	iv.LiveIn = bestRegI
	a.active = append(a.active, iv)
	return true
}

// phaseC walks every block's outgoing edges and reconciles its
// active_out against the target's active_in, recording the
// spills/moves/restores a downstream emitter must execute on that edge
// (in that order) to bridge the two active sets.
func (a *Allocator) phaseC(irr *ir.IR) {
	irr.BlockExecutionOrder(func(b *ir.Block) {
		b.OutgoingEdges(func(e *ir.BlockEdge) {
			target := e.Target

			for _, out := range b.ActiveOut {
				inReg, found := activeReg(target.ActiveIn, out.Interval)
				switch {
				case !found:
					e.Spills = append(e.Spills, &ir.SpillRec{Reg: out.Reg, Interval: out.Interval})
				case inReg != out.Reg:
					e.Moves = append(e.Moves, &ir.RegMove{RegFrom: out.Reg, RegTo: inReg, Interval: out.Interval})
				}
			}

			for _, in := range target.ActiveIn {
				if _, found := activeReg(b.ActiveOut, in.Interval); !found {
					e.Restores = append(e.Restores, &ir.RestoreRec{Reg: in.Reg, Interval: in.Interval})
				}
			}

			a.log.EdgeReconciled(e, len(e.Spills), len(e.Moves), len(e.Restores))
		})
	})
}

func activeReg(set []ir.ActiveInterval, iv *ir.Interval) (int, bool) {
	for _, ai := range set {
		if ai.Interval == iv {
			return ai.Reg, true
		}
	}
	return 0, false
}
