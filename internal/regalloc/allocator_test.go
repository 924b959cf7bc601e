package regalloc

import (
	"testing"

	"github.com/philippegsk/lsra/internal/ir"
	"github.com/philippegsk/lsra/internal/stackprog"
	"github.com/stretchr/testify/require"
)

// assertAssignedRegs checks P4: every Tree with a parent has reg >= 0.
// Per invariant I4, a tree has a parent only if it produces a value, so
// this is equivalent to "every value-producing tree got a register".
func assertAssignedRegs(t *testing.T, irr *ir.IR) {
	t.Helper()
	irr.TreeExecutionOrder(func(tr *ir.Tree) {
		if tr.Parent != nil {
			require.GreaterOrEqual(t, tr.Reg, 0, "%s at ir_idx %d has no register", tr.Kind, tr.IRIdx)
		}
	})
}

// assertNoRegCollision is a proxy for P3 (register exclusivity) at the
// block-boundary snapshots active_in/active_out record.
func assertNoRegCollision(t *testing.T, label string, set []ir.ActiveInterval) {
	t.Helper()
	seen := make(map[int]bool)
	for _, ai := range set {
		require.False(t, seen[ai.Reg], "%s: register r%d used twice", label, ai.Reg)
		seen[ai.Reg] = true
	}
}

func hasSpill(spills []*ir.SpillRec, iv *ir.Interval) bool {
	for _, s := range spills {
		if s.Interval == iv {
			return true
		}
	}
	return false
}

func hasMove(moves []*ir.RegMove, iv *ir.Interval) bool {
	for _, m := range moves {
		if m.Interval == iv {
			return true
		}
	}
	return false
}

func hasRestore(restores []*ir.RestoreRec, iv *ir.Interval) bool {
	for _, r := range restores {
		if r.Interval == iv {
			return true
		}
	}
	return false
}

// assertEdgeClosure checks P5: for every edge B->T, active_out(B) and
// active_in(T) differ only through that edge's recorded fix-ups.
func assertEdgeClosure(t *testing.T, irr *ir.IR) {
	t.Helper()
	irr.BlockExecutionOrder(func(b *ir.Block) {
		b.OutgoingEdges(func(e *ir.BlockEdge) {
			target := e.Target
			for _, out := range b.ActiveOut {
				inReg, found := activeReg(target.ActiveIn, out.Interval)
				if !found {
					require.True(t, hasSpill(e.Spills, out.Interval),
						"%s -> %s: %s active_out with no matching active_in or spill", b, target, out.Interval)
				} else if inReg != out.Reg {
					require.True(t, hasMove(e.Moves, out.Interval),
						"%s -> %s: %s changes register without a recorded move", b, target, out.Interval)
				}
			}
			for _, in := range target.ActiveIn {
				if _, found := activeReg(b.ActiveOut, in.Interval); !found {
					require.True(t, hasRestore(e.Restores, in.Interval),
						"%s -> %s: %s active_in with no matching active_out or restore", b, target, in.Interval)
				}
			}
		})
	})
}

func assertAllocationSound(t *testing.T, irr *ir.IR) {
	t.Helper()
	assertAssignedRegs(t, irr)
	assertEdgeClosure(t, irr)
	irr.BlockExecutionOrder(func(b *ir.Block) {
		assertNoRegCollision(t, b.String()+" active_in", b.ActiveIn)
		assertNoRegCollision(t, b.String()+" active_out", b.ActiveOut)
	})
}

// TestAllocate_SimpleAddReturn is spec §8 scenario 1.
func TestAllocate_SimpleAddReturn(t *testing.T) {
	fn := stackprog.Function{
		LocalVars: 1,
		Instructions: []stackprog.Instruction{
			{Kind: stackprog.LdLocal, Operands: []int64{0}},
			{Kind: stackprog.LdLocal, Operands: []int64{0}},
			{Kind: stackprog.Add},
			{Kind: stackprog.Ret},
		},
	}
	irr, err := stackprog.Import(fn)
	require.NoError(t, err)
	irr.RecomputePredecessors()

	a := NewAllocator(2, true)
	a.Allocate(irr)

	var kinds []ir.TreeKind
	var regs []int
	irr.TreeExecutionOrder(func(tr *ir.Tree) {
		kinds = append(kinds, tr.Kind)
		regs = append(regs, tr.Reg)
	})
	require.Equal(t, []ir.TreeKind{ir.KindLdLocal, ir.KindLdLocal, ir.KindBinOp, ir.KindRet}, kinds)
	require.Equal(t, []int{0, 0, 1, ir.NoReg}, regs)

	var spillCount int
	irr.TreeExecutionOrder(func(tr *ir.Tree) { spillCount += len(tr.Spills) })
	require.Equal(t, 0, spillCount)

	assertAllocationSound(t, irr)
}

// demoInstructions ports original_source/main.py's 32-instruction,
// five-local demo program (only local 0 is read) byte-for-byte, as
// instruction data.
func demoInstructions() []stackprog.Instruction {
	ld0 := stackprog.Instruction{Kind: stackprog.LdLocal, Operands: []int64{0}}
	push1 := stackprog.Instruction{Kind: stackprog.Push, Operands: []int64{1}}
	add := stackprog.Instruction{Kind: stackprog.Add}
	return []stackprog.Instruction{
		ld0, ld0, add,
		push1, push1, add, add,
		push1, push1, add,
		push1, push1, add, add, add,
		ld0, ld0, add,
		push1, push1, add, add,
		push1, push1, add,
		push1, push1, add, add, add, add,
		{Kind: stackprog.Ret},
	}
}

// TestAllocate_DemoProducesPairedSpills is spec §8 scenario 2: under
// register pressure (4 registers, deeply nested adds), the allocator
// must spill, and every spill must be paired with a later restore of
// the same interval.
func TestAllocate_DemoProducesPairedSpills(t *testing.T) {
	fn := stackprog.Function{LocalVars: 5, Instructions: demoInstructions()}
	irr, err := stackprog.Import(fn)
	require.NoError(t, err)
	irr.RecomputePredecessors()

	a := NewAllocator(4, true)
	a.Allocate(irr)

	spillCount := 0
	irr.TreeExecutionOrder(func(spillTree *ir.Tree) {
		for _, s := range spillTree.Spills {
			spillCount++
			found := false
			irr.TreeExecutionOrder(func(restoreTree *ir.Tree) {
				if restoreTree.IRIdx <= spillTree.IRIdx {
					return
				}
				if hasRestore(restoreTree.Restores, s.Interval) {
					found = true
				}
			})
			require.True(t, found, "spill of %s at ir_idx %d has no later restore", s.Interval, spillTree.IRIdx)
		}
	})
	require.Greater(t, spillCount, 0, "expected register pressure to force at least one spill")

	assertAllocationSound(t, irr)
}

// buildConvergingIR is spec §8 scenario 3: a Branch into two blocks that
// both jump to a third, converging block.
func buildConvergingIR() *ir.IR {
	f := ir.New(1)
	b0 := f.Blocks.First
	b1 := f.Blocks.GetOrInsertBlockAt(10)
	b2 := f.Blocks.GetOrInsertBlockAt(20)
	b3 := f.Blocks.GetOrInsertBlockAt(30)

	b0.AppendTree(0, ir.NewStLocal(0, ir.NewConst(5)))
	cond := ir.NewBinOp(ir.OpEq, ir.NewLdLocal(0), ir.NewConst(0))
	b0.AppendTree(1, ir.NewBranch(cond, &ir.BlockEdge{Target: b1}, &ir.BlockEdge{Target: b2}))

	b1.AppendTree(10, ir.NewStLocal(0, ir.NewConst(1)))
	b1.AppendTree(11, ir.NewJmp(&ir.BlockEdge{Target: b3}))

	b2.AppendTree(20, ir.NewStLocal(0, ir.NewConst(2)))
	b2.AppendTree(21, ir.NewJmp(&ir.BlockEdge{Target: b3}))

	b3.AppendTree(30, ir.NewRet(ir.NewLdLocal(0)))

	f.Reindex()
	f.RecomputePredecessors()
	return f
}

func TestAllocate_ConvergingBranch(t *testing.T) {
	irr := buildConvergingIR()
	a := NewAllocator(2, true)
	a.Allocate(irr)

	assertAllocationSound(t, irr)

	// The sink block's active_in must be satisfied: local 0 is active in
	// it, backed by either both inbound edges or a restore on each.
	b3 := irr.Blocks.First.Next.Next.Next
	require.Equal(t, 30, b3.ILIdx)
	require.Len(t, b3.ActiveIn, 1)
}

// TestAllocate_OperandReuseTogglesOutputRegister is spec §8 scenario 6.
func TestAllocate_OperandReuseTogglesOutputRegister(t *testing.T) {
	build := func() *ir.IR {
		f := ir.New(0)
		b0 := f.Blocks.First
		lhs := ir.NewConst(1)
		rhs := ir.NewConst(2)
		add := ir.NewBinOp(ir.OpAdd, lhs, rhs)
		b0.AppendTree(0, ir.NewRet(add))
		f.Reindex()
		f.RecomputePredecessors()
		return f
	}

	reused := build()
	NewAllocator(3, true).Allocate(reused)
	addTreeReused := reused.Blocks.First.FirstStatement.Tree.Subtrees[0]
	lhsReg := reused.Blocks.First.FirstStatement.Tree.Subtrees[0].Subtrees[0].Reg
	rhsReg := reused.Blocks.First.FirstStatement.Tree.Subtrees[0].Subtrees[1].Reg
	require.Contains(t, []int{lhsReg, rhsReg}, addTreeReused.Reg,
		"with operand reuse allowed, the BinOp should adopt one of its dead operands' registers")

	fresh := build()
	NewAllocator(3, false).Allocate(fresh)
	addTreeFresh := fresh.Blocks.First.FirstStatement.Tree.Subtrees[0]
	lhsReg2 := addTreeFresh.Subtrees[0].Reg
	rhsReg2 := addTreeFresh.Subtrees[1].Reg
	require.NotContains(t, []int{lhsReg2, rhsReg2}, addTreeFresh.Reg,
		"with operand reuse disabled, the BinOp must get a register neither operand held")

	assertAllocationSound(t, reused)
	assertAllocationSound(t, fresh)
}

// TestAllocate_StLocalAdoptsChildRegister is spec §8 scenario 5.
func TestAllocate_StLocalAdoptsChildRegister(t *testing.T) {
	fn := stackprog.Function{
		LocalVars: 1,
		Instructions: []stackprog.Instruction{
			{Kind: stackprog.LdLocal, Operands: []int64{0}},
			{Kind: stackprog.Push, Operands: []int64{1}},
			{Kind: stackprog.Add},
			{Kind: stackprog.StLocal, Operands: []int64{0}},
			{Kind: stackprog.LdLocal, Operands: []int64{0}},
			{Kind: stackprog.Ret},
		},
	}
	irr, err := stackprog.Import(fn)
	require.NoError(t, err)
	irr.RecomputePredecessors()

	a := NewAllocator(2, true)
	a.Allocate(irr)

	var stLocal *ir.Tree
	irr.TreeExecutionOrder(func(tr *ir.Tree) {
		if tr.Kind == ir.KindStLocal {
			stLocal = tr
		}
	})
	require.NotNil(t, stLocal)
	require.Equal(t, stLocal.Subtrees[0].Reg, stLocal.StoreReg)
	require.Empty(t, stLocal.Spills, "adopting the BinOp's own register should need no spill")

	assertAllocationSound(t, irr)
}

func TestAllocate_PanicsOnStarvation(t *testing.T) {
	// Three simultaneously live operands with only one register: no
	// spill victim is eligible once all three are needed at once.
	fn := stackprog.Function{
		LocalVars: 0,
		Instructions: []stackprog.Instruction{
			{Kind: stackprog.Push, Operands: []int64{1}},
			{Kind: stackprog.Push, Operands: []int64{2}},
			{Kind: stackprog.Push, Operands: []int64{3}},
			{Kind: stackprog.Add},
			{Kind: stackprog.Add},
			{Kind: stackprog.Ret},
		},
	}
	irr, err := stackprog.Import(fn)
	require.NoError(t, err)
	irr.RecomputePredecessors()

	a := NewAllocator(1, false)
	require.Panics(t, func() { a.Allocate(irr) })
}
