package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a plain, indented tree dump of the IR, independent of any
// assembly emission format. Ported from original_source/ir.py's
// Ir.dump()/BasicBlock.dump()/Tree.dump().
func (ir *IR) Dump(w io.Writer) {
	ir.BlockExecutionOrder(func(b *Block) {
		preds := make([]string, len(b.Predecessors))
		for i, p := range b.Predecessors {
			preds[i] = p.String()
		}
		fmt.Fprintf(w, "%s - predecessors: [%s]\n", b, strings.Join(preds, ", "))
		for stmt := b.FirstStatement; stmt != nil; stmt = stmt.Next {
			fmt.Fprintf(w, "stmt 0x%04x\n", stmt.ILIdx)
			dumpTree(w, stmt.Tree, 0)
		}
	})
}

func dumpTree(w io.Writer, t *Tree, indent int) {
	for _, sub := range t.Subtrees {
		dumpTree(w, sub, indent+4)
	}
	pad := strings.Repeat(" ", indent)
	for _, s := range t.Spills {
		fmt.Fprintf(w, "%s%s\n", pad, s)
	}
	for _, r := range t.Restores {
		fmt.Fprintf(w, "%s%s\n", pad, r)
	}
	reg := ""
	if t.Parent != nil {
		reg = fmt.Sprintf("(r%d) ", t.Reg)
	}
	fmt.Fprintf(w, "%s[%d] %s%s(%s)\n", pad, t.IRIdx, reg, t.Kind, dumpOperands(t))
}

func dumpOperands(t *Tree) string {
	switch t.Kind {
	case KindLdLocal, KindStLocal:
		return fmt.Sprintf("%d", t.Local)
	case KindConst:
		return fmt.Sprintf("%d", t.ConstValue)
	case KindBinOp:
		return t.Op.String()
	case KindJmp, KindBranch:
		parts := make([]string, len(t.Edges))
		for i, e := range t.Edges {
			parts[i] = e.String()
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// DumpASM writes the asm-like emission described by the core's output
// contract (spec §6): blocks in list order, each tree's spills then
// restores then its per-kind instruction, then (for terminators) one
// labeled block per outgoing edge containing that edge's spills, moves
// and restores followed by an unconditional jump.
//
// This assumes, as the Python original does, that a boolean value is
// only obtained by comparing and branching on condition flags in the
// same expression; real downstream code might instead store booleans
// in locals, which this dump does not attempt to model.
func (ir *IR) DumpASM(w io.Writer) {
	ir.BlockExecutionOrder(func(b *Block) {
		fmt.Fprintf(w, "IL_%d:\n", b.ILIdx)
		b.TreeExecutionOrder(func(t *Tree) {
			spillAll(w, t.Spills)
			restoreAll(w, t.Restores)

			switch t.Kind {
			case KindLdLocal, KindStLocal, KindDiscard:
				// handled entirely by spills/restores, or nothing to do.
			case KindConst:
				fmt.Fprintf(w, "    mov r%d, %d\n", t.Reg, t.ConstValue)
			case KindBinOp:
				fmt.Fprintf(w, "    %s r%d, r%d, r%d\n", t.Op, t.Reg, t.Subtrees[0].Reg, t.Subtrees[1].Reg)
			case KindRet:
				fmt.Fprintf(w, "    mov rret, r%d\n", t.Subtrees[0].Reg)
			case KindBranch:
				ifEdge, elseEdge := t.Edges[0], t.Edges[1]
				ifName := fmt.Sprintf("IF_EDGE_IL_%d_IL_%d", b.ILIdx, ifEdge.Target.ILIdx)
				elseName := fmt.Sprintf("ELSE_EDGE_IL_%d_IL_%d", b.ILIdx, elseEdge.Target.ILIdx)

				fmt.Fprintf(w, "    jz r%d %s\n", t.Subtrees[0].Reg, elseName)
				fmt.Fprintf(w, "    jnz r%d %s\n", t.Subtrees[0].Reg, ifName)

				fmt.Fprintf(w, "%s:\n", ifName)
				dumpEdgeBody(w, ifEdge)

				fmt.Fprintf(w, "%s:\n", elseName)
				dumpEdgeBody(w, elseEdge)
			case KindJmp:
				name := fmt.Sprintf("JMP_EDGE_IL_%d_IL_%d", b.ILIdx, t.Edges[0].Target.ILIdx)
				fmt.Fprintf(w, "%s:\n", name)
				dumpEdgeBody(w, t.Edges[0])
			}
		})
	})
}

func dumpEdgeBody(w io.Writer, e *BlockEdge) {
	spillAll(w, e.Spills)
	moveAll(w, e.Moves)
	restoreAll(w, e.Restores)
	fmt.Fprintf(w, "    jmp IL_%d\n", e.Target.ILIdx)
}

func spillAll(w io.Writer, spills []*SpillRec) {
	for _, s := range spills {
		fmt.Fprintf(w, "    mov %s, r%d ; spill\n", s.Interval, s.Reg)
	}
}

func moveAll(w io.Writer, moves []*RegMove) {
	for _, m := range moves {
		fmt.Fprintf(w, "    mov r%d, r%d ; move\n", m.RegTo, m.RegFrom)
	}
}

func restoreAll(w io.Writer, restores []*RestoreRec) {
	for _, r := range restores {
		fmt.Fprintf(w, "    mov r%d, %s ; restore\n", r.Reg, r.Interval)
	}
}
