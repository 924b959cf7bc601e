// Package stackprog imports a flat stack-machine program into the
// tree-structured IR defined by package ir. This is purely C2 from the
// spec: it does not allocate registers.
package stackprog

import (
	"fmt"

	"github.com/philippegsk/lsra/internal/ir"
)

// InstructionKind enumerates the stack-machine opcodes accepted by
// Import.
type InstructionKind int

const (
	LdLocal InstructionKind = iota
	StLocal
	Push
	Pop
	Add
	Sub
	Mul
	Div
	Eq
	Jmp
	Branch
	Ret
)

func (k InstructionKind) String() string {
	switch k {
	case LdLocal:
		return "LdLocal"
	case StLocal:
		return "StLocal"
	case Push:
		return "Push"
	case Pop:
		return "Pop"
	case Add:
		return "Add"
	case Sub:
		return "Sub"
	case Mul:
		return "Mul"
	case Div:
		return "Div"
	case Eq:
		return "Eq"
	case Jmp:
		return "Jmp"
	case Branch:
		return "Branch"
	case Ret:
		return "Ret"
	default:
		return fmt.Sprintf("InstructionKind(%d)", int(k))
	}
}

// Instruction is one stack-machine instruction. Operands is interpreted
// per Kind:
//
//	LdLocal(localID)     StLocal(localID)     Push(literal)
//	Jmp(targetInstrIdx)  Branch(ifInstrIdx, elseInstrIdx)
//
// Pop/Add/Sub/Mul/Div/Eq/Ret take no operands.
type Instruction struct {
	Kind     InstructionKind
	Operands []int64
}

// Function is a whole stack-machine program: its local count and flat
// instruction sequence. Target indices in Jmp/Branch are absolute
// positions into Instructions.
type Function struct {
	LocalVars    int
	Instructions []Instruction
}

// importError is returned for every caller-triggerable malformed-input
// condition (spec §7 class 1). It is never used for allocator or IR
// invariant violations, which remain panics.
type importError struct {
	msg string
}

func (e *importError) Error() string { return e.msg }

func errorf(format string, args ...any) error {
	return &importError{msg: fmt.Sprintf(format, args...)}
}

// Import converts fn into an IR, folding the stack instructions into
// per-block expression trees per spec §4.2. The returned IR has already
// been reindexed (IR.Reindex), but predecessors are not yet computed;
// the caller must call IR.RecomputePredecessors before allocating.
//
// A jump whose target lands strictly between two statement boundaries
// is a malformed program (spec §4.1 step 5); ir.BlockList detects this
// by panicking (it is an invariant the IR itself relies on internally),
// and this function recovers that panic and reports it as a regular
// error, since from the importer's external contract it is
// caller-triggerable malformed input, not a bug. The recover is not
// selective: any other panic raised during import (for example an
// instruction missing its operand) is reported the same way.
func Import(fn Function) (ir_ *ir.IR, err error) {
	defer func() {
		if r := recover(); r != nil {
			ir_ = nil
			err = errorf("malformed stack program: %v", r)
		}
	}()

	result := ir.New(fn.LocalVars)
	currentBlock := result.Blocks.First
	var stack []*ir.Tree

	fold := func(n int, build func(subtrees []*ir.Tree) *ir.Tree) error {
		if n > len(stack) {
			return errorf("not enough stack operands: need %d, have %d", n, len(stack))
		}
		l := len(stack)
		operands := append([]*ir.Tree(nil), stack[l-n:]...)
		stack = stack[:l-n]
		stack = append(stack, build(operands))
		return nil
	}

	if len(fn.Instructions) == 0 {
		return nil, errorf("illegal terminator: function has no instructions")
	}

	lastInsIdx := len(fn.Instructions) - 1
	stmtStart := 0

	flush := func(ilIdx int) error {
		if len(stack) != 1 {
			return errorf("leftover stack operands after flush: %d remaining", len(stack))
		}
		tree := stack[len(stack)-1]
		stack = stack[:0]
		currentBlock.AppendTree(ilIdx, tree)
		return nil
	}

	for insIdx, ins := range fn.Instructions {
		switch ins.Kind {
		case LdLocal:
			if err := fold(0, func([]*ir.Tree) *ir.Tree { return ir.NewLdLocal(int(ins.Operands[0])) }); err != nil {
				return nil, err
			}

		case StLocal:
			local := int(ins.Operands[0])
			if err := fold(1, func(s []*ir.Tree) *ir.Tree { return ir.NewStLocal(local, s[0]) }); err != nil {
				return nil, err
			}
			if err := flush(stmtStart); err != nil {
				return nil, err
			}
			stmtStart = insIdx + 1

		case Push:
			lit := ins.Operands[0]
			if err := fold(0, func([]*ir.Tree) *ir.Tree { return ir.NewConst(lit) }); err != nil {
				return nil, err
			}

		case Pop:
			if err := fold(1, func(s []*ir.Tree) *ir.Tree { return ir.NewDiscard(s[0]) }); err != nil {
				return nil, err
			}
			if err := flush(stmtStart); err != nil {
				return nil, err
			}
			stmtStart = insIdx + 1

		case Add, Sub, Mul, Div, Eq:
			op := binOpFor(ins.Kind)
			if err := fold(2, func(s []*ir.Tree) *ir.Tree { return ir.NewBinOp(op, s[0], s[1]) }); err != nil {
				return nil, err
			}

		case Jmp:
			target := result.Blocks.GetOrInsertBlockAt(int(ins.Operands[0]))
			currentBlock = reopenIfSplit(currentBlock)
			edge := &ir.BlockEdge{Target: target}
			if err := fold(0, func([]*ir.Tree) *ir.Tree { return ir.NewJmp(edge) }); err != nil {
				return nil, err
			}
			if err := flush(stmtStart); err != nil {
				return nil, err
			}
			stmtStart = insIdx + 1
			if insIdx == lastInsIdx {
				break
			}
			currentBlock = result.Blocks.GetOrInsertBlockAt(insIdx + 1)

		case Branch:
			ifTarget := result.Blocks.GetOrInsertBlockAt(int(ins.Operands[0]))
			elseTarget := result.Blocks.GetOrInsertBlockAt(int(ins.Operands[1]))
			currentBlock = reopenIfSplit(currentBlock)
			ifEdge := &ir.BlockEdge{Target: ifTarget}
			elseEdge := &ir.BlockEdge{Target: elseTarget}
			if err := fold(1, func(s []*ir.Tree) *ir.Tree { return ir.NewBranch(s[0], ifEdge, elseEdge) }); err != nil {
				return nil, err
			}
			if err := flush(stmtStart); err != nil {
				return nil, err
			}
			stmtStart = insIdx + 1
			if insIdx == lastInsIdx {
				break
			}
			currentBlock = result.Blocks.GetOrInsertBlockAt(insIdx + 1)

		case Ret:
			if err := fold(1, func(s []*ir.Tree) *ir.Tree { return ir.NewRet(s[0]) }); err != nil {
				return nil, err
			}
			if err := flush(stmtStart); err != nil {
				return nil, err
			}
			stmtStart = insIdx + 1
			if insIdx == lastInsIdx {
				break
			}
			currentBlock = result.Blocks.GetOrInsertBlockAt(insIdx + 1)

		default:
			return nil, errorf("unknown instruction kind %v at %d", ins.Kind, insIdx)
		}

		if insIdx == lastInsIdx && !ins.Kind.isTerminator() {
			return nil, errorf("illegal terminator: function does not end in Jmp/Branch/Ret")
		}
	}

	result.Reindex()
	return result, nil
}

// reopenIfSplit follows a chain of synthesized Jmp terminators off
// block. Resolving a jump target can split the block we are currently
// appending statements to (spec §8 scenario 4: a backward jump landing
// inside the block still being built); when that happens, block ends
// up prematurely closed by the split's synthesized Jmp, and the
// statement we are about to append belongs in whichever block the
// split chain now leads to. A real (non-synthesized) terminator can
// never appear here: Import always reassigns currentBlock immediately
// after flushing one, so encountering a terminator at this point can
// only be a side effect of the split(s) we just triggered.
func reopenIfSplit(block *ir.Block) *ir.Block {
	for block.LastStatement != nil && block.LastStatement.Tree.Kind == ir.KindJmp {
		next := block.LastStatement.Tree.Edges[0].Target
		if next == block {
			break
		}
		block = next
	}
	return block
}

func (k InstructionKind) isTerminator() bool {
	return k == Jmp || k == Branch || k == Ret
}

func binOpFor(k InstructionKind) ir.Operator {
	switch k {
	case Add:
		return ir.OpAdd
	case Sub:
		return ir.OpSub
	case Mul:
		return ir.OpMul
	case Div:
		return ir.OpDiv
	case Eq:
		return ir.OpEq
	default:
		panic(fmt.Sprintf("BUG: %v is not a binary operator instruction", k))
	}
}
