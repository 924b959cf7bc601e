package ir

import "fmt"

// BlockList is a sorted doubly linked list of Block(s), ordered by
// ILIdx ascending, with a sentinel first block at ILIdx 0.
type BlockList struct {
	First *Block
}

// NewBlockList returns a BlockList containing only the sentinel entry
// block.
func NewBlockList() *BlockList {
	return &BlockList{First: &Block{ILIdx: 0}}
}

// GetOrInsertBlockAt obtains or creates the Block whose ILIdx equals
// ilIdx, splitting an existing block if ilIdx falls on a statement
// boundary in its middle. See spec §4.1 for the full algorithm;
// comments below reference its numbered steps.
func (bl *BlockList) GetOrInsertBlockAt(ilIdx int) *Block {
	// Step 1: walk until the first block whose successor's ILIdx would
	// overshoot ilIdx (or there is no successor).
	block := bl.First
	for block.ILIdx < ilIdx {
		if block.Next == nil || block.Next.ILIdx > ilIdx {
			break
		}
		block = block.Next
	}

	// Step 2.
	if block.ILIdx == ilIdx {
		return block
	}

	if block.FirstStatement == nil {
		// block has no statements yet (e.g. a forward jump resolved
		// before the current block's first statement was appended):
		// there is nothing to split, so this degenerates into step 3.
		return insertEmptyBlockAfter(block, ilIdx)
	}

	// Step 3/4/5: find where ilIdx falls relative to this block's
	// statements.
	stmt := block.FirstStatement
	for stmt.ILIdx < ilIdx {
		if stmt.Next == nil {
			// Step 3: ilIdx lands past this block's last statement.
			return insertEmptyBlockAfter(block, ilIdx)
		}
		stmt = stmt.Next
	}

	if stmt.ILIdx > ilIdx {
		// Step 5: ilIdx falls strictly between two statement indices.
		// The importer guarantees jumps only target first-of-instruction
		// boundaries, so this is a malformed request.
		panic(fmt.Sprintf("BUG: il_idx %d lands between two statement boundaries in %s", ilIdx, block))
	}

	// Step 4: split block at stmt.
	return splitBlockAt(block, stmt, ilIdx)
}

func insertEmptyBlockAfter(block *Block, ilIdx int) *Block {
	newBlock := &Block{ILIdx: ilIdx, Next: block.Next, Prev: block}
	block.Next = newBlock
	if newBlock.Next != nil {
		newBlock.Next.Prev = newBlock
	}
	return newBlock
}

// splitBlockAt splits block into two: a new block starting at stmt
// (inheriting stmt onward), and block's own tail replaced by a
// synthesized unconditional Jmp to the new block.
func splitBlockAt(block *Block, stmt *Statement, ilIdx int) *Block {
	newBlock := &Block{ILIdx: ilIdx, Next: block.Next, Prev: block}
	block.Next = newBlock
	if newBlock.Next != nil {
		newBlock.Next.Prev = newBlock
	}

	newBlock.FirstStatement = stmt
	newBlock.LastStatement = block.LastStatement
	for s := stmt; s != nil; s = s.Next {
		s.Tree.Block = newBlock
	}

	prevStmt := stmt.Prev
	jmpTree := NewJmp(&BlockEdge{Target: newBlock})
	jmpTree.Block = block
	jmpStmt := &Statement{Tree: jmpTree, Prev: prevStmt}
	if prevStmt != nil {
		prevStmt.Next = jmpStmt
		jmpStmt.ILIdx = prevStmt.ILIdx
	} else {
		jmpStmt.ILIdx = block.ILIdx
	}
	if block.LastStatement == block.FirstStatement {
		// block consisted of exactly the statement we just moved out.
		block.FirstStatement = jmpStmt
	}
	block.LastStatement = jmpStmt
	newBlock.FirstStatement.Prev = nil

	return newBlock
}
