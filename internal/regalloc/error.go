package regalloc

import (
	"fmt"
	"strings"
)

// InvariantError is panicked when the allocator detects a violation of
// its own invariants (a spill/restore fix-up disagreeing with an
// interval's recorded register, a restore targeting an already-active
// interval) or register starvation (no eligible spill victim). Both
// indicate a bug in the allocator or a caller that invoked Allocate on
// an IR that skipped Reindex/RecomputePredecessors, never a malformed
// input program, which stackprog.Import reports as a plain error
// instead.
type InvariantError struct {
	Msg          string
	RegisterDump string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s\n%s", e.Msg, e.RegisterDump)
}

func (a *Allocator) invariant(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...), RegisterDump: a.dumpRegisters()}
}

func (a *Allocator) starvation() *InvariantError {
	return a.invariant("no interval eligible for spilling at ir_idx %d", a.currentTree.IRIdx)
}

// dumpRegisters renders the register file and active set, mirroring
// the diagnostic dump original_source/lsra.py prints before raising on
// starvation.
func (a *Allocator) dumpRegisters() string {
	var b strings.Builder
	b.WriteString("regs\n")
	for i, iv := range a.regs {
		if iv == nil {
			fmt.Fprintf(&b, "    r%d: <free>\n", i)
		} else {
			fmt.Fprintf(&b, "    r%d: %s\n", i, iv)
		}
	}
	b.WriteString("active\n")
	for _, iv := range a.active {
		fmt.Fprintf(&b, "    %s\n", iv)
	}
	return b.String()
}
