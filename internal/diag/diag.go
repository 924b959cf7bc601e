// Package diag provides structured logging for the register
// allocator. It wraps logrus rather than calling it directly so the
// allocator's call sites stay one line and name their fields
// consistently.
package diag

import (
	"github.com/philippegsk/lsra/internal/ir"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.FieldLogger with allocator-shaped helper
// methods. The zero value is not usable; construct one with New
// or NewNop.
type Logger struct {
	log logrus.FieldLogger
}

// New wraps log.
func New(log logrus.FieldLogger) *Logger {
	return &Logger{log: log}
}

// NewNop returns a Logger whose output goes nowhere, for callers (tests,
// library use of this module) that don't want allocator trace output.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return New(l)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// BlockEntered logs phase B starting a block, with the register file
// cleared and active_in adopted from a predecessor (if any).
func (d *Logger) BlockEntered(b *ir.Block, activeIn int) {
	d.log.WithFields(logrus.Fields{
		"block":     b.String(),
		"active_in": activeIn,
	}).Debug("block entered")
}

// IntervalDiscovered logs phase A recording an interval's bounds.
func (d *Logger) IntervalDiscovered(iv *ir.Interval, firstWriteAt, lastReadAt int) {
	d.log.WithFields(logrus.Fields{
		"interval":       iv.String(),
		"first_write_at": firstWriteAt,
		"last_read_at":   lastReadAt,
	}).Debug("interval discovered")
}

// SpillChosen logs phase B choosing iv as a spill victim at irIdx, freeing
// reg.
func (d *Logger) SpillChosen(iv *ir.Interval, reg, irIdx int) {
	d.log.WithFields(logrus.Fields{
		"interval": iv.String(),
		"reg":      reg,
		"ir_idx":   irIdx,
	}).Debug("spill chosen")
}

// EdgeReconciled logs phase C closing one block edge, with the number
// of spills, moves, and restores it emitted.
func (d *Logger) EdgeReconciled(e *ir.BlockEdge, spills, moves, restores int) {
	d.log.WithFields(logrus.Fields{
		"target":   e.Target.String(),
		"spills":   spills,
		"moves":    moves,
		"restores": restores,
	}).Debug("edge reconciled")
}
