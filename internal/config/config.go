// Package config loads a stack-machine program from a YAML document and
// converts it to the stackprog representation the importer expects. It
// exists so cmd/lsra can read a program from a file instead of only
// running the built-in demo.
package config

import (
	"fmt"
	"os"

	"github.com/philippegsk/lsra/internal/stackprog"
	"gopkg.in/yaml.v3"
)

// Instruction is the YAML twin of stackprog.Instruction. Kind is spelled
// out (e.g. "ld_local") rather than numeric so programs stay readable
// and stable across changes to the InstructionKind iota order.
type Instruction struct {
	Kind     string  `yaml:"kind"`
	Operands []int64 `yaml:"operands,omitempty"`
}

// Program is the YAML twin of stackprog.Function.
type Program struct {
	LocalVars    int           `yaml:"local_vars"`
	Instructions []Instruction `yaml:"instructions"`
}

// LoadFile reads and parses a Program document from path.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &p, nil
}

var kindNames = map[string]stackprog.InstructionKind{
	"ld_local": stackprog.LdLocal,
	"st_local": stackprog.StLocal,
	"push":     stackprog.Push,
	"pop":      stackprog.Pop,
	"add":      stackprog.Add,
	"sub":      stackprog.Sub,
	"mul":      stackprog.Mul,
	"div":      stackprog.Div,
	"eq":       stackprog.Eq,
	"jmp":      stackprog.Jmp,
	"branch":   stackprog.Branch,
	"ret":      stackprog.Ret,
}

// ToStackFunction converts p to the form stackprog.Import accepts. It
// returns an error for an unrecognized instruction kind name rather
// than panicking, since a YAML typo is caller input, not an allocator
// or IR invariant violation.
func (p *Program) ToStackFunction() (stackprog.Function, error) {
	fn := stackprog.Function{
		LocalVars:    p.LocalVars,
		Instructions: make([]stackprog.Instruction, len(p.Instructions)),
	}
	for i, ins := range p.Instructions {
		kind, ok := kindNames[ins.Kind]
		if !ok {
			return stackprog.Function{}, fmt.Errorf("config: instruction %d: unknown kind %q", i, ins.Kind)
		}
		fn.Instructions[i] = stackprog.Instruction{Kind: kind, Operands: ins.Operands}
	}
	return fn, nil
}
