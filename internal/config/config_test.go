package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/philippegsk/lsra/internal/stackprog"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_RoundTrips(t *testing.T) {
	doc := `
local_vars: 1
instructions:
  - kind: ld_local
    operands: [0]
  - kind: ld_local
    operands: [0]
  - kind: add
  - kind: ret
`
	dir := t.TempDir()
	path := filepath.Join(dir, "program.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, p.LocalVars)
	require.Len(t, p.Instructions, 4)

	fn, err := p.ToStackFunction()
	require.NoError(t, err)
	require.Equal(t, stackprog.Function{
		LocalVars: 1,
		Instructions: []stackprog.Instruction{
			{Kind: stackprog.LdLocal, Operands: []int64{0}},
			{Kind: stackprog.LdLocal, Operands: []int64{0}},
			{Kind: stackprog.Add},
			{Kind: stackprog.Ret},
		},
	}, fn)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestToStackFunction_UnknownKind(t *testing.T) {
	p := &Program{
		LocalVars:    0,
		Instructions: []Instruction{{Kind: "frobnicate"}},
	}
	_, err := p.ToStackFunction()
	require.Error(t, err)
}
