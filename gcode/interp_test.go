package gcode

import (
	"testing"

	"github.com/mastercactapus/gsend/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, in *Interpreter, src string) {
	t.Helper()
	for _, b := range MustParse(src) {
		require.NoError(t, in.Run(b), b.String())
	}
}

func TestInterpreter_Motion(t *testing.T) {
	in := NewInterpreter()
	run(t, in, `
G90 G0 X10 Y5
G91 G1 X1 Z-1 F200
`)
	ctx := in.Context()
	assert.Equal(t, coord.Point{X: 11, Y: 5, Z: -1}, ctx.MPos())
	assert.True(t, ctx.RelativeMotion())
	assert.Equal(t, 200.0, ctx.Feed())
	assert.Equal(t, 1.0, ctx.Modal(ModalGroupMotion))
}

func TestInterpreter_Inches(t *testing.T) {
	in := NewInterpreter()
	run(t, in, "G20 G0 X1")
	assert.InDelta(t, 25.4, in.Context().MPos().X, 1e-9)
}

func TestInterpreter_WorkOffset(t *testing.T) {
	in := NewInterpreter()
	run(t, in, `
G0 X10 Y10
G92 X0 Y0
G0 X5
`)
	ctx := in.Context()
	assert.Equal(t, coord.Point{X: 10, Y: 10}, ctx.WCO())
	assert.Equal(t, coord.Point{X: 15, Y: 10}, ctx.MPos())
	assert.Equal(t, coord.Point{X: 5}, ctx.WPos())

	run(t, in, "G53 G0 X0")
	assert.Equal(t, 0.0, in.Context().MPos().X)
}

func TestInterpreter_Unsupported(t *testing.T) {
	in := NewInterpreter()
	assert.Error(t, in.Run(Block{{W: 'G', Arg: 28}}))
}

func TestInterpreter_SetContext(t *testing.T) {
	in := NewInterpreter()
	run(t, in, "G0 X1")
	saved := in.Context()

	run(t, in, "G91 G0 X1")
	assert.NotEqual(t, saved, in.Context())

	in.SetContext(saved)
	assert.Equal(t, saved, in.Context())
	assert.False(t, in.Context().RelativeMotion())
}

func TestContext_RestoreBlock(t *testing.T) {
	in := NewInterpreter()
	run(t, in, "G20 G91 G55 G1 X1 F30 S1000 M3")

	assert.Equal(t, "G20G91G17G55G94F30", in.Context().RestoreBlock().String())
	assert.Equal(t, "G21G90G17G54G94", DefaultContext().RestoreBlock().String())
	assert.NoError(t, in.Context().RestoreBlock().Validate())
}
