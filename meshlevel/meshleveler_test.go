package meshlevel

import (
	"io"
	"strings"
	"testing"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/gcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshLeveler(t *testing.T) {

	// probes indicate a rise
	// of 30mm over 100mm or .3mmZ for every 1mm X
	probes := []coord.Point{
		{X: -700, Y: -450, Z: -80},
		{X: -700, Y: -550, Z: -80},

		{X: -600, Y: -450, Z: -50},
		{X: -600, Y: -550, Z: -50},
	}

	mesh, err := NewMesh(probes)
	require.NoError(t, err)

	// the head floats above the bed; moving to the right
	// should raise Z along the mesh
	cfg := Config{
		ZOffsetter: mesh,

		Start:       gcode.DefaultContext().WithPosition(coord.Point{X: -650, Y: -500, Z: -60}, coord.Point{}),
		Granularity: 1,

		Reader: &gcode.BlocksReader{Blocks: gcode.MustParse(`G91 G0 X3`)},
	}

	m := New(cfg)

	for i := 0; i < 3; i++ {
		b, err := m.Read()
		require.NoError(t, err)
		assert.Equal(t, "G91G0X1Y0Z0.3", b.String())
	}

	_, err = m.Read()
	assert.Equal(t, io.EOF, err)
}

func TestMeshLeveler_OutsideMesh(t *testing.T) {
	mesh, err := NewMesh([]coord.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}})
	require.NoError(t, err)

	m := New(Config{
		ZOffsetter:  mesh,
		Granularity: 100,
		Start:       gcode.DefaultContext(),
		Reader:      &gcode.BlocksReader{Blocks: gcode.MustParse("G0 X50 Y50")},
	})

	b, err := m.Read()
	require.NoError(t, err)
	assert.Equal(t, "G0X50Y50", b.String())
}

// levelAndReplay runs src through the leveler and returns the machine
// position after running the leveled output.
func levelAndReplay(t *testing.T, zo ZOffsetter, start gcode.Context, granularity float64, src string) coord.Point {
	t.Helper()
	m := New(Config{
		ZOffsetter:  zo,
		Granularity: granularity,
		Start:       start,
		Reader:      &gcode.BlocksReader{Blocks: gcode.MustParse(src)},
	})
	in := gcode.NewInterpreter()
	in.SetContext(start)
	for {
		b, err := m.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, in.Run(b), b.String())
	}
	return in.Context().MPos()
}

func TestMeshLeveler_Replay(t *testing.T) {
	// Z rises .1mm for every 1mm X
	slope, err := NewMesh([]coord.Point{
		{X: -200, Y: -200, Z: -20}, {X: 200, Y: -200, Z: 20},
		{X: -200, Y: 200, Z: -20}, {X: 200, Y: 200, Z: 20},
	})
	require.NoError(t, err)
	small, err := NewMesh([]coord.Point{
		{X: 0, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 1},
		{X: 0, Y: 10, Z: 0}, {X: 10, Y: 10, Z: 1},
	})
	require.NoError(t, err)

	def := gcode.DefaultContext()
	data := []struct {
		name        string
		zo          ZOffsetter
		start       gcode.Context
		granularity float64
		src         string
		want        coord.Point
	}{
		{name: "inches absolute", zo: slope, start: def, granularity: 10,
			src: "G20 G90\nG1 X1 F10", want: coord.Point{X: 25.4, Z: 2.54}},
		{name: "inches relative", zo: slope, start: def, granularity: 10,
			src: "G20 G91\nG1 X1 F10", want: coord.Point{X: 25.4, Z: 2.54}},
		{name: "machine coordinates", zo: slope, granularity: 10,
			start: def.WithPosition(coord.Point{X: 100}, coord.Point{X: 100}),
			src:   "G53 G0 X150", want: coord.Point{X: 150}},
		{name: "set offset", zo: slope, start: def, granularity: 3,
			src: "G92 X10\nG90 G1 X20 F100", want: coord.Point{X: 10, Z: 2}},
		{name: "relative back into mesh", zo: small, granularity: 100,
			start: def.WithPosition(coord.Point{X: 5, Y: 5}, coord.Point{}),
			src:   "G91\nG1 X10 F100\nG1 X-12", want: coord.Point{X: 3, Y: 5, Z: -0.2}},
	}

	for _, c := range data {
		t.Run(c.name, func(t *testing.T) {
			got := levelAndReplay(t, c.zo, c.start, c.granularity, c.src)
			assert.InDelta(t, c.want.X, got.X, 1e-6, "X")
			assert.InDelta(t, c.want.Y, got.Y, 1e-6, "Y")
			assert.InDelta(t, c.want.Z, got.Z, 1e-6, "Z")
		})
	}
}

func TestMeshLeveler_SplitsInches(t *testing.T) {
	m := New(Config{
		Granularity: 10,
		Start:       gcode.DefaultContext(),
		Reader:      &gcode.BlocksReader{Blocks: gcode.MustParse("G20 G90\nG1 X1 F10")},
	})
	var n int
	var last gcode.Block
	for {
		b, err := m.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
		last = b
	}
	assert.Equal(t, 4, n)
	x, _ := last.Arg('X')
	assert.InDelta(t, 1, x, 1e-9)
}

func TestReadMesh(t *testing.T) {
	mesh, err := ReadMesh(strings.NewReader(`[{"X":0,"Y":0,"Z":0},{"X":10,"Y":0,"Z":1},{"X":0,"Y":10,"Z":0}]`))
	require.NoError(t, err)

	ok, z := mesh.OffsetZ(5, 0)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, z, 1e-9)

	ok, _ = mesh.OffsetZ(20, 20)
	assert.False(t, ok)

	_, err = NewMesh(nil)
	assert.Error(t, err)
}

func TestOffsetFrom(t *testing.T) {
	p := []coord.Point{{Z: 1}, {Z: 3}}
	assert.Equal(t, []coord.Point{{Z: 0}, {Z: 2}}, OffsetFrom(1, p))
	assert.Equal(t, 1.0, p[0].Z, "input untouched")
}
