package meshlevel

import (
	"math"

	"github.com/mastercactapus/gsend/gcode"
)

const mmPerInch = 25.4

// MeshLeveler is a gcode.Reader that splits long moves into segments no
// longer than Granularity and shifts their Z by the surface height.
type MeshLeveler struct {
	granularity float64
	offsetter   ZOffsetter

	buf []gcode.Block

	split *gcode.Interpreter
	level *gcode.Interpreter

	// applied is the Z offset (mm) the machine currently carries relative
	// to the program.
	applied float64

	gr gcode.Reader
}

var _ gcode.Reader = &MeshLeveler{}

type Config struct {
	ZOffsetter  ZOffsetter
	Granularity float64

	// Start is the interpreter state the program begins from.
	Start gcode.Context

	Reader gcode.Reader
}

func New(cfg Config) *MeshLeveler {
	l := &MeshLeveler{
		split: gcode.NewInterpreter(),
		level: gcode.NewInterpreter(),

		granularity: cfg.Granularity,
		gr:          cfg.Reader,

		offsetter: cfg.ZOffsetter,
	}
	if l.offsetter == nil {
		l.offsetter = dummyOffsetter{}
	}
	l.split.SetContext(cfg.Start)
	l.level.SetContext(cfg.Start)

	// the start position is taken to be on the surface already
	start := cfg.Start.WPos()
	if ok, z := l.offsetter.OffsetZ(start.X, start.Y); ok {
		l.applied = z
	}

	return l
}

// units is the size of one program unit in mm.
func units(ctx gcode.Context) float64 {
	if ctx.Inches() {
		return mmPerInch
	}
	return 1
}

// passThrough reports blocks that move in machine coordinates or set the
// work offset; they are never split or leveled.
func passThrough(b gcode.Block) bool {
	return b.Has(gcode.Word{W: 'G', Arg: 53}) || b.Has(gcode.Word{W: 'G', Arg: 92})
}

func (l *MeshLeveler) Read() (gcode.Block, error) {
	b, err := l.next()
	if err != nil {
		return nil, err
	}

	oldPos := l.level.Context().WPos()
	err = l.level.Run(b)
	if err != nil {
		return nil, err
	}
	ctx := l.level.Context()
	newPos := ctx.WPos()
	if oldPos.Equal(newPos) || passThrough(b) {
		return b, nil
	}

	z, hasZ := b.Arg('Z')
	rel := ctx.RelativeMotion()

	// moves that end outside the mesh are left as-is
	ok, target := l.offsetter.OffsetZ(newPos.X, newPos.Y)
	if !ok {
		if !rel && hasZ {
			l.applied = 0
		}
		return b, nil
	}

	u := units(ctx)
	if rel {
		delta := target - l.applied
		l.applied = target
		if delta == 0 {
			return b, nil
		}
		return b.Clone().SetArg('Z', z+delta/u), nil
	}

	l.applied = target
	if target == 0 && hasZ {
		return b, nil
	}
	if !hasZ {
		z = newPos.Z / u
	}
	return b.Clone().SetArg('Z', z+target/u), nil
}

func (l *MeshLeveler) next() (gcode.Block, error) {
	if len(l.buf) > 0 {
		b := l.buf[0]
		l.buf = l.buf[1:]
		return b, nil
	}
	b, err := l.gr.Read()
	if err != nil {
		return nil, err
	}

	oldPos := l.split.Context().WPos()
	err = l.split.Run(b)
	if err != nil {
		return nil, err
	}
	ctx := l.split.Context()
	newPos := ctx.WPos()
	if oldPos.Equal(newPos) || passThrough(b) || ctx.Modal(gcode.ModalGroupMotion) > 1 {
		// only straight moves in work coordinates are split
		return b, nil
	}
	dist := oldPos.DistanceXY(newPos.X, newPos.Y)
	if dist <= l.granularity {
		return b, nil
	}

	n := int(math.Ceil(dist / l.granularity))
	u := units(ctx)
	step := newPos.Sub(oldPos).Div(float64(n) * u)
	from := oldPos.Div(u)

	for i := 1; i <= n; i++ {
		bl := b.Clone()
		if ctx.RelativeMotion() {
			bl = bl.SetArg('X', step.X).SetArg('Y', step.Y).SetArg('Z', step.Z)
		} else {
			bl = bl.SetArg('X', from.X+step.X*float64(i)).
				SetArg('Y', from.Y+step.Y*float64(i)).
				SetArg('Z', from.Z+step.Z*float64(i))
		}
		l.buf = append(l.buf, bl)
	}

	return l.next()
}
