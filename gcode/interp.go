package gcode

import (
	"errors"

	"github.com/mastercactapus/gsend/coord"
)

const mmPerInch = 25.4

// Interpreter will track state and interpret gcode.
type Interpreter struct {
	ctx Context
}

// NewInterpreter constructs a new Interpreter with default state.
func NewInterpreter() *Interpreter {
	return &Interpreter{ctx: DefaultContext()}
}

// Context returns a snapshot of the current state.
func (in *Interpreter) Context() Context { return in.ctx }

// SetContext replaces the current state.
func (in *Interpreter) SetContext(c Context) { in.ctx = c }

func isSupported(g Word) bool {
	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 2, 3, 4,
			17, 18, 19, 20, 21,
			38.2, 38.3, 38.4, 38.5,
			53, 54, 55, 56, 57, 58, 59,
			80, 90, 91, 91.1, 92, 93, 94:
			return true
		}
		return false
	case 'M':
		switch g.Arg {
		case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 30:
			return true
		}
		return false
	}

	return true
}

func applyAxes(p coord.Point, b Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

func hasAxis(b Block) bool {
	for _, g := range b {
		if g.IsAxis() {
			return true
		}
	}
	return false
}

// Run applies the block to the interpreter state.
//
// Motion is tracked by end point only; arcs and probe cycles are assumed to
// reach their programmed target.
func (in *Interpreter) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	var machineCoords, setOffset bool
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal {
			in.ctx.modal[mg] = g.Arg
		}
		switch g {
		case Word{W: 'G', Arg: 53}:
			machineCoords = true
		case Word{W: 'G', Arg: 92}:
			setOffset = true
		}
		if g.W == 'S' {
			in.ctx.speed = g.Arg
		}
	}

	if !hasAxis(b) {
		return nil
	}

	mul := 1.0
	if in.ctx.Inches() {
		mul = mmPerInch
	}

	switch {
	case setOffset:
		// G92: the current position becomes the programmed work position
		wpos := applyAxes(in.ctx.WPos(), b, mul)
		in.ctx.wco = in.ctx.mpos.Sub(wpos)
	case machineCoords:
		in.ctx.mpos = applyAxes(in.ctx.mpos, b, mul)
	case in.ctx.RelativeMotion():
		in.ctx.mpos = in.ctx.mpos.Add(applyAxes(coord.Point{}, b, mul))
	default:
		in.ctx.mpos = applyAxes(in.ctx.WPos(), b, mul).Add(in.ctx.wco)
	}

	return nil
}
