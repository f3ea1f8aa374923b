package gcode

import "github.com/mastercactapus/gsend/coord"

// Context is a snapshot of interpreter state: the active modal codes, the
// machine position, and the work offset.
//
// It is a value; copies never share state.
type Context struct {
	modal [numModalGroups]float64
	speed float64

	mpos coord.Point
	wco  coord.Point
}

// DefaultContext returns the state of a freshly reset grbl controller.
func DefaultContext() Context {
	var c Context
	c.modal[ModalGroupMotion] = 0
	c.modal[ModalGroupCoordinateSystem] = 54
	c.modal[ModalGroupPlaneSelection] = 17
	c.modal[ModalGroupDistanceMode] = 90
	c.modal[ModalGroupArcDistanceMode] = 91.1
	c.modal[ModalGroupFeedRateMode] = 94
	c.modal[ModalGroupUnits] = 21
	c.modal[ModalGroupCutterCompensationMode] = 40
	c.modal[ModalGroupToolLength] = 49
	c.modal[ModalGroupStopping] = 0
	c.modal[ModalGroupSpindle] = 5
	c.modal[ModalGroupCoolant] = 9
	return c
}

// Modal returns the active code of the group, e.g. 21 for ModalGroupUnits in mm.
func (c Context) Modal(g ModalGroup) float64 { return c.modal[g] }

func (c Context) Inches() bool         { return c.modal[ModalGroupUnits] == 20 }
func (c Context) RelativeMotion() bool { return c.modal[ModalGroupDistanceMode] == 91 }
func (c Context) Feed() float64        { return c.modal[ModalGroupFeedRate] }
func (c Context) SpindleSpeed() float64 {
	return c.speed
}

func (c Context) MPos() coord.Point { return c.mpos }
func (c Context) WCO() coord.Point  { return c.wco }
func (c Context) WPos() coord.Point { return c.mpos.Sub(c.wco) }

// WithPosition returns a copy of c at the given machine position and work offset.
func (c Context) WithPosition(mpos, wco coord.Point) Context {
	c.mpos = mpos
	c.wco = wco
	return c
}

// RestoreBlock renders a block that puts a reset controller back into the
// modal state of c.
//
// Spindle and coolant are never restored; the controller must not start
// moving parts as a side effect of a resync.
func (c Context) RestoreBlock() Block {
	b := Block{
		{W: 'G', Arg: c.modal[ModalGroupUnits]},
		{W: 'G', Arg: c.modal[ModalGroupDistanceMode]},
		{W: 'G', Arg: c.modal[ModalGroupPlaneSelection]},
		{W: 'G', Arg: c.modal[ModalGroupCoordinateSystem]},
		{W: 'G', Arg: c.modal[ModalGroupFeedRateMode]},
	}
	if f := c.Feed(); f > 0 {
		b = append(b, Word{W: 'F', Arg: f})
	}
	return b
}
