package plan

import (
	"errors"
	"math"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
)

// GridOptions describe a rectangular probe scan starting at the current
// machine position.
type GridOptions struct {
	FeedRate  float64
	MaxTravel float64

	DistanceX, DistanceY float64

	// Granularity is the largest distance between two probe points.
	Granularity float64
}

func (opt GridOptions) validate() error {
	switch {
	case opt.FeedRate <= 0:
		return errors.New("probe feed rate must be positive")
	case opt.MaxTravel == 0:
		return errors.New("probe max travel required")
	case opt.DistanceX < 0 || opt.DistanceY < 0:
		return errors.New("probe distance must not be negative")
	}
	return nil
}

// probe moves down until contact, then lifts back to the machine Z lift.
func (opt GridOptions) probe(lift float64) []gcode.Block {
	return []gcode.Block{
		{
			{W: 'G', Arg: 91},
			{W: 'G', Arg: 38.2},
			{W: 'Z', Arg: -math.Abs(opt.MaxTravel)},
			{W: 'F', Arg: opt.FeedRate},
		},
		{
			{W: 'G', Arg: 90},
			{W: 'G', Arg: 53},
			{W: 'G', Arg: 0},
			{W: 'Z', Arg: lift},
		},
	}
}

func goTo(x, y float64) gcode.Block {
	return gcode.Block{
		{W: 'G', Arg: 53},
		{W: 'G', Arg: 0},
		{W: 'X', Arg: x},
		{W: 'Y', Arg: y},
	}
}

// GridBlocks generates a serpentine probe scan where no two neighboring
// points are farther than Granularity apart. It returns to mPos after.
func (opt GridOptions) GridBlocks(mPos coord.Point) []gcode.Block {
	if opt.Granularity <= 0 {
		opt.Granularity = defaultGranularity
	}
	xyDist := math.Sqrt(opt.Granularity * opt.Granularity / 2)

	xCount := int(math.Ceil(opt.DistanceX / xyDist))
	yCount := int(math.Ceil(opt.DistanceY / xyDist))

	var b []gcode.Block
	for y := 0; y <= yCount; y++ {
		for x := 0; x <= xCount; x++ {
			var xVal, yVal float64
			if xCount > 0 {
				xVal = opt.DistanceX / float64(xCount) * float64(x)
			}
			if yCount > 0 {
				yVal = opt.DistanceY / float64(yCount) * float64(y)
			}
			if y%2 != 0 {
				xVal = opt.DistanceX - xVal
			}
			b = append(b, goTo(mPos.X+xVal, mPos.Y+yVal))
			b = append(b, opt.probe(mPos.Z)...)
		}
	}

	return append(b, goTo(mPos.X, mPos.Y))
}

// ProbeGrid plans a probe scan from the machine position of start.
func ProbeGrid(start gcode.Context, opt GridOptions) (machine.Batch, error) {
	err := opt.validate()
	if err != nil {
		return nil, err
	}
	return Build(&gcode.BlocksReader{Blocks: opt.GridBlocks(start.MPos())}, start)
}
