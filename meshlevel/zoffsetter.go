package meshlevel

import "github.com/mastercactapus/gsend/coord"

// ZOffsetter reports the surface height at x,y, if known.
type ZOffsetter interface {
	OffsetZ(x, y float64) (bool, float64)
}

type dummyOffsetter struct{}

func (dummyOffsetter) OffsetZ(x, y float64) (bool, float64) {
	return false, 0
}

// OffsetFrom shifts probe heights so that z becomes the zero surface.
func OffsetFrom(z float64, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	copy(p, points)

	for i := range p {
		p[i].Z -= z
	}
	return p
}
