package coord

import (
	"math"
	"strconv"
)

// Point is a position in machine or work space, in millimeters.
type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}
func (p Point) Cross(op Point) Point {
	return Point{
		p.Y*op.Z - p.Z*op.Y,
		p.Z*op.X - p.X*op.Z,
		p.X*op.Y - p.Y*op.X,
	}
}
func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y + p.Z*op.Z
}

func (p Point) Div(val float64) Point {
	p.X /= val
	p.Y /= val
	p.Z /= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

func (p Point) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	return f(p.X) + "," + f(p.Y) + "," + f(p.Z)
}
