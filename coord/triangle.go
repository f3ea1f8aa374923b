package coord

import (
	"math"
)

const (
	// Epsilon is the max error when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

// Triangle is one face of a probed height mesh.
type Triangle struct{ A, B, C Point }

// ContainsXY returns true if the 2D projection of the triangle
// has the point x,y, within Epsilon of any edge.
func (t Triangle) ContainsXY(x, y float64) bool {
	if x < math.Min(t.A.X, math.Min(t.B.X, t.C.X))-Epsilon ||
		x > math.Max(t.A.X, math.Max(t.B.X, t.C.X))+Epsilon ||
		y < math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y))-Epsilon ||
		y > math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y))+Epsilon {
		return false
	}

	edges := [3][2]Point{{t.A, t.B}, {t.B, t.C}, {t.C, t.A}}

	var pos, neg bool
	for _, e := range edges {
		s := side(e[0], e[1], x, y)
		pos = pos || s > 0
		neg = neg || s < 0
	}
	if !(pos && neg) {
		return true
	}

	for _, e := range edges {
		if segmentDistanceSq(e[0], e[1], x, y) <= epsilonSq {
			return true
		}
	}
	return false
}

// Z will give the Z-coordinate on the plane defined by the triangle
// where it intersects x,y.
func (t Triangle) Z(x, y float64) float64 {
	n := t.C.Sub(t.A).Cross(t.B.Sub(t.A))
	return (n.Dot(t.C) - n.X*x - n.Y*y) / n.Z
}

// see https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html

func side(a, b Point, x, y float64) float64 {
	return (b.Y-a.Y)*(x-a.X) + (a.X-b.X)*(y-a.Y)
}

func segmentDistanceSq(a, b Point, x, y float64) float64 {
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	dot := ((x-a.X)*(b.X-a.X) + (y-a.Y)*(b.Y-a.Y)) / lenSq
	switch {
	case dot < 0:
		return (x-a.X)*(x-a.X) + (y-a.Y)*(y-a.Y)
	case dot <= 1:
		return (a.X-x)*(a.X-x) + (a.Y-y)*(a.Y-y) - dot*dot*lenSq
	}
	return (x-b.X)*(x-b.X) + (y-b.Y)*(y-b.Y)
}
