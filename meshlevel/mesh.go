package meshlevel

import (
	"encoding/json"
	"errors"
	"io"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/mastercactapus/gsend/coord"
)

// Mesh is a triangulated height map built from probe points.
type Mesh struct {
	minX, minY, maxX, maxY float64
	triangles              []coord.Triangle
}

var _ ZOffsetter = &Mesh{}

func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) < 3 {
		return nil, errors.New("need at least 3 points to create a mesh")
	}

	points2d := make([]delaunay.Point, len(points))
	byXY := make(map[delaunay.Point]coord.Point, len(points))

	mesh := &Mesh{
		minX: points[0].X,
		minY: points[0].Y,
		maxX: points[0].X,
		maxY: points[0].Y,
	}
	for i, p := range points {
		mesh.minX = math.Min(mesh.minX, p.X)
		mesh.minY = math.Min(mesh.minY, p.Y)
		mesh.maxX = math.Max(mesh.maxX, p.X)
		mesh.maxY = math.Max(mesh.maxY, p.Y)

		d := delaunay.Point{X: p.X, Y: p.Y}
		byXY[d] = p
		points2d[i] = d
	}
	mesh.minX -= coord.Epsilon
	mesh.minY -= coord.Epsilon
	mesh.maxX += coord.Epsilon
	mesh.maxY += coord.Epsilon

	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		return nil, err
	}

	mesh.triangles = make([]coord.Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		mesh.triangles = append(mesh.triangles, coord.Triangle{
			A: byXY[tri.Points[tri.Triangles[i]]],
			B: byXY[tri.Points[tri.Triangles[i+1]]],
			C: byXY[tri.Points[tri.Triangles[i+2]]],
		})
	}

	return mesh, nil
}

// ReadMesh builds a Mesh from a JSON array of probe points, as written
// by a grid probe (`[{"X":0,"Y":0,"Z":-1.2}, ...]`).
func ReadMesh(r io.Reader) (*Mesh, error) {
	var points []coord.Point
	err := json.NewDecoder(r).Decode(&points)
	if err != nil {
		return nil, err
	}
	return NewMesh(points)
}

func (m *Mesh) OffsetZ(x, y float64) (bool, float64) {
	if x < m.minX || m.maxX < x || y < m.minY || m.maxY < y {
		return false, 0
	}
	for _, t := range m.triangles {
		if !t.ContainsXY(x, y) {
			continue
		}
		return true, t.Z(x, y)
	}

	return false, 0
}
