// Package meshgen generates closed triangle surfaces for testing and
// demonstrating distance volume generation.
package meshgen

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Icosphere returns a sphere of the given radius approximated by a
// subdivided icosahedron. Every vertex lies exactly on the sphere. Each
// subdivision level multiplies the triangle count by 4, starting at 20.
// Triangles face outward.
func Icosphere(center r3.Vec, radius float64, subdivisions int) (*mesh.Mesh, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("invalid sphere radius %g", radius)
	}
	if subdivisions < 0 || subdivisions > 8 {
		return nil, fmt.Errorf("sphere subdivisions %d out of range [0,8]", subdivisions)
	}
	phi := (1 + math.Sqrt(5)) / 2
	verts := []r3.Vec{
		{X: -1, Y: phi}, {X: 1, Y: phi}, {X: -1, Y: -phi}, {X: 1, Y: -phi},
		{Y: -1, Z: phi}, {Y: 1, Z: phi}, {Y: -1, Z: -phi}, {Y: 1, Z: -phi},
		{X: phi, Z: -1}, {X: phi, Z: 1}, {X: -phi, Z: -1}, {X: -phi, Z: 1},
	}
	for i := range verts {
		verts[i] = r3.Unit(verts[i])
	}
	tris := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	for level := 0; level < subdivisions; level++ {
		midCache := make(map[[2]int]int, 3*len(tris)/2)
		mid := func(a, b int) int {
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if idx, ok := midCache[key]; ok {
				return idx
			}
			idx := len(verts)
			verts = append(verts, r3.Unit(r3.Add(verts[a], verts[b])))
			midCache[key] = idx
			return idx
		}
		next := make([][3]int, 0, 4*len(tris))
		for _, t := range tris {
			a, b, c := mid(t[0], t[1]), mid(t[1], t[2]), mid(t[2], t[0])
			next = append(next,
				[3]int{t[0], a, c}, [3]int{t[1], b, a}, [3]int{t[2], c, b}, [3]int{a, b, c})
		}
		tris = next
	}
	for i := range verts {
		verts[i] = r3.Add(center, r3.Scale(radius, verts[i]))
	}
	m := &mesh.Mesh{Vertices: verts, Triangles: tris}
	orientOutward(m, center)
	return m, nil
}

// Shells returns concentric icospheres sharing a center, one per radius. All
// shells face outward, so a point between two shells is enclosed by the
// inner shells only.
func Shells(center r3.Vec, radii []float64, subdivisions int) (*mesh.Mesh, error) {
	if len(radii) == 0 {
		return nil, errors.New("no shell radii")
	}
	shells := make([]*mesh.Mesh, len(radii))
	for i, r := range radii {
		s, err := Icosphere(center, r, subdivisions)
		if err != nil {
			return nil, err
		}
		shells[i] = s
	}
	return mesh.Merge(shells...), nil
}

// HollowSphere returns a spherical shell: an outward facing sphere of
// radius outer around an inward facing sphere of radius inner. The cavity is
// outside the solid.
func HollowSphere(center r3.Vec, inner, outer float64, subdivisions int) (*mesh.Mesh, error) {
	if !(inner < outer) {
		return nil, fmt.Errorf("inner radius %g must be smaller than outer radius %g", inner, outer)
	}
	out, err := Icosphere(center, outer, subdivisions)
	if err != nil {
		return nil, err
	}
	in, err := Icosphere(center, inner, subdivisions)
	if err != nil {
		return nil, err
	}
	in.Flip()
	return mesh.Merge(out, in), nil
}

// Box returns the 12 triangle surface of an axis aligned box with the given
// center and size. Triangles face outward.
func Box(center, size r3.Vec) (*mesh.Mesh, error) {
	if !(size.X > 0 && size.Y > 0 && size.Z > 0) {
		return nil, fmt.Errorf("invalid box size %v", size)
	}
	b := d3.NewBox(center, size)
	verts := []r3.Vec(b.Vertices())
	// Vertex bit order of d3.Box.Vertices: 4 is X, 2 is Y, 1 is Z.
	quads := [6][4]int{
		{0, 1, 3, 2}, // -X
		{4, 6, 7, 5}, // +X
		{0, 4, 5, 1}, // -Y
		{2, 3, 7, 6}, // +Y
		{0, 2, 6, 4}, // -Z
		{1, 5, 7, 3}, // +Z
	}
	tris := make([][3]int, 0, 12)
	for _, q := range quads {
		tris = append(tris, [3]int{q[0], q[1], q[2]}, [3]int{q[0], q[2], q[3]})
	}
	m := &mesh.Mesh{Vertices: verts, Triangles: tris}
	orientOutward(m, center)
	return m, nil
}

// orientOutward flips triangles whose normal points toward c. It is only
// correct for surfaces star shaped around c.
func orientOutward(m *mesh.Mesh, c r3.Vec) {
	for i, t := range m.Triangles {
		tri := d3.Triangle(m.Triangle(i))
		centroid := r3.Scale(1.0/3, r3.Add(tri[0], r3.Add(tri[1], tri[2])))
		if r3.Dot(tri.Normal(), r3.Sub(centroid, c)) < 0 {
			m.Triangles[i] = [3]int{t[0], t[2], t[1]}
		}
	}
}
