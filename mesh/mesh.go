// Package mesh holds the triangle surface representation used to compute
// distance volumes: a shared vertex array and a triangle index array.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrIndexOutOfRange is returned when a triangle references a vertex that does not exist.
var ErrIndexOutOfRange = errors.New("triangle vertex index out of range")

// Mesh is a triangulated surface. Triangles index into Vertices and are
// expected to be consistently oriented with counter-clockwise winding seen
// from outside. A Mesh must not be modified while it is in use by a
// distance computation.
type Mesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int
}

// New returns a mesh over the given vertices and triangles after validating them.
// The slices are not copied.
func New(vertices []r3.Vec, triangles [][3]int) (*Mesh, error) {
	m := &Mesh{Vertices: vertices, Triangles: triangles}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks every triangle index is in bounds and every referenced vertex is finite.
func (m *Mesh) Validate() error {
	nv := len(m.Vertices)
	for i, t := range m.Triangles {
		for _, vi := range t {
			if vi < 0 || vi >= nv {
				return fmt.Errorf("triangle %d references vertex %d of %d: %w", i, vi, nv, ErrIndexOutOfRange)
			}
			if !d3.IsFinite(m.Vertices[vi]) {
				return fmt.Errorf("triangle %d references non-finite vertex %d", i, vi)
			}
		}
	}
	return nil
}

// IsEmpty reports whether the mesh has no triangles.
func (m *Mesh) IsEmpty() bool { return len(m.Triangles) == 0 }

// Triangle returns the corners of the i'th triangle.
func (m *Mesh) Triangle(i int) [3]r3.Vec {
	t := m.Triangles[i]
	return [3]r3.Vec{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]}
}

// Bounds returns the bounding box of all vertices referenced by triangles.
// An empty mesh returns an inverted box with Min > Max.
func (m *Mesh) Bounds() r3.Box {
	bb := d3.EmptyBox()
	for _, t := range m.Triangles {
		for _, vi := range t {
			bb = bb.Include(m.Vertices[vi])
		}
	}
	return r3.Box(bb)
}

// Area returns the total surface area.
func (m *Mesh) Area() (area float64) {
	for i := range m.Triangles {
		area += r3.Norm(d3.Triangle(m.Triangle(i)).Normal()) / 2
	}
	return area
}

// OpenEdges returns the number of edges not shared by exactly two triangles.
// A closed manifold surface has none.
func (m *Mesh) OpenEdges() int {
	count := make(map[[2]int]int, 3*len(m.Triangles)/2)
	for _, t := range m.Triangles {
		for j := range t {
			count[edgeKey(t[j], t[(j+1)%3])]++
		}
	}
	open := 0
	for _, c := range count {
		if c != 2 {
			open++
		}
	}
	return open
}

// FromTriangles builds an indexed mesh from a triangle soup, such as the
// contents of an STL file, sharing vertices closer than tol along every axis.
// If tol is 0 it is inferred from the shortest triangle edge.
func FromTriangles(triangles [][3]r3.Vec, tol float64) (*Mesh, error) {
	if tol < 0 || math.IsNaN(tol) {
		return nil, fmt.Errorf("invalid vertex tolerance %g", tol)
	}
	m := &Mesh{Triangles: make([][3]int, 0, len(triangles))}
	if len(triangles) == 0 {
		return m, nil
	}
	bb := d3.EmptyBox()
	minDist2 := math.MaxFloat64
	for i := range triangles {
		for j, vert := range triangles[i] {
			if !d3.IsFinite(vert) {
				return nil, fmt.Errorf("triangle %d has non-finite vertex", i)
			}
			bb = bb.Include(vert)
			side2 := r3.Norm2(r3.Sub(triangles[i][(j+1)%3], vert))
			if side2 > 0 {
				minDist2 = math.Min(minDist2, side2)
			}
		}
	}
	if tol == 0 {
		tol = math.Sqrt(minDist2) / 256
		if minDist2 == math.MaxFloat64 {
			// Every triangle collapsed to a point.
			tol = 1e-9
		}
	}
	maxDim := d3.Max(bb.Size())
	if tol > maxDim && maxDim > 0 {
		return nil, errors.New("vertex tolerance larger than model size")
	}
	if d3.Max(d3.AbsElem(bb.Max))/tol > math.MaxInt64/2 || d3.Max(d3.AbsElem(bb.Min))/tol > math.MaxInt64/2 {
		return nil, errors.New("vertex tolerance too small, overflowed int64")
	}
	// vertex index cache in resolution space.
	cache := make(map[[3]int64]int)
	ri := 1 / tol
	for _, tri := range triangles {
		var t [3]int
		for j, vert := range tri {
			v := r3.Scale(ri, vert)
			key := [3]int64{int64(math.Round(v.X)), int64(math.Round(v.Y)), int64(math.Round(v.Z))}
			idx, ok := cache[key]
			if !ok {
				idx = len(m.Vertices)
				cache[key] = idx
				m.Vertices = append(m.Vertices, vert)
			}
			t[j] = idx
		}
		m.Triangles = append(m.Triangles, t)
	}
	if open := m.OpenEdges(); open > 0 {
		sdfvol.Logger().Warn("mesh is not closed", "openEdges", open, "triangles", len(m.Triangles))
	}
	return m, nil
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// Merge concatenates meshes into a new one. Vertices are not shared between inputs.
func Merge(meshes ...*Mesh) *Mesh {
	out := &Mesh{}
	for _, m := range meshes {
		off := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, t := range m.Triangles {
			out.Triangles = append(out.Triangles, [3]int{t[0] + off, t[1] + off, t[2] + off})
		}
	}
	return out
}

// Flip reverses the orientation of every triangle in place, turning outward
// facing normals inward.
func (m *Mesh) Flip() {
	for i, t := range m.Triangles {
		m.Triangles[i] = [3]int{t[0], t[2], t[1]}
	}
}
