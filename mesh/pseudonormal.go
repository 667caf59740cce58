package mesh

import (
	"math"

	"github.com/soypat/sdfvol/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// PseudoNormals holds the angle weighted pseudo normals of a mesh (Baerentzen
// and Aanaes). The sign of the dot product between the pseudo normal of the
// feature closest to a point and the direction to that point tells whether
// the point lies outside a closed, consistently oriented surface.
type PseudoNormals struct {
	// Face holds unit face normals. Degenerate triangles have a zero normal.
	Face []r3.Vec
	// Vertex holds the sum of incident unit face normals weighted by the
	// triangle opening angle at the vertex.
	Vertex []r3.Vec
	// Access to edge pseudo normals using vertex index pair,
	// stored with lower index first.
	edge map[[2]int]r3.Vec
}

// NewPseudoNormals computes face, edge and vertex pseudo normals of m.
func NewPseudoNormals(m *Mesh) *PseudoNormals {
	pn := &PseudoNormals{
		Face:   make([]r3.Vec, len(m.Triangles)),
		Vertex: make([]r3.Vec, len(m.Vertices)),
		edge:   make(map[[2]int]r3.Vec, 3*len(m.Triangles)/2),
	}
	for i, t := range m.Triangles {
		tri := d3.Triangle(m.Triangle(i))
		n := tri.Normal()
		l := r3.Norm(n)
		if l == 0 {
			continue
		}
		n = r3.Scale(1/l, n)
		pn.Face[i] = n
		for j, vi := range t {
			s1 := r3.Sub(tri[(j+1)%3], tri[j])
			s2 := r3.Sub(tri[(j+2)%3], tri[j])
			alpha := math.Acos(math.Max(-1, math.Min(1, r3.Cos(s1, s2))))
			pn.Vertex[vi] = r3.Add(pn.Vertex[vi], r3.Scale(alpha, n))
			key := edgeKey(vi, t[(j+1)%3])
			pn.edge[key] = r3.Add(pn.edge[key], r3.Scale(math.Pi, n))
		}
	}
	return pn
}

// Edge returns the pseudo normal of the edge between vertices a and b.
func (pn *PseudoNormals) Edge(a, b int) r3.Vec {
	return pn.edge[edgeKey(a, b)]
}
