package mesh_test

import (
	"errors"
	"math"
	"testing"

	"github.com/soypat/sdfvol/mesh"
	"github.com/soypat/sdfvol/mesh/meshgen"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewValidation(t *testing.T) {
	verts := []r3.Vec{{}, {X: 1}, {Y: 1}}
	if _, err := mesh.New(verts, [][3]int{{0, 1, 2}}); err != nil {
		t.Fatal(err)
	}
	_, err := mesh.New(verts, [][3]int{{0, 1, 3}})
	if !errors.Is(err, mesh.ErrIndexOutOfRange) {
		t.Errorf("got %v, want ErrIndexOutOfRange", err)
	}
	_, err = mesh.New(verts, [][3]int{{-1, 1, 2}})
	if !errors.Is(err, mesh.ErrIndexOutOfRange) {
		t.Errorf("negative index: got %v, want ErrIndexOutOfRange", err)
	}
	verts[2].Z = math.Inf(1)
	if _, err = mesh.New(verts, [][3]int{{0, 1, 2}}); err == nil {
		t.Error("expected error for non-finite vertex")
	}
}

func boxSoup(t *testing.T, m *mesh.Mesh) [][3]r3.Vec {
	t.Helper()
	soup := make([][3]r3.Vec, len(m.Triangles))
	for i := range m.Triangles {
		soup[i] = m.Triangle(i)
	}
	return soup
}

func TestFromTriangles(t *testing.T) {
	box, err := meshgen.Box(r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 60, Y: 40, Z: 30})
	if err != nil {
		t.Fatal(err)
	}
	soup := boxSoup(t, box)
	// Nudge one copy of a corner below the welding tolerance.
	soup[0][0] = r3.Add(soup[0][0], r3.Vec{X: 1e-4})
	m, err := mesh.FromTriangles(soup, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Vertices) != 8 || len(m.Triangles) != 12 {
		t.Errorf("got %d vertices and %d triangles, want 8 and 12", len(m.Vertices), len(m.Triangles))
	}
	if open := m.OpenEdges(); open != 0 {
		t.Errorf("welded box has %d open edges", open)
	}
	if area := m.Area(); math.Abs(area-10800) > 0.1 {
		t.Errorf("area got %g, want 10800", area)
	}
	bb := m.Bounds()
	if math.Abs(bb.Min.X+29) > 1e-3 || math.Abs(bb.Max.Z-18) > 1e-9 {
		t.Errorf("unexpected bounds %v", bb)
	}

	empty, err := mesh.FromTriangles(nil, 0)
	if err != nil || !empty.IsEmpty() {
		t.Errorf("empty soup: got %v, %v", empty, err)
	}
	if _, err = mesh.FromTriangles(soup, -1); err == nil {
		t.Error("expected error for negative tolerance")
	}
}

func TestOpenEdges(t *testing.T) {
	box, err := meshgen.Box(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	if open := box.OpenEdges(); open != 0 {
		t.Fatalf("closed box has %d open edges", open)
	}
	box.Triangles = box.Triangles[1:]
	// Removing a triangle opens its three edges.
	if open := box.OpenEdges(); open != 3 {
		t.Errorf("got %d open edges, want 3", open)
	}
}

func TestMergeFlip(t *testing.T) {
	a, _ := meshgen.Box(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	b, _ := meshgen.Box(r3.Vec{X: 5}, r3.Vec{X: 1, Y: 1, Z: 1})
	m := mesh.Merge(a, b)
	if len(m.Vertices) != 16 || len(m.Triangles) != 24 {
		t.Fatalf("merged mesh has %d vertices and %d triangles", len(m.Vertices), len(m.Triangles))
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := m.Triangle(12); got != b.Triangle(0) {
		t.Errorf("merged triangle 12 is %v, want %v", got, b.Triangle(0))
	}
	before := m.Triangle(0)
	m.Flip()
	after := m.Triangle(0)
	if after[0] != before[0] || after[1] != before[2] || after[2] != before[1] {
		t.Errorf("flip got %v from %v", after, before)
	}
}

func TestPseudoNormals(t *testing.T) {
	box, err := meshgen.Box(r3.Vec{}, r3.Vec{X: 2, Y: 2, Z: 2})
	if err != nil {
		t.Fatal(err)
	}
	pn := mesh.NewPseudoNormals(box)
	for i, n := range pn.Face {
		if math.Abs(r3.Norm(n)-1) > 1e-12 {
			t.Errorf("face %d normal %v is not unit", i, n)
		}
	}
	for vi, v := range box.Vertices {
		// Every box corner sees three right angles, one per face.
		want := r3.Scale(math.Pi/2, r3.Vec{X: sign(v.X), Y: sign(v.Y), Z: sign(v.Z)})
		if d := r3.Norm(r3.Sub(pn.Vertex[vi], want)); d > 1e-9 {
			t.Errorf("vertex %d pseudo normal %v, want %v", vi, pn.Vertex[vi], want)
		}
	}
	for _, tri := range box.Triangles {
		for j := range tri {
			e := pn.Edge(tri[j], tri[(j+1)%3])
			if r3.Norm(e) == 0 {
				t.Fatalf("missing edge pseudo normal for %d-%d", tri[j], tri[(j+1)%3])
			}
			mid := r3.Scale(0.5, r3.Add(box.Vertices[tri[j]], box.Vertices[tri[(j+1)%3]]))
			if r3.Dot(e, mid) <= 0 {
				t.Errorf("edge pseudo normal %v points inward at %v", e, mid)
			}
		}
	}
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
