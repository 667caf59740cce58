package render

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/soypat/sdfvol/mesh/meshgen"
	"github.com/soypat/sdfvol/signdist"
	"gonum.org/v1/gonum/spatial/r3"
)

type ball struct {
	c r3.Vec
	r float64
}

func (b ball) Evaluate(p r3.Vec) float64 { return r3.Norm(r3.Sub(p, b.c)) - b.r }

func (b ball) Bounds() r3.Box {
	r := r3.Vec{X: b.r, Y: b.r, Z: b.r}
	return r3.Box{Min: r3.Sub(b.c, r), Max: r3.Add(b.c, r)}
}

func checkSphere(t *testing.T, tris [][3]r3.Vec, c r3.Vec, radius, tol float64) {
	t.Helper()
	if len(tris) == 0 {
		t.Fatal("no triangles rendered")
	}
	var area float64
	for i, tri := range tris {
		for _, v := range tri {
			if r := r3.Norm(r3.Sub(v, c)); math.Abs(r-radius) > tol {
				t.Fatalf("triangle %d vertex %v at radius %g", i, v, r)
			}
		}
		n := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
		area += r3.Norm(n) / 2
		if r3.Norm(n) > 1e-9 && r3.Dot(n, r3.Sub(tri[0], c)) <= 0 {
			t.Fatalf("triangle %d faces inward", i)
		}
	}
	want := 4 * math.Pi * radius * radius
	if math.Abs(area-want) > 0.03*want {
		t.Errorf("area %g, want about %g", area, want)
	}
}

func TestOctreeSphere(t *testing.T) {
	b := ball{c: r3.Vec{X: 1, Y: -2, Z: 3}, r: 10}
	oc, err := NewOctreeRenderer(b, 20)
	if err != nil {
		t.Fatal(err)
	}
	tris, err := RenderAll(oc)
	if err != nil {
		t.Fatal(err)
	}
	checkSphere(t, tris, b.c, b.r, 0.1)
}

func TestReadTrianglesSmallBuffer(t *testing.T) {
	b := ball{r: 5}
	oc, _ := NewOctreeRenderer(b, 12)
	all, err := RenderAll(oc)
	if err != nil {
		t.Fatal(err)
	}
	oc, _ = NewOctreeRenderer(b, 12)
	buf := make([][3]r3.Vec, 5)
	total := 0
	for {
		n, err := oc.ReadTriangles(buf)
		total += n
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}
	if total != len(all) {
		t.Errorf("read %d triangles in small chunks, want %d", total, len(all))
	}
	if _, err := oc.ReadTriangles(nil); err == nil {
		t.Error("expected error for empty destination")
	}
}

func TestRendererErrors(t *testing.T) {
	if _, err := NewOctreeRenderer(ball{r: 1}, 1); err == nil {
		t.Error("expected error for a single cell")
	}
	if _, err := NewOctreeRenderer(ball{r: 0}, 8); err == nil {
		t.Error("expected error for zero size bounds")
	}
}

func TestRemeshSignedDistance(t *testing.T) {
	sphere, err := meshgen.Icosphere(r3.Vec{}, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	e := signdist.New(sphere, nil, signdist.EvenOdd)
	oc, err := NewOctreeRenderer(e, 16)
	if err != nil {
		t.Fatal(err)
	}
	m, err := ToMesh(oc)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Triangles) == 0 {
		t.Fatal("empty remesh")
	}
	// Faceting of the subdivided icosahedron keeps it within a few percent of the sphere.
	for i, v := range m.Vertices {
		if r := r3.Norm(v); r < 9.5 || r > 10.1 {
			t.Fatalf("vertex %d at radius %g", i, r)
		}
	}
	for i := range m.Triangles {
		tri := m.Triangle(i)
		n := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
		if r3.Norm(n) > 1e-9 && r3.Dot(n, tri[0]) <= 0 {
			t.Fatalf("triangle %d faces inward", i)
		}
	}
}

func TestTetraCases(t *testing.T) {
	p := [4]r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}}
	var dst [2][3]r3.Vec
	for _, test := range []struct {
		v    [4]float64
		want int
	}{
		{v: [4]float64{1, 1, 1, 1}, want: 0},
		{v: [4]float64{-1, -1, -1, -1}, want: 0},
		{v: [4]float64{-1, 1, 1, 1}, want: 1},
		{v: [4]float64{1, -1, -1, -1}, want: 1},
		{v: [4]float64{-1, -1, 1, 1}, want: 2},
	} {
		v := test.v
		n := tetraTriangles(dst[:], &p, &v, 0)
		if n != test.want {
			t.Errorf("values %v: got %d triangles, want %d", v, n, test.want)
			continue
		}
		for _, tri := range dst[:n] {
			nrm := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
			// Values increase away from the vertices marked negative.
			var grad r3.Vec
			for i := 1; i < 4; i++ {
				grad = r3.Add(grad, r3.Scale(v[i]-v[0], p[i]))
			}
			if r3.Dot(nrm, grad) <= 0 {
				t.Errorf("values %v: triangle %v faces down the gradient", v, tri)
			}
		}
	}
}
