package octree

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"github.com/soypat/sdfvol/mesh/meshgen"
	"gonum.org/v1/gonum/spatial/r3"
)

// randomMesh returns n small random triangles inside the cube [-size,size]^3.
func randomMesh(rng *rand.Rand, n int, size float64) *mesh.Mesh {
	m := &mesh.Mesh{}
	rv := func() r3.Vec {
		return r3.Vec{X: (2*rng.Float64() - 1) * size, Y: (2*rng.Float64() - 1) * size, Z: (2*rng.Float64() - 1) * size}
	}
	for i := 0; i < n; i++ {
		c := rv()
		base := len(m.Vertices)
		for j := 0; j < 3; j++ {
			m.Vertices = append(m.Vertices, r3.Add(c, r3.Scale(0.1, rv())))
		}
		m.Triangles = append(m.Triangles, [3]int{base, base + 1, base + 2})
	}
	return m
}

func TestCandidatesNear(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	m := randomMesh(rng, 2000, 10)
	tree := New(m)
	if tree.Empty() {
		t.Fatal("tree of non-empty mesh is empty")
	}
	for q := 0; q < 200; q++ {
		p := r3.Vec{X: 24*rng.Float64() - 12, Y: 24*rng.Float64() - 12, Z: 24*rng.Float64() - 12}
		radius := 3 * rng.Float64()
		got := tree.CandidatesNear(p, radius)
		if !slices.IsSorted(got) || len(slices.Compact(slices.Clone(got))) != len(got) {
			t.Fatalf("candidates not sorted and unique: %v", got)
		}
		for i := range m.Triangles {
			if d3.Triangle(m.Triangle(i)).Dist2(p) > radius*radius {
				continue
			}
			if _, found := slices.BinarySearch(got, i); !found {
				t.Fatalf("query %d: triangle %d within %g of %v not among candidates", q, i, radius, p)
			}
		}
	}
	if got := tree.CandidatesNear(r3.Vec{X: 100}, 1); len(got) != 0 {
		t.Errorf("far query got %d candidates", len(got))
	}
}

func TestCandidatesAlongRay(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	m := randomMesh(rng, 2000, 10)
	tree := New(m)
	total := 0
	for q := 0; q < 200; q++ {
		origin := r3.Vec{X: 24*rng.Float64() - 12, Y: 24*rng.Float64() - 12, Z: 24*rng.Float64() - 12}
		dir := r3.Vec{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
		got := tree.CandidatesAlongRay(origin, dir)
		if !slices.IsSorted(got) {
			t.Fatalf("candidates not sorted: %v", got)
		}
		for i := range m.Triangles {
			hit, ok := d3.Triangle(m.Triangle(i)).IntersectRay(origin, dir)
			if !ok || hit.T < 0 || hit.U < 1e-9 || hit.V < 1e-9 || hit.U+hit.V > 1-1e-9 {
				continue
			}
			total++
			if _, found := slices.BinarySearch(got, i); !found {
				t.Fatalf("query %d: triangle %d hit at t=%g not among candidates", q, i, hit.T)
			}
		}
	}
	if total == 0 {
		t.Error("no ray hit any triangle, test is vacuous")
	}
	// Axis aligned rays exercise infinite inverse direction components.
	sphere, err := meshgen.Icosphere(r3.Vec{}, 5, 3)
	if err != nil {
		t.Fatal(err)
	}
	st := New(sphere)
	origin := r3.Vec{X: 0.0123, Y: 0.0371, Z: -0.0219}
	for _, dir := range []r3.Vec{{X: 1}, {Y: -1}, {Z: 1}} {
		got := st.CandidatesAlongRay(origin, dir)
		hits := 0
		for _, i := range got {
			hit, ok := d3.Triangle(sphere.Triangle(i)).IntersectRay(origin, dir)
			if ok && hit.T >= 0 && hit.U >= 0 && hit.V >= 0 && hit.U+hit.V <= 1 {
				hits++
			}
		}
		if hits == 0 {
			t.Errorf("ray along %v from sphere center found no crossing", dir)
		}
	}
	if got := tree.CandidatesAlongRay(r3.Vec{}, r3.Vec{}); len(got) != 0 {
		t.Errorf("zero direction got %d candidates", len(got))
	}
}

func TestAppendKeepsPrefix(t *testing.T) {
	sphere, _ := meshgen.Icosphere(r3.Vec{}, 5, 2)
	tree := New(sphere)
	dst := []int{99, 3}
	got := tree.AppendCandidatesNear(dst, r3.Vec{X: 5}, 1)
	if got[0] != 99 || got[1] != 3 || len(got) <= 2 {
		t.Errorf("prefix modified or nothing appended: %v", got[:min(len(got), 4)])
	}
	if !slices.IsSorted(got[2:]) {
		t.Error("appended tail not sorted")
	}
}

func TestEmptyTree(t *testing.T) {
	tree := New(&mesh.Mesh{})
	if !tree.Empty() {
		t.Fatal("tree of empty mesh not empty")
	}
	if got := tree.CandidatesNear(r3.Vec{}, 1e9); len(got) != 0 {
		t.Errorf("got %d candidates", len(got))
	}
	if got := tree.CandidatesAlongRay(r3.Vec{}, r3.Vec{X: 1}); len(got) != 0 {
		t.Errorf("got %d candidates", len(got))
	}
	if st := tree.Stats(); st != (Stats{}) {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestStats(t *testing.T) {
	sphere, err := meshgen.Icosphere(r3.Vec{}, 5, 4)
	if err != nil {
		t.Fatal(err)
	}
	tree := New(sphere)
	st := tree.Stats()
	if st.Triangles != 5120 || st.References < st.Triangles {
		t.Errorf("unexpected stats %+v", st)
	}
	if (st.Nodes-1)%8 != 0 || st.Leaves != 7*(st.Nodes-1)/8+1 {
		t.Errorf("node and leaf counts inconsistent: %+v", st)
	}
	if st.Depth == 0 || st.Depth > DefaultMaxDepth {
		t.Errorf("depth %d out of range", st.Depth)
	}
	bb := tree.Bounds()
	for _, v := range sphere.Vertices {
		if !d3.Box(bb).Contains(v) {
			t.Fatalf("vertex %v outside tree bounds %v", v, bb)
		}
	}
	if tree.LeafSize() <= 0 || tree.LeafSize() > d3.Max(d3.Box(bb).Size()) {
		t.Errorf("leaf size %g", tree.LeafSize())
	}

	shallow := New(sphere, WithMaxDepth(1), WithMaxLeafTriangles(4))
	if d := shallow.Stats().Depth; d != 1 {
		t.Errorf("depth limited tree has depth %d", d)
	}
	flat := New(sphere, WithMaxDepth(0))
	if st := flat.Stats(); st.Nodes != 1 || st.References != 5120 {
		t.Errorf("root only tree stats %+v", st)
	}
}

func BenchmarkCandidatesNear(b *testing.B) {
	sphere, err := meshgen.Icosphere(r3.Vec{}, 10, 5)
	if err != nil {
		b.Fatal(err)
	}
	tree := New(sphere)
	rng := rand.New(rand.NewPCG(9, 10))
	queries := make([]r3.Vec, 1024)
	for i := range queries {
		queries[i] = r3.Vec{X: 24*rng.Float64() - 12, Y: 24*rng.Float64() - 12, Z: 24*rng.Float64() - 12}
	}
	var dst []int
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst = tree.AppendCandidatesNear(dst[:0], queries[i%len(queries)], 0.5)
	}
}

func BenchmarkCandidatesAlongRay(b *testing.B) {
	sphere, err := meshgen.Icosphere(r3.Vec{}, 10, 5)
	if err != nil {
		b.Fatal(err)
	}
	tree := New(sphere)
	rng := rand.New(rand.NewPCG(11, 12))
	origins := make([]r3.Vec, 1024)
	dirs := make([]r3.Vec, len(origins))
	for i := range origins {
		origins[i] = r3.Vec{X: 16*rng.Float64() - 8, Y: 16*rng.Float64() - 8, Z: 16*rng.Float64() - 8}
		dirs[i] = r3.Vec{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
	}
	var dst []int
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % len(origins)
		dst = tree.AppendCandidatesAlongRay(dst[:0], origins[j], dirs[j])
	}
}
