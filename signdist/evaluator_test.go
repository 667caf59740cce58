package signdist

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"github.com/soypat/sdfvol/mesh/meshgen"
	"github.com/soypat/sdfvol/octree"
	"gonum.org/v1/gonum/spatial/r3"
)

var _ sdfvol.SDF3 = (*Evaluator)(nil)

func randomPoint(rng *rand.Rand, size float64) r3.Vec {
	return r3.Vec{X: (2*rng.Float64() - 1) * size, Y: (2*rng.Float64() - 1) * size, Z: (2*rng.Float64() - 1) * size}
}

func TestSphereSignedDistance(t *testing.T) {
	const radius = 10
	sphere, err := meshgen.Icosphere(r3.Vec{}, radius, 4)
	if err != nil {
		t.Fatal(err)
	}
	tree := octree.New(sphere)
	rng := rand.New(rand.NewPCG(5, 6))
	for _, w := range []Winding{EvenOdd, NonZero, Negative, Normals} {
		e := New(sphere, tree, w)
		if e.Winding() != w {
			t.Fatalf("got winding %v, want %v", e.Winding(), w)
		}
		for q := 0; q < 300; q++ {
			p := randomPoint(rng, 15)
			r := r3.Norm(p)
			if math.Abs(r-radius) < 0.3 {
				continue
			}
			dist, inside := e.Query(p)
			if math.Abs(dist-math.Abs(r-radius)) > 0.2 {
				t.Fatalf("%v: distance at %v got %g, want about %g", w, p, dist, math.Abs(r-radius))
			}
			wantInside := r < radius && w != Negative
			if inside != wantInside {
				t.Fatalf("%v: inside at %v (r=%g) got %v", w, p, r, inside)
			}
			sd := e.SignedDistance(p)
			if (sd < 0) != inside || math.Abs(sd) != dist || e.Evaluate(p) != sd {
				t.Fatalf("%v: signed distance %g inconsistent with %g, %v", w, sd, dist, inside)
			}
		}
	}
}

func TestFlippedSphereNegative(t *testing.T) {
	sphere, _ := meshgen.Icosphere(r3.Vec{}, 10, 3)
	sphere.Flip()
	for _, w := range []Winding{Negative, NonZero, EvenOdd} {
		e := New(sphere, nil, w)
		if !e.Inside(r3.Vec{X: 1, Y: 2, Z: -3}) {
			t.Errorf("%v: center region of inverted sphere should be inside", w)
		}
		if e.Inside(r3.Vec{X: 12, Y: 2, Z: -3}) {
			t.Errorf("%v: point beyond inverted sphere should be outside", w)
		}
	}
}

func TestDistanceOnSurface(t *testing.T) {
	sphere, _ := meshgen.Icosphere(r3.Vec{X: 3}, 10, 2)
	e := New(sphere, nil, EvenOdd)
	for i, v := range sphere.Vertices {
		if d := e.Distance(v); d > 1e-9 {
			t.Fatalf("vertex %d at distance %g", i, d)
		}
	}
	for i, tri := range sphere.Triangles {
		mid := r3.Scale(0.5, r3.Add(sphere.Vertices[tri[0]], sphere.Vertices[tri[1]]))
		if d := e.Distance(mid); d > 1e-9 {
			t.Fatalf("edge midpoint of triangle %d at distance %g", i, d)
		}
	}
}

func TestNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	m, err := meshgen.Shells(r3.Vec{X: 1, Y: 1}, []float64{3, 7}, 2)
	if err != nil {
		t.Fatal(err)
	}
	e := New(m, nil, EvenOdd)
	for q := 0; q < 300; q++ {
		p := randomPoint(rng, 30)
		best := math.Inf(1)
		for i := range m.Triangles {
			best = math.Min(best, d3.Triangle(m.Triangle(i)).Dist2(p))
		}
		best = math.Sqrt(best)
		near := e.Nearest(p)
		if math.Abs(near.Dist-best) > 1e-9 {
			t.Fatalf("nearest to %v: got %g, brute force %g", p, near.Dist, best)
		}
		if near.Triangle < 0 || math.Abs(r3.Norm(r3.Sub(p, near.Point))-near.Dist) > 1e-9 {
			t.Fatalf("nearest to %v: inconsistent result %+v", p, near)
		}
	}
}

func TestConcentricShells(t *testing.T) {
	m, err := meshgen.Shells(r3.Vec{}, []float64{4, 8}, 3)
	if err != nil {
		t.Fatal(err)
	}
	tree := octree.New(m)
	for _, test := range []struct {
		w                     Winding
		core, between, beyond bool
		// Normals only sees the closest shell.
		closestShell         bool
		nearInner, nearOuter bool
	}{
		{w: EvenOdd, core: false, between: true, beyond: false},
		{w: NonZero, core: true, between: true, beyond: false},
		{w: Negative, core: false, between: false, beyond: false},
		{w: Normals, core: true, beyond: false, closestShell: true, nearInner: false, nearOuter: true},
	} {
		e := New(m, tree, test.w)
		core := r3.Vec{X: 0.31, Y: -0.17, Z: 0.23}
		between := r3.Vec{X: 0.13, Y: 6, Z: 0.27}
		beyond := r3.Vec{X: 11, Y: 0.3, Z: -0.2}
		if got := e.Inside(core); got != test.core {
			t.Errorf("%v: core inside=%v", test.w, got)
		}
		if got := e.Inside(beyond); got != test.beyond {
			t.Errorf("%v: beyond inside=%v", test.w, got)
		}
		if test.closestShell {
			if got := e.Inside(r3.Vec{X: 5, Y: 0.1, Z: 0.2}); got != test.nearInner {
				t.Errorf("%v: near inner shell inside=%v", test.w, got)
			}
			if got := e.Inside(r3.Vec{X: 7, Y: 0.1, Z: 0.2}); got != test.nearOuter {
				t.Errorf("%v: near outer shell inside=%v", test.w, got)
			}
		} else if got := e.Inside(between); got != test.between {
			t.Errorf("%v: between inside=%v", test.w, got)
		}
	}
}

func TestHollowSphere(t *testing.T) {
	m, err := meshgen.HollowSphere(r3.Vec{}, 4, 8, 3)
	if err != nil {
		t.Fatal(err)
	}
	tree := octree.New(m)
	cavity := r3.Vec{X: 0.31, Y: -0.17, Z: 0.23}
	for _, w := range []Winding{EvenOdd, NonZero, Normals} {
		e := New(m, tree, w)
		if e.Inside(cavity) {
			t.Errorf("%v: cavity should be outside", w)
		}
		for _, p := range []r3.Vec{{X: 5, Y: 0.1, Z: 0.2}, {X: 0.2, Y: -7, Z: 0.1}} {
			if !e.Inside(p) {
				t.Errorf("%v: shell point %v should be inside", w, p)
			}
		}
		if d := e.SignedDistance(cavity); d < 3.5 || d > 4 {
			t.Errorf("%v: cavity signed distance %g, want about 3.6", w, d)
		}
	}
}

func TestEmptyMesh(t *testing.T) {
	e := New(&mesh.Mesh{}, nil, EvenOdd)
	d, in := e.Query(r3.Vec{X: 1})
	if !math.IsInf(d, 1) || in {
		t.Errorf("got %g, %v, want +Inf, false", d, in)
	}
	if near := e.Nearest(r3.Vec{}); near.Triangle != -1 {
		t.Errorf("nearest triangle %d, want -1", near.Triangle)
	}
	if e.Inside(r3.Vec{}) {
		t.Error("nothing is inside an empty mesh")
	}
}

func TestDegenerateFallback(t *testing.T) {
	sphere, _ := meshgen.Icosphere(r3.Vec{}, 10, 2)
	e := New(sphere, nil, EvenOdd, WithMaxRetries(2))
	e.Inside(sphere.Vertices[0])
	if e.Fallbacks() == 0 {
		t.Error("query on a mesh vertex should exhaust ray retries")
	}
	before := e.Fallbacks()
	e.Inside(r3.Vec{X: 0.5, Y: 0.25, Z: -0.125})
	if e.Fallbacks() != before {
		t.Error("regular query counted as fallback")
	}
}

func TestParseWinding(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    Winding
		wantErr bool
	}{
		{in: "EVEN_ODD", want: EvenOdd},
		{in: "even-odd", want: EvenOdd},
		{in: "WINDING", want: NonZero},
		{in: "nonzero", want: NonZero},
		{in: " Negative ", want: Negative},
		{in: "normals", want: Normals},
		{in: "odd", wantErr: true},
		{in: "", wantErr: true},
	} {
		got, err := ParseWinding(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("%q: got error %v", test.in, err)
			continue
		}
		if !test.wantErr && got != test.want {
			t.Errorf("%q: got %v, want %v", test.in, got, test.want)
		}
	}
	for w := EvenOdd; w <= Normals; w++ {
		b, err := w.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Winding
		if err := back.UnmarshalText(b); err != nil || back != w {
			t.Errorf("%v: text round trip got %v, %v", w, back, err)
		}
	}
	if _, err := Winding(7).MarshalText(); err == nil {
		t.Error("expected error marshaling invalid winding")
	}
}
