// Package signdist computes the unsigned distance from a point to a
// triangle mesh and whether the point is inside the mesh.
package signdist

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"github.com/soypat/sdfvol/octree"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMaxRetries is the number of extra ray directions tried after a degenerate ray.
const DefaultMaxRetries = 8

const (
	// baryTol is the barycentric distance to a triangle edge under which a
	// ray hit is considered ambiguous.
	baryTol = 1e-7
	// grazeTol is the cosine between ray and triangle plane under which a ray
	// is considered to graze the triangle.
	grazeTol = 1e-7
	// relTol scales with the mesh size to give a length tolerance.
	relTol = 1e-9
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxRetries sets how many further ray directions are tried when a ray
// is degenerate before falling back to a majority vote.
func WithMaxRetries(n int) Option {
	return func(e *Evaluator) {
		if n >= 0 {
			e.maxRetries = min(n, len(rayDirs)-1)
		}
	}
}

// Evaluator answers distance and inside queries against a mesh indexed by
// an octree. It is safe for concurrent use by multiple goroutines.
type Evaluator struct {
	m       *mesh.Mesh
	tree    *octree.Tree
	bounds  r3.Box
	winding Winding
	// tris caches triangle corners.
	tris []d3.Triangle
	// unit face normals, zero for degenerate triangles.
	normals    []r3.Vec
	pn         *mesh.PseudoNormals
	maxRetries int
	tolLen     float64
	bufs       sync.Pool
	fallbacks  atomic.Int64
}

// Nearest describes the point of the mesh closest to a query point.
type Nearest struct {
	Dist     float64
	Triangle int
	Point    r3.Vec
	Feature  d3.Feature
}

// New returns an Evaluator for m. tree must index m, if nil it is built with
// default options.
func New(m *mesh.Mesh, tree *octree.Tree, winding Winding, opts ...Option) *Evaluator {
	if tree == nil {
		tree = octree.New(m)
	}
	e := &Evaluator{
		m:          m,
		tree:       tree,
		bounds:     m.Bounds(),
		winding:    winding,
		tris:       make([]d3.Triangle, len(m.Triangles)),
		normals:    make([]r3.Vec, len(m.Triangles)),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	for i := range m.Triangles {
		tri := d3.Triangle(m.Triangle(i))
		e.tris[i] = tri
		n := tri.Normal()
		if l := r3.Norm(n); l > 0 {
			e.normals[i] = r3.Scale(1/l, n)
		}
	}
	if winding == Normals {
		e.pn = mesh.NewPseudoNormals(m)
	}
	if !tree.Empty() {
		e.tolLen = relTol * d3.Max(d3.Box(tree.Bounds()).Size())
	}
	e.bufs.New = func() any {
		b := make([]int, 0, 64)
		return &b
	}
	return e
}

// Winding returns the inside policy of the evaluator.
func (e *Evaluator) Winding() Winding { return e.winding }

// Bounds returns the bounding box of the mesh.
func (e *Evaluator) Bounds() r3.Box { return e.bounds }

// Fallbacks returns how many inside queries ran out of ray retries and were
// decided by majority vote.
func (e *Evaluator) Fallbacks() int64 { return e.fallbacks.Load() }

// Distance returns the unsigned distance from p to the closest point of the
// mesh, or +Inf if the mesh is empty.
func (e *Evaluator) Distance(p r3.Vec) float64 {
	return e.Nearest(p).Dist
}

// Nearest finds the mesh point closest to p with an expanding radius search:
// the initial radius is the distance to the tree bounds plus the leaf size,
// doubled until the best candidate found lies within it. An empty mesh
// returns Dist=+Inf and Triangle=-1.
func (e *Evaluator) Nearest(p r3.Vec) Nearest {
	best := Nearest{Dist: math.Inf(1), Triangle: -1}
	if e.tree.Empty() {
		return best
	}
	root := d3.Box(e.tree.Bounds())
	radius := math.Sqrt(root.Dist2(p)) + e.tree.LeafSize()
	maxRadius := math.Sqrt(root.MaxDist2(p))
	bp := e.bufs.Get().(*[]int)
	defer e.bufs.Put(bp)
	bestDist2 := math.Inf(1)
	for {
		cands := e.tree.AppendCandidatesNear((*bp)[:0], p, radius)
		*bp = cands
		for _, ti := range cands {
			c, feat := e.tris[ti].Closest(p)
			d2 := r3.Norm2(r3.Sub(p, c))
			if d2 < bestDist2 {
				bestDist2 = d2
				best = Nearest{Triangle: ti, Point: c, Feature: feat}
			}
		}
		if bestDist2 <= radius*radius || radius >= maxRadius {
			break
		}
		radius *= 2
	}
	best.Dist = math.Sqrt(bestDist2)
	return best
}

// Inside reports whether p is inside the mesh under the evaluator's winding policy.
func (e *Evaluator) Inside(p r3.Vec) bool {
	if e.tree.Empty() {
		return false
	}
	if e.winding == Normals {
		return e.insideNormals(p, e.Nearest(p))
	}
	return e.insideRays(p)
}

// Query returns the unsigned distance from p to the mesh and whether p is inside.
func (e *Evaluator) Query(p r3.Vec) (dist float64, inside bool) {
	near := e.Nearest(p)
	if near.Triangle < 0 {
		return near.Dist, false
	}
	if e.winding == Normals {
		return near.Dist, e.insideNormals(p, near)
	}
	return near.Dist, e.insideRays(p)
}

// SignedDistance returns the distance from p to the mesh, negated if p is inside.
func (e *Evaluator) SignedDistance(p r3.Vec) float64 {
	d, in := e.Query(p)
	if in {
		return -d
	}
	return d
}

// Evaluate implements sdfvol.SDF3 and is equivalent to SignedDistance.
func (e *Evaluator) Evaluate(p r3.Vec) float64 { return e.SignedDistance(p) }

func (e *Evaluator) insideNormals(p r3.Vec, near Nearest) bool {
	t := e.m.Triangles[near.Triangle]
	var n r3.Vec
	switch near.Feature {
	case d3.FeatureFace:
		n = e.pn.Face[near.Triangle]
	case d3.FeatureE0:
		n = e.pn.Edge(t[0], t[1])
	case d3.FeatureE1:
		n = e.pn.Edge(t[1], t[2])
	case d3.FeatureE2:
		n = e.pn.Edge(t[2], t[0])
	default:
		n = e.pn.Vertex[t[near.Feature-d3.FeatureV0]]
	}
	return r3.Dot(n, r3.Sub(p, near.Point)) < 0
}

// insideRays casts rays along a fixed sequence of directions until one is
// free of ambiguous hits. If every attempt is degenerate the verdicts are
// combined by majority vote, ties counting as outside.
func (e *Evaluator) insideRays(p r3.Vec) bool {
	bp := e.bufs.Get().(*[]int)
	defer e.bufs.Put(bp)
	var votesIn, votesOut int
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		crossings, sum, degenerate := e.castRay(bp, p, rayDirs[attempt])
		var in bool
		switch e.winding {
		case NonZero:
			in = sum != 0
		case Negative:
			in = sum < 0
		default:
			in = crossings%2 == 1
		}
		if !degenerate {
			return in
		}
		if in {
			votesIn++
		} else {
			votesOut++
		}
	}
	e.fallbacks.Add(1)
	return votesIn > votesOut
}

// castRay counts the crossings of the ray p + t*dir, t > 0, with the mesh.
// sum adds +1 for every crossing leaving the front side of a triangle and -1
// for every crossing entering it. degenerate is true when a hit lies on a
// triangle edge or vertex, the ray grazes a triangle plane or p lies on a
// triangle, in which case the counts cannot be trusted.
func (e *Evaluator) castRay(bp *[]int, p, dir r3.Vec) (crossings, sum int, degenerate bool) {
	cands := e.tree.AppendCandidatesAlongRay((*bp)[:0], p, dir)
	*bp = cands
	for _, ti := range cands {
		n := e.normals[ti]
		if n == (r3.Vec{}) {
			// Zero area triangles have no inside and cannot be crossed.
			continue
		}
		tri := &e.tris[ti]
		if math.Abs(r3.Dot(dir, n)) < grazeTol {
			// Parallel to the plane: only a problem if the ray runs within it.
			if math.Abs(r3.Dot(r3.Sub(p, tri[0]), n)) <= e.tolLen {
				degenerate = true
			}
			continue
		}
		hit, ok := tri.IntersectRay(p, dir)
		if !ok {
			continue
		}
		if hit.U < -baryTol || hit.V < -baryTol || hit.U+hit.V > 1+baryTol {
			continue
		}
		if math.Abs(hit.T) <= e.tolLen {
			// Origin on the triangle.
			degenerate = true
			continue
		}
		if hit.T < 0 {
			continue
		}
		if hit.U <= baryTol || hit.V <= baryTol || hit.U+hit.V >= 1-baryTol {
			degenerate = true
		}
		crossings++
		if hit.DirDotN > 0 {
			sum++
		} else {
			sum--
		}
	}
	return crossings, sum, degenerate
}

// rayDirs is a fixed low discrepancy sequence of unit directions.
var rayDirs = func() (dirs [64]r3.Vec) {
	const g1, g2 = 0.7548776662466927, 0.5698402909980532 // plastic number R2 sequence
	for i := range dirs {
		u := math.Mod(0.4123+float64(i+1)*g1, 1)
		v := math.Mod(0.2871+float64(i+1)*g2, 1)
		z := 1 - 2*u
		s := math.Sqrt(1 - z*z)
		phi := 2 * math.Pi * v
		dirs[i] = r3.Vec{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: z}
	}
	return dirs
}()
