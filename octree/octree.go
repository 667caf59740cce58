// Package octree implements a spatial index over the triangles of a mesh.
// Each node splits its cube into 8 octants and leaves hold ranges of a
// single shared triangle index list. A triangle whose bounding box
// straddles octant boundaries is referenced by every leaf it overlaps.
package octree

import (
	"slices"
	"time"

	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultMaxLeafTriangles is the triangle count at or below which a node is not split.
	DefaultMaxLeafTriangles = 16
	// DefaultMaxDepth is the depth at which nodes become leaves regardless of their triangle count.
	DefaultMaxDepth = 10
)

type config struct {
	maxLeaf  int
	maxDepth int
}

// Option configures octree construction.
type Option func(*config)

// WithMaxLeafTriangles sets the triangle count at or below which a node becomes a leaf.
func WithMaxLeafTriangles(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLeaf = n
		}
	}
}

// WithMaxDepth sets the maximum depth of the tree. The root has depth 0.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		if depth >= 0 {
			c.maxDepth = depth
		}
	}
}

// node of the octree. Nodes are stored in a flat slice; the 8 children of
// an internal node are contiguous starting at child.
type node struct {
	box d3.Box
	// child is the index of the first child, or 0 for leaves since the
	// root can never be a child.
	child int32
	// start and count define the leaf's range in Tree.refs.
	start, count int32
}

func (n *node) isLeaf() bool { return n.child == 0 }

// Tree is an immutable octree over mesh triangles. It is safe for concurrent
// use by multiple goroutines.
type Tree struct {
	nodes []node
	// refs holds triangle indices of all leaves, leaf ranges are contiguous.
	refs     []int32
	depth    int
	leafSize float64
	// eps pads boxes during ray traversal to not lose hits on box faces.
	eps float64
	// triangle count of the indexed mesh.
	ntri int
}

// Stats describes the shape of a Tree.
type Stats struct {
	Nodes      int
	Leaves     int
	Depth      int
	Triangles  int
	References int
}

// New builds an octree over the triangles of m. An empty mesh yields an
// empty tree whose queries return no candidates.
func New(m *mesh.Mesh, opts ...Option) *Tree {
	cfg := config{maxLeaf: DefaultMaxLeafTriangles, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	t := &Tree{ntri: len(m.Triangles)}
	if m.IsEmpty() {
		return t
	}
	start := time.Now()
	bounds := make([]d3.Box, len(m.Triangles))
	items := make([]int32, len(m.Triangles))
	for i := range m.Triangles {
		bounds[i] = d3.Triangle(m.Triangle(i)).Bounds()
		items[i] = int32(i)
	}
	root := d3.Box(m.Bounds())
	// Flat meshes have a zero size axis, the cube fixes that.
	root = root.Cube()
	side := d3.Max(root.Size())
	if side == 0 {
		side = 1
	}
	root = root.Pad(side * 1e-6)
	t.eps = side * 1e-9
	t.leafSize = d3.Max(root.Size())
	b := builder{tree: t, bounds: bounds, cfg: cfg}
	t.nodes = append(t.nodes, node{box: root})
	b.build(0, items, 0)
	st := t.Stats()
	sdfvol.Logger().Debug("octree built",
		"triangles", st.Triangles, "nodes", st.Nodes, "leaves", st.Leaves,
		"depth", st.Depth, "references", st.References, "elapsed", time.Since(start))
	return t
}

type builder struct {
	tree   *Tree
	bounds []d3.Box
	cfg    config
}

func (b *builder) build(idx int32, items []int32, depth int) {
	t := b.tree
	box := t.nodes[idx].box
	t.depth = max(t.depth, depth)
	if len(items) <= b.cfg.maxLeaf || depth >= b.cfg.maxDepth {
		b.leaf(idx, items)
		return
	}
	var children [8][]int32
	progress := false
	for c := range children {
		ob := box.Octant(c)
		for _, it := range items {
			if ob.Overlaps(b.bounds[it]) {
				children[c] = append(children[c], it)
			}
		}
		if len(children[c]) < len(items) {
			progress = true
		}
	}
	if !progress {
		// Every octant overlaps every triangle, splitting further only copies references.
		b.leaf(idx, items)
		return
	}
	first := int32(len(t.nodes))
	for c := 0; c < 8; c++ {
		t.nodes = append(t.nodes, node{box: box.Octant(c)})
	}
	t.nodes[idx].child = first
	for c := int32(0); c < 8; c++ {
		b.build(first+c, children[c], depth+1)
	}
}

func (b *builder) leaf(idx int32, items []int32) {
	t := b.tree
	n := &t.nodes[idx]
	n.start = int32(len(t.refs))
	n.count = int32(len(items))
	t.refs = append(t.refs, items...)
	if len(items) > 0 {
		t.leafSize = min(t.leafSize, d3.Max(n.box.Size()))
	}
}

// Empty reports whether the tree indexes no triangles.
func (t *Tree) Empty() bool { return len(t.nodes) == 0 }

// Bounds returns the root cube of the tree. It contains every triangle.
func (t *Tree) Bounds() r3.Box {
	if t.Empty() {
		return r3.Box(d3.EmptyBox())
	}
	return r3.Box(t.nodes[0].box)
}

// LeafSize returns the side length of the smallest non-empty leaf.
func (t *Tree) LeafSize() float64 { return t.leafSize }

// Stats returns node and reference counts of the tree.
func (t *Tree) Stats() Stats {
	st := Stats{Nodes: len(t.nodes), Depth: t.depth, Triangles: t.ntri, References: len(t.refs)}
	for i := range t.nodes {
		if t.nodes[i].isLeaf() {
			st.Leaves++
		}
	}
	return st
}

// CandidatesNear returns the sorted unique indices of triangles stored in
// leaves whose box intersects the sphere of the given radius around p.
// Every triangle within radius of p is among them.
func (t *Tree) CandidatesNear(p r3.Vec, radius float64) []int {
	return t.AppendCandidatesNear(nil, p, radius)
}

// AppendCandidatesNear is like CandidatesNear but appends to dst, which is
// sorted and deduplicated from len(dst) onward.
func (t *Tree) AppendCandidatesNear(dst []int, p r3.Vec, radius float64) []int {
	if t.Empty() || radius < 0 {
		return dst
	}
	base := len(dst)
	var stack [8*DefaultMaxDepth + 8]int32
	queue := stack[:0]
	queue = append(queue, 0)
	for len(queue) > 0 {
		n := &t.nodes[queue[len(queue)-1]]
		queue = queue[:len(queue)-1]
		if !n.box.OverlapsSphere(p, radius) {
			continue
		}
		if n.isLeaf() {
			for _, ref := range t.refs[n.start : n.start+n.count] {
				dst = append(dst, int(ref))
			}
			continue
		}
		for c := int32(0); c < 8; c++ {
			queue = append(queue, n.child+c)
		}
	}
	return dedupe(dst, base)
}

// CandidatesAlongRay returns the sorted unique indices of triangles stored
// in leaves hit by the ray origin + t*dir for t >= 0. Every triangle
// intersected by the ray is among them. dir need not be normalized.
func (t *Tree) CandidatesAlongRay(origin, dir r3.Vec) []int {
	return t.AppendCandidatesAlongRay(nil, origin, dir)
}

// AppendCandidatesAlongRay is like CandidatesAlongRay but appends to dst.
func (t *Tree) AppendCandidatesAlongRay(dst []int, origin, dir r3.Vec) []int {
	if t.Empty() || dir == (r3.Vec{}) {
		return dst
	}
	base := len(dst)
	invDir := d3.InvElem(dir)
	dst = t.rayVisit(dst, 0, origin, invDir)
	return dedupe(dst, base)
}

// rayVisit appends the leaves under node idx hit by the ray, visiting
// children in the order the ray enters them.
func (t *Tree) rayVisit(dst []int, idx int32, origin, invDir r3.Vec) []int {
	n := &t.nodes[idx]
	if n.isLeaf() {
		for _, ref := range t.refs[n.start : n.start+n.count] {
			dst = append(dst, int(ref))
		}
		return dst
	}
	type entry struct {
		t   float64
		idx int32
	}
	var hits [8]entry
	nhit := 0
	for c := int32(0); c < 8; c++ {
		child := &t.nodes[n.child+c]
		if !child.isLeaf() || child.count > 0 {
			tmin, _, ok := child.box.Pad(t.eps).IntersectRay(origin, invDir)
			if !ok {
				continue
			}
			// Insertion sort by entry parameter.
			j := nhit
			for j > 0 && hits[j-1].t > tmin {
				hits[j] = hits[j-1]
				j--
			}
			hits[j] = entry{t: tmin, idx: n.child + c}
			nhit++
		}
	}
	for _, h := range hits[:nhit] {
		dst = t.rayVisit(dst, h.idx, origin, invDir)
	}
	return dst
}

// dedupe sorts and compacts dst[base:].
func dedupe(dst []int, base int) []int {
	tail := dst[base:]
	slices.Sort(tail)
	tail = slices.Compact(tail)
	return dst[:base+len(tail)]
}
