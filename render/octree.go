package render

import (
	"errors"
	"io"
	"math"

	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Octree renders the zero level set of an SDF3 with marching tetrahedra,
// skipping octree cubes the surface cannot cross.
type Octree struct {
	dc        dc3
	todo      []cube
	unwritten triangleBuffer
}

type cube struct {
	i [3]int // origin of cube as integers
	n uint   // level of cube, size = 1 << n
}

func (c cube) add(x, y, z int) [3]int {
	return [3]int{c.i[0] + x, c.i[1] + y, c.i[2] + z}
}

// NewOctreeRenderer returns a renderer sampling s with meshCells cells along
// the longest side of its bounds. The culling assumes |s.Evaluate(p)| never
// exceeds the distance from p to the surface.
func NewOctreeRenderer(s sdfvol.SDF3, meshCells int) (*Octree, error) {
	if meshCells < 2 {
		return nil, errors.New("meshCells must be 2 or larger")
	}
	bb := d3.Box(s.Bounds())
	if bb.IsEmpty() || !d3.IsFinite(bb.Min) || !d3.IsFinite(bb.Max) {
		return nil, errors.New("SDF3 bounds empty or not finite")
	}
	longAxis := d3.Max(bb.Size())
	if longAxis <= 0 {
		return nil, errors.New("SDF3 bounds have zero size")
	}
	// Pad the bounds so the boundaries aren't on the object surface.
	bb = bb.Pad(0.005 * longAxis)
	longAxis = d3.Max(bb.Size())
	// Level 1 cubes are cells, two resolution units wide.
	resolution := 0.5 * longAxis / float64(meshCells)
	levels := uint(math.Ceil(math.Log2(longAxis/resolution))) + 1

	divisions := r3.Scale(1/resolution, bb.Size())
	maxCubes := int(divisions.X) * int(divisions.Y) * int(divisions.Z)
	cubes := make([]cube, 1, max(1, maxCubes/64))
	cubes[0] = cube{n: levels - 1}
	sdfvol.Logger().Debug("isosurface octree", "levels", levels, "resolution", resolution)
	return &Octree{
		dc:        newDc3(s, bb.Min, resolution, levels),
		unwritten: triangleBuffer{buf: make([][3]r3.Vec, 0, 64)},
		todo:      cubes,
	}, nil
}

// ReadTriangles writes triangles rendered from the model into dst.
// It returns the number of triangles written and io.EOF when done.
func (oc *Octree) ReadTriangles(dst [][3]r3.Vec) (n int, err error) {
	if len(dst) == 0 {
		return 0, errors.New("cannot write to empty triangle slice")
	}
	if oc.unwritten.Len() > 0 {
		n += oc.unwritten.Read(dst)
		if n == len(dst) {
			return n, nil
		}
	}
	if len(oc.todo) == 0 && oc.unwritten.Len() == 0 {
		return n, io.EOF
	}
	n += oc.readTriangles(dst[n:])
	return n, nil
}

func (oc *Octree) readTriangles(dst [][3]r3.Vec) (n int) {
	processed := 0
	var newCubes []cube
	for _, c := range oc.todo {
		if n == len(dst) {
			break
		}
		if n+maxCellTriangles > len(dst) {
			// Not enough room for a worst case cell.
			var tmp [maxCellTriangles][3]r3.Vec
			nt, cubes := oc.processCube(tmp[:], c)
			oc.unwritten.Write(tmp[:nt])
			newCubes = append(newCubes, cubes...)
			processed++
			break
		}
		nt, cubes := oc.processCube(dst[n:], c)
		newCubes = append(newCubes, cubes...)
		processed++
		n += nt
	}
	oc.todo = append(oc.todo[processed:], newCubes...)
	return n
}

// processCube generates triangles for a cell or the non empty sub cubes of a
// larger cube.
func (oc *Octree) processCube(dst [][3]r3.Vec, c cube) (written int, newCubes []cube) {
	if c.n == 1 {
		var corners [8]r3.Vec
		var values [8]float64
		for i, off := range cellCorners {
			corners[i], values[i] = oc.dc.Evaluate(c.add(2*off[0], 2*off[1], 2*off[2]))
		}
		return cellTriangles(dst, &corners, &values, 0), nil
	}
	n := c.n - 1
	s := 1 << n
	for _, off := range cellCorners {
		candidate := cube{i: c.add(s*off[0], s*off[1], s*off[2]), n: n}
		if !oc.dc.IsEmpty(candidate) {
			newCubes = append(newCubes, candidate)
		}
	}
	return 0, newCubes
}

// dc3 caches SDF3 evaluations on the integer lattice. Neighboring cubes
// share corners so most lookups hit.
type dc3 struct {
	cache      map[[3]int]float64
	origin     r3.Vec  // origin of the overall bounding cube
	resolution float64 // lattice spacing
	hdiag      []float64
	s          sdfvol.SDF3
}

func newDc3(s sdfvol.SDF3, origin r3.Vec, resolution float64, levels uint) dc3 {
	dc := dc3{
		origin:     origin,
		resolution: resolution,
		hdiag:      make([]float64, levels),
		s:          s,
		cache:      make(map[[3]int]float64),
	}
	// cube half diagonal per level.
	for i := range dc.hdiag {
		side := float64(int(1)<<uint(i)) * resolution
		dc.hdiag[i] = 0.5 * math.Sqrt(3*side*side)
	}
	return dc
}

// Evaluate returns the position of lattice point vi and the SDF3 value there.
func (dc *dc3) Evaluate(vi [3]int) (r3.Vec, float64) {
	v := r3.Add(dc.origin, r3.Scale(dc.resolution, r3.Vec{X: float64(vi[0]), Y: float64(vi[1]), Z: float64(vi[2])}))
	if dist, ok := dc.cache[vi]; ok {
		return v, dist
	}
	dist := dc.s.Evaluate(v)
	dc.cache[vi] = dist
	return v, dist
}

// IsEmpty reports whether the surface cannot cross cube c.
func (dc *dc3) IsEmpty(c cube) bool {
	h := 1 << (c.n - 1)
	_, d := dc.Evaluate(c.add(h, h, h))
	return math.Abs(d) >= dc.hdiag[c.n]
}
