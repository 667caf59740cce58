package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// d3.Box is a 3d bounding box.
type Box r3.Box

// EmptyBox returns an inverted box that any Include call will overwrite.
func EmptyBox() Box {
	return Box{Min: Elem(math.MaxFloat64), Max: Elem(-math.MaxFloat64)}
}

// NewBox creates a 3d box with a given center and size.
func NewBox(center, size r3.Vec) Box {
	half := r3.Scale(0.5, size)
	return Box{Min: r3.Sub(center, half), Max: r3.Add(center, half)}
}

// IsEmpty reports whether the box was never extended (Min > Max on any axis).
func (a Box) IsEmpty() bool {
	return a.Min.X > a.Max.X || a.Min.Y > a.Max.Y || a.Min.Z > a.Max.Z
}

// Equals test the equality of 3d boxes.
func (a Box) Equals(b Box, tol float64) bool {
	return EqualWithin(a.Min, b.Min, tol) && EqualWithin(a.Max, b.Max, tol)
}

// Extend returns a box enclosing two 3d boxes.
func (a Box) Extend(b Box) Box {
	return Box{
		Min: MinElem(a.Min, b.Min),
		Max: MaxElem(a.Max, b.Max),
	}
}

// Include enlarges a 3d box to include a point.
func (a Box) Include(v r3.Vec) Box {
	return Box{
		Min: MinElem(a.Min, v),
		Max: MaxElem(a.Max, v),
	}
}

// Size returns the size of a 3d box.
func (a Box) Size() r3.Vec {
	return r3.Sub(a.Max, a.Min)
}

// Center returns the center of a 3d box.
func (a Box) Center() r3.Vec {
	return r3.Add(a.Min, r3.Scale(0.5, a.Size()))
}

// Pad returns the box grown by d on every side.
func (a Box) Pad(d float64) Box {
	return Box{Min: r3.Sub(a.Min, Elem(d)), Max: r3.Add(a.Max, Elem(d))}
}

// Cube returns the smallest cube sharing the box center that contains the box.
func (a Box) Cube() Box {
	side := Max(a.Size())
	return NewBox(a.Center(), Elem(side))
}

// Contains checks if the 3d box contains the given vector (considering bounds as inside).
func (a Box) Contains(v r3.Vec) bool {
	return a.Min.X <= v.X && a.Min.Y <= v.Y && a.Min.Z <= v.Z &&
		v.X <= a.Max.X && v.Y <= a.Max.Y && v.Z <= a.Max.Z
}

// Overlaps reports whether two boxes share at least one point. Touching boxes overlap.
func (a Box) Overlaps(b Box) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y &&
		a.Min.Z <= b.Max.Z && b.Min.Z <= a.Max.Z
}

// Octant returns the i'th of the eight boxes obtained by splitting the box at its
// center. Bit 0 of i selects the upper X half, bit 1 upper Y and bit 2 upper Z.
func (a Box) Octant(i int) Box {
	c := a.Center()
	b := a
	if i&1 != 0 {
		b.Min.X = c.X
	} else {
		b.Max.X = c.X
	}
	if i&2 != 0 {
		b.Min.Y = c.Y
	} else {
		b.Max.Y = c.Y
	}
	if i&4 != 0 {
		b.Min.Z = c.Z
	} else {
		b.Max.Z = c.Z
	}
	return b
}

// Vertices returns a slice of 3d box corner vertices.
func (a Box) Vertices() Set {
	v := make([]r3.Vec, 8)
	v[0] = a.Min
	v[1] = r3.Vec{X: a.Min.X, Y: a.Min.Y, Z: a.Max.Z}
	v[2] = r3.Vec{X: a.Min.X, Y: a.Max.Y, Z: a.Min.Z}
	v[3] = r3.Vec{X: a.Min.X, Y: a.Max.Y, Z: a.Max.Z}
	v[4] = r3.Vec{X: a.Max.X, Y: a.Min.Y, Z: a.Min.Z}
	v[5] = r3.Vec{X: a.Max.X, Y: a.Min.Y, Z: a.Max.Z}
	v[6] = r3.Vec{X: a.Max.X, Y: a.Max.Y, Z: a.Min.Z}
	v[7] = a.Max
	return v
}

// Dist2 returns the squared distance from p to the closest point of the box.
// Points within the box have distance 0.
func (a Box) Dist2(p r3.Vec) float64 {
	// https://math.stackexchange.com/questions/2133217/minimal-distance-to-a-cube-in-2d-and-3d-from-a-point-lying-outside
	dx := math.Max(0, math.Max(p.X-a.Max.X, a.Min.X-p.X))
	dy := math.Max(0, math.Max(p.Y-a.Max.Y, a.Min.Y-p.Y))
	dz := math.Max(0, math.Max(p.Z-a.Max.Z, a.Min.Z-p.Z))
	return dx*dx + dy*dy + dz*dz
}

// MaxDist2 returns the squared distance from p to the farthest corner of the box.
func (a Box) MaxDist2(p r3.Vec) float64 {
	dx := math.Max(math.Abs(p.X-a.Min.X), math.Abs(p.X-a.Max.X))
	dy := math.Max(math.Abs(p.Y-a.Min.Y), math.Abs(p.Y-a.Max.Y))
	dz := math.Max(math.Abs(p.Z-a.Min.Z), math.Abs(p.Z-a.Max.Z))
	return dx*dx + dy*dy + dz*dz
}

// OverlapsSphere reports whether the sphere centered at p with radius r touches the box.
func (a Box) OverlapsSphere(p r3.Vec, r float64) bool {
	return a.Dist2(p) <= r*r
}

// IntersectRay performs the slab test of the ray origin+t*dir against the box.
// invDir holds the componentwise reciprocal of the ray direction, which may contain
// infinities for axis-parallel rays. It returns the parametric entry and exit
// of the ray and whether the ray hits the box for some t >= 0.
func (a Box) IntersectRay(origin, invDir r3.Vec) (tmin, tmax float64, hit bool) {
	tmin, tmax = 0, math.Inf(1)
	tmin, tmax = slab(origin.X, invDir.X, a.Min.X, a.Max.X, tmin, tmax)
	tmin, tmax = slab(origin.Y, invDir.Y, a.Min.Y, a.Max.Y, tmin, tmax)
	tmin, tmax = slab(origin.Z, invDir.Z, a.Min.Z, a.Max.Z, tmin, tmax)
	return tmin, tmax, tmin <= tmax
}

func slab(o, inv, lo, hi, tmin, tmax float64) (float64, float64) {
	if math.IsInf(inv, 0) {
		// Ray parallel to slab.
		if o < lo || o > hi {
			return 1, 0
		}
		return tmin, tmax
	}
	t1 := (lo - o) * inv
	t2 := (hi - o) * inv
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	return math.Max(tmin, t1), math.Min(tmax, t2)
}
