package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Feature identifies the part of a triangle a closest point lies on.
type Feature int

const (
	FeatureV0 Feature = iota
	FeatureV1
	FeatureV2
	FeatureE0 // edge V0-V1
	FeatureE1 // edge V1-V2
	FeatureE2 // edge V2-V0
	FeatureFace
)

// IsVertex reports whether the feature is one of the triangle's corners.
func (f Feature) IsVertex() bool { return f <= FeatureV2 }

// IsEdge reports whether the feature is one of the triangle's edges.
func (f Feature) IsEdge() bool { return f >= FeatureE0 && f <= FeatureE2 }

// Triangle is a triangle in 3D space given by its three corners.
type Triangle [3]r3.Vec

// Normal returns the unnormalized face normal (V1-V0)x(V2-V0), whose length is twice the area.
func (t Triangle) Normal() r3.Vec {
	return r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
}

// Bounds returns the axis aligned bounding box of the triangle.
func (t Triangle) Bounds() Box {
	return Box{
		Min: MinElem(t[2], MinElem(t[0], t[1])),
		Max: MaxElem(t[2], MaxElem(t[0], t[1])),
	}
}

// Closest returns closest point on the triangle to argument point p and the
// triangle feature it lies on. Degenerate triangles are handled and yield
// the closest point on the segment or point they collapse to.
//
// based on Geometric Tool's algorithm for distance between a point and
// a solid triangle, licensed under the Boost Software License.
func (t Triangle) Closest(p r3.Vec) (r3.Vec, Feature) {
	diff := r3.Sub(p, t[0])
	edge0 := r3.Sub(t[1], t[0])
	edge1 := r3.Sub(t[2], t[0])
	a00 := r3.Dot(edge0, edge0)
	a01 := r3.Dot(edge0, edge1)
	a11 := r3.Dot(edge1, edge1)
	b0 := -r3.Dot(diff, edge0)
	b1 := -r3.Dot(diff, edge1)

	f00 := b0
	f10 := b0 + a00
	f01 := b0 + a01

	var p0, p1, st [2]float64
	var dt1, h0, h1 float64
	switch {
	case f00 >= 0:
		if f01 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		p0 = [2]float64{0, f00 / (f00 - f01)}
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		dt1 = p1[1] - p0[1]
		h0 = dt1 * (a11*p0[1] + b1)
		if h0 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		h1 = dt1 * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}
	case f01 <= 0:
		if f10 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
			break
		}
		p0 = [2]float64{f00 / (f00 - f10), 0}
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		h0 = p1[1] * (a01*p0[0] + b1)
		if h0 >= 0 {
			st = p0
			break
		}
		h1 = p1[1] * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}
	case f10 <= 0:
		p0 = [2]float64{0, f00 / (f00 - f01)}
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		dt1 = p1[1] - p0[1]
		h0 = dt1 * (a11*p0[1] + b1)
		if h0 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		h1 = dt1 * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}
	default:
		p0 = [2]float64{f00 / (f00 - f10), 0}
		p1 = [2]float64{0, f00 / (f00 - f01)}
		h0 = p1[1] * (a01*p0[0] + b1)
		if h0 >= 0 {
			st = p0
			break
		}
		h1 = p1[1] * (a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge02(a11, b1)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}
	}
	closest := r3.Add(t[0], r3.Add(r3.Scale(st[0], edge0), r3.Scale(st[1], edge1)))
	return closest, barycentricFeature(1-st[0]-st[1], st[0], st[1])
}

// Dist2 returns the squared distance from p to the closest point on the triangle.
func (t Triangle) Dist2(p r3.Vec) float64 {
	c, _ := t.Closest(p)
	return r3.Norm2(r3.Sub(p, c))
}

func minEdge02(a11, b1 float64) (p [2]float64) {
	switch {
	case b1 >= 0:
		p[1] = 0
	case a11+b1 <= 0:
		p[1] = 1
	default:
		p[1] = -b1 / a11
	}
	return p
}

func minEdge12(a01, a11, b1, f10, f01 float64) (p [2]float64) {
	h0 := a01 + b1 - f10
	if h0 >= 0 {
		p[1] = 0
	} else {
		h1 := a11 + b1 - f01
		if h1 <= 0 {
			p[1] = 1
		} else {
			p[1] = h0 / (h0 - h1)
		}
	}
	p[0] = 1 - p[1]
	return p
}

func minInterior(p0 [2]float64, h0 float64, p1 [2]float64, h1 float64) (p [2]float64) {
	z := h0 / (h0 - h1)
	omz := 1 - z
	p[0] = omz*p0[0] + z*p1[0]
	p[1] = omz*p0[1] + z*p1[1]
	return p
}

// barycentricFeature classifies barycentric weights w0,w1,w2 of V0,V1,V2.
func barycentricFeature(w0, w1, w2 float64) Feature {
	const tol = 1e-12
	z0, z1, z2 := w0 <= tol, w1 <= tol, w2 <= tol
	switch {
	case z1 && z2:
		return FeatureV0
	case z0 && z2:
		return FeatureV1
	case z0 && z1:
		return FeatureV2
	case z2:
		return FeatureE0
	case z0:
		return FeatureE1
	case z1:
		return FeatureE2
	}
	return FeatureFace
}

// RayHit holds the result of a ray/triangle intersection.
type RayHit struct {
	// T is the ray parameter of the hit point origin + T*dir.
	T float64
	// U and V are the barycentric weights of V1 and V2 at the hit point.
	U, V float64
	// DirDotN is dir . Normal(). It is positive when the ray crosses from the
	// back side to the front (normal) side, as when exiting an outward facing
	// closed surface.
	DirDotN float64
}

// IntersectRay intersects the ray origin+t*dir, t in (-inf, inf), with the plane of
// the triangle using the Möller-Trumbore formulation. ok is false when the ray
// is parallel to the plane. Callers decide whether U, V and T lie inside their
// acceptance range so near-edge hits can be detected instead of silently dropped.
func (t Triangle) IntersectRay(origin, dir r3.Vec) (hit RayHit, ok bool) {
	e1 := r3.Sub(t[1], t[0])
	e2 := r3.Sub(t[2], t[0])
	pvec := r3.Cross(dir, e2)
	det := r3.Dot(e1, pvec)
	if det == 0 || math.IsNaN(det) {
		return hit, false
	}
	inv := 1 / det
	tvec := r3.Sub(origin, t[0])
	hit.U = r3.Dot(tvec, pvec) * inv
	qvec := r3.Cross(tvec, e1)
	hit.V = r3.Dot(dir, qvec) * inv
	hit.T = r3.Dot(e2, qvec) * inv
	// e1.(dir x e2) == -dir.(e1 x e2).
	hit.DirDotN = -det
	return hit, true
}
