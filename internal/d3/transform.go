package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Transform represents a 3D affine transformation such as the voxel
// index to world mapping of a volume.
// The zero value of Transform is the identity transform.
type Transform struct {
	// in order to make the zero value of Transform represent the identity
	// transform we store it with the identity matrix subtracted.
	// These diagonal elements are subtracted such that
	//  d00 = x00-1, d11 = x11-1, d22 = x22-1
	// where x00, x11, x22 are the matrix diagonal elements.
	d00, x01, x02, x03 float64
	x10, d11, x12, x13 float64
	x20, x21, d22, x23 float64
}

// zeroTransform maps every point to the origin. It is returned as the inverse of singular transforms.
var zeroTransform = Transform{d00: -1, d11: -1, d22: -1}

// NewTransform returns a new Transform type and populates its elements
// with the first three rows of a row-major affine matrix. a must hold
// 12 values or 16 values, in which case the last row is ignored.
func NewTransform(a []float64) Transform {
	if len(a) != 12 && len(a) != 16 {
		panic("Transform is initialized with 12 or 16 values")
	}
	return Transform{
		d00: a[0] - 1, x01: a[1], x02: a[2], x03: a[3],
		x10: a[4], d11: a[5] - 1, x12: a[6], x13: a[7],
		x20: a[8], x21: a[9], d22: a[10] - 1, x23: a[11],
	}
}

// Transform applies the Transform to the argument point
// and returns the result.
func (t Transform) Transform(v r3.Vec) r3.Vec {
	return r3.Add(t.TransformDir(v), r3.Vec{X: t.x03, Y: t.x13, Z: t.x23})
}

// TransformDir applies only the linear part of the Transform, which is
// what displacements such as voxel offsets need.
func (t Transform) TransformDir(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: (t.d00+1)*v.X + t.x01*v.Y + t.x02*v.Z,
		Y: t.x10*v.X + (t.d11+1)*v.Y + t.x12*v.Z,
		Z: t.x20*v.X + t.x21*v.Y + (t.d22+1)*v.Z,
	}
}

// Translate adds Vec to the positional Transform.
func (t Transform) Translate(v r3.Vec) Transform {
	t.x03 += v.X
	t.x13 += v.Y
	t.x23 += v.Z
	return t
}

// Column returns the i'th column of the linear part, that is, the world
// displacement of a unit step along index axis i.
func (t Transform) Column(i int) r3.Vec {
	return t.TransformDir(r3.Vec{X: b2f(i == 0), Y: b2f(i == 1), Z: b2f(i == 2)})
}

// Det returns the determinant of the linear part of the Transform.
func (t Transform) Det() float64 {
	x00, x11, x22 := t.d00+1, t.d11+1, t.d22+1
	return x00*(x11*x22-t.x12*t.x21) -
		t.x01*(t.x10*x22-t.x12*t.x20) +
		t.x02*(t.x10*t.x21-x11*t.x20)
}

// Inv returns the inverse of the transform such that
// t.Inv() * t is the identity Transform.
// If matrix is singular then Inv() returns the zero transform.
func (t Transform) Inv() Transform {
	if t == (Transform{}) {
		return t
	}
	det := t.Det()
	if math.Abs(det) < 1e-16 {
		return zeroTransform
	}
	d := 1 / det
	x00, x11, x22 := t.d00+1, t.d11+1, t.d22+1
	var m Transform
	m.d00 = (x11*x22-t.x12*t.x21)*d - 1
	m.x01 = (t.x02*t.x21 - t.x01*x22) * d
	m.x02 = (t.x01*t.x12 - t.x02*x11) * d
	m.x10 = (t.x12*t.x20 - t.x10*x22) * d
	m.d11 = (x00*x22-t.x02*t.x20)*d - 1
	m.x12 = (t.x02*t.x10 - x00*t.x12) * d
	m.x20 = (t.x10*t.x21 - x11*t.x20) * d
	m.x21 = (t.x01*t.x20 - x00*t.x21) * d
	m.d22 = (x00*x11-t.x01*t.x10)*d - 1
	// Inverse translation is -M^-1 * translation.
	tr := m.TransformDir(r3.Vec{X: t.x03, Y: t.x13, Z: t.x23})
	m.x03, m.x13, m.x23 = -tr.X, -tr.Y, -tr.Z
	return m
}

// Mul multiplies the Transforms a and b and returns the result.
// The result applies b first and then t.
func (t Transform) Mul(b Transform) Transform {
	if t == (Transform{}) {
		return b
	}
	if b == (Transform{}) {
		return t
	}
	var rows [12]float64
	ta, ba := t.SliceCopy(), b.SliceCopy()
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += ta[4*i+k] * ba[4*k+j]
			}
			if j == 3 {
				sum += ta[4*i+3]
			}
			rows[4*i+j] = sum
		}
	}
	return NewTransform(rows[:])
}

// Equals tests the equality of the Transforms to within a tolerance.
func (t Transform) Equals(b Transform, tolerance float64) bool {
	ta, ba := t.SliceCopy(), b.SliceCopy()
	for i := range ta {
		if math.Abs(ta[i]-ba[i]) > tolerance {
			return false
		}
	}
	return true
}

// SliceCopy returns a copy of the Transform's data
// in row major storage format. It returns the 12 elements of the first three rows.
func (t Transform) SliceCopy() []float64 {
	return []float64{
		t.d00 + 1, t.x01, t.x02, t.x03,
		t.x10, t.d11 + 1, t.x12, t.x13,
		t.x20, t.x21, t.d22 + 1, t.x23,
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
