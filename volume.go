package sdfvol

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/sdfvol/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Space is the geometry of a regular voxel grid: its dimensions and the
// affine mapping voxel indices to world coordinates. Index i varies fastest in memory.
type Space struct {
	Dims [3]int
	// Sform holds the first three rows of the row-major voxel to world affine.
	// World position of voxel (i,j,k) is Sform * [i j k 1].
	Sform [3][4]float64
}

// NewSpace returns a space with the given dimensions, voxel spacing and world
// position of voxel (0,0,0). The axes are aligned with the world axes.
func NewSpace(dims [3]int, spacing, origin r3.Vec) Space {
	return Space{
		Dims: dims,
		Sform: [3][4]float64{
			{spacing.X, 0, 0, origin.X},
			{0, spacing.Y, 0, origin.Y},
			{0, 0, spacing.Z, origin.Z},
		},
	}
}

// SpaceFromBounds returns an axis aligned space with isotropic spacing whose voxel
// centers cover box grown by pad on every side.
func SpaceFromBounds(box r3.Box, spacing, pad float64) (Space, error) {
	if !(spacing > 0) || pad < 0 || math.IsInf(spacing, 0) || math.IsNaN(pad) {
		return Space{}, fmt.Errorf("bad spacing %g or padding %g", spacing, pad)
	}
	b := d3.Box(box)
	if b.IsEmpty() || !d3.IsFinite(b.Min) || !d3.IsFinite(b.Max) {
		return Space{}, errors.New("empty or non-finite bounds")
	}
	b = b.Pad(pad)
	sz := b.Size()
	dims := [3]int{
		int(math.Ceil(sz.X/spacing)) + 1,
		int(math.Ceil(sz.Y/spacing)) + 1,
		int(math.Ceil(sz.Z/spacing)) + 1,
	}
	// Center the grid on the box so leftover spacing is split evenly.
	ext := r3.Vec{X: float64(dims[0]-1) * spacing, Y: float64(dims[1]-1) * spacing, Z: float64(dims[2]-1) * spacing}
	origin := r3.Sub(b.Center(), r3.Scale(0.5, ext))
	return NewSpace(dims, d3.Elem(spacing), origin), nil
}

// Validate returns an error if the space has no voxels or a singular or
// non-finite affine.
func (s Space) Validate() error {
	for i, d := range s.Dims {
		if d <= 0 {
			return fmt.Errorf("dimension %d is %d, must be positive", i, d)
		}
	}
	for _, row := range s.Sform {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.New("non-finite affine")
			}
		}
	}
	if math.Abs(s.Transform().Det()) < 1e-16 {
		return errors.New("singular affine")
	}
	return nil
}

// NumVoxels returns the total voxel count.
func (s Space) NumVoxels() int { return s.Dims[0] * s.Dims[1] * s.Dims[2] }

// Index returns the linear index of voxel (i,j,k).
func (s Space) Index(i, j, k int) int {
	return i + s.Dims[0]*(j+s.Dims[1]*k)
}

// IJK is the inverse of Index.
func (s Space) IJK(idx int) (i, j, k int) {
	i = idx % s.Dims[0]
	idx /= s.Dims[0]
	j = idx % s.Dims[1]
	k = idx / s.Dims[1]
	return i, j, k
}

// InBounds reports whether (i,j,k) is a voxel of the space.
func (s Space) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < s.Dims[0] && j < s.Dims[1] && k < s.Dims[2]
}

// Transform returns the voxel to world affine.
func (s Space) Transform() d3.Transform {
	return d3.NewTransform(s.Affine())
}

// Affine returns the 12 row-major values of Sform.
func (s Space) Affine() []float64 {
	a := make([]float64, 0, 12)
	for _, row := range s.Sform {
		a = append(a, row[:]...)
	}
	return a
}

// IndexToWorld returns the world position of the center of voxel (i,j,k).
func (s Space) IndexToWorld(i, j, k int) r3.Vec {
	return s.IndexToWorldVec(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)})
}

// IndexToWorldVec maps a fractional voxel index to world coordinates.
func (s Space) IndexToWorldVec(ijk r3.Vec) r3.Vec {
	m := &s.Sform
	return r3.Vec{
		X: m[0][0]*ijk.X + m[0][1]*ijk.Y + m[0][2]*ijk.Z + m[0][3],
		Y: m[1][0]*ijk.X + m[1][1]*ijk.Y + m[1][2]*ijk.Z + m[1][3],
		Z: m[2][0]*ijk.X + m[2][1]*ijk.Y + m[2][2]*ijk.Z + m[2][3],
	}
}

// WorldToIndex returns the fractional voxel index of a world position.
func (s Space) WorldToIndex(p r3.Vec) r3.Vec {
	return s.Transform().Inv().Transform(p)
}

// Spacing returns the world length of a unit step along each index axis.
func (s Space) Spacing() r3.Vec {
	m := &s.Sform
	return r3.Vec{
		X: math.Sqrt(m[0][0]*m[0][0] + m[1][0]*m[1][0] + m[2][0]*m[2][0]),
		Y: math.Sqrt(m[0][1]*m[0][1] + m[1][1]*m[1][1] + m[2][1]*m[2][1]),
		Z: math.Sqrt(m[0][2]*m[0][2] + m[1][2]*m[1][2] + m[2][2]*m[2][2]),
	}
}

// Bounds returns the world bounding box of all voxel centers.
func (s Space) Bounds() r3.Box {
	b := d3.EmptyBox()
	hi := [3]int{s.Dims[0] - 1, s.Dims[1] - 1, s.Dims[2] - 1}
	for c := 0; c < 8; c++ {
		var ijk [3]int
		for ax := 0; ax < 3; ax++ {
			if c&(1<<ax) != 0 {
				ijk[ax] = hi[ax]
			}
		}
		b = b.Include(s.IndexToWorld(ijk[0], ijk[1], ijk[2]))
	}
	return r3.Box(b)
}

// Equal reports whether both spaces have the same dimensions and their affines
// agree to within tol.
func (s Space) Equal(o Space, tol float64) bool {
	return s.Dims == o.Dims && s.Transform().Equals(o.Transform(), tol)
}

// Volume is a scalar float32 image over a Space.
type Volume struct {
	Space
	Data []float32
}

// NewVolume allocates a zeroed volume over s.
func NewVolume(s Space) (*Volume, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Volume{Space: s, Data: make([]float32, s.NumVoxels())}, nil
}

// At returns the value of voxel (i,j,k).
func (v *Volume) At(i, j, k int) float32 { return v.Data[v.Index(i, j, k)] }

// Set sets the value of voxel (i,j,k).
func (v *Volume) Set(i, j, k int, f float32) { v.Data[v.Index(i, j, k)] = f }

// Fill sets every voxel to f.
func (v *Volume) Fill(f float32) {
	for i := range v.Data {
		v.Data[i] = f
	}
}

// Summary holds descriptive statistics of a volume.
type Summary struct {
	Min, Max     float32
	Mean, StdDev float64
	// Negative is the number of voxels with a value below zero.
	Negative int
	// NaN is the number of NaN voxels, excluded from the other fields.
	NaN int
}

func (s Summary) String() string {
	return fmt.Sprintf("min=%g max=%g mean=%.4g std=%.4g negative=%d nan=%d",
		s.Min, s.Max, s.Mean, s.StdDev, s.Negative, s.NaN)
}

// Summarize returns descriptive statistics of the volume data.
func (v *Volume) Summarize() Summary {
	sum := Summary{Min: math32.Inf(1), Max: math32.Inf(-1)}
	x := make([]float64, 0, len(v.Data))
	for _, f := range v.Data {
		if math32.IsNaN(f) {
			sum.NaN++
			continue
		}
		sum.Min = math32.Min(sum.Min, f)
		sum.Max = math32.Max(sum.Max, f)
		if f < 0 {
			sum.Negative++
		}
		x = append(x, float64(f))
	}
	if len(x) == 0 {
		return Summary{NaN: sum.NaN}
	}
	if len(x) == 1 {
		sum.Mean = x[0]
		return sum
	}
	sum.Mean, sum.StdDev = stat.MeanStdDev(x, nil)
	return sum
}
