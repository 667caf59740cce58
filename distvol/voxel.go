package distvol

import (
	"cmp"
	"slices"

	"github.com/soypat/sdfvol"
	"gonum.org/v1/gonum/spatial/r3"
)

// VoxelIndex is the integer (i,j,k) position of a voxel. It is comparable
// and may be used as a map key.
type VoxelIndex [3]int

// Add adds two indices. Return v = a + b.
func (a VoxelIndex) Add(b VoxelIndex) VoxelIndex {
	return VoxelIndex{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// Less orders indices by k, then j, then i, which is memory order.
func (a VoxelIndex) Less(b VoxelIndex) bool {
	return a.Compare(b) < 0
}

// Compare returns -1, 0 or +1 following the order of Less.
func (a VoxelIndex) Compare(b VoxelIndex) int {
	if c := cmp.Compare(a[2], b[2]); c != 0 {
		return c
	}
	if c := cmp.Compare(a[1], b[1]); c != 0 {
		return c
	}
	return cmp.Compare(a[0], b[0])
}

// MaxNorm returns the largest absolute component.
func (a VoxelIndex) MaxNorm() int {
	return max(abs(a[0]), abs(a[1]), abs(a[2]))
}

// ToVec converts the index to a float vector.
func (a VoxelIndex) ToVec() r3.Vec {
	return r3.Vec{X: float64(a[0]), Y: float64(a[1]), Z: float64(a[2])}
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// DistVoxOffset is a neighbor offset and its world length.
type DistVoxOffset struct {
	Dist   float64
	Offset VoxelIndex
}

// NeighborOffsets returns every nonzero offset with max-norm at most n, with
// the world length given by the space's affine, sorted by length and then
// by offset order.
func NeighborOffsets(s sdfvol.Space, n int) []DistVoxOffset {
	if n < 1 {
		return nil
	}
	tf := s.Transform()
	side := 2*n + 1
	offs := make([]DistVoxOffset, 0, side*side*side-1)
	for k := -n; k <= n; k++ {
		for j := -n; j <= n; j++ {
			for i := -n; i <= n; i++ {
				if i == 0 && j == 0 && k == 0 {
					continue
				}
				o := VoxelIndex{i, j, k}
				offs = append(offs, DistVoxOffset{
					Dist:   r3.Norm(tf.TransformDir(o.ToVec())),
					Offset: o,
				})
			}
		}
	}
	slices.SortFunc(offs, func(a, b DistVoxOffset) int {
		if c := cmp.Compare(a.Dist, b.Dist); c != 0 {
			return c
		}
		return a.Offset.Compare(b.Offset)
	})
	return offs
}
