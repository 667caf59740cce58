package sdfvol

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SDF3 is the interface to a 3d signed distance function object.
type SDF3 interface {
	// Evaluate takes a point in 3D space as input and returns
	// the minimum distance of the SDF3 to the point. The distance
	// is negative if the point is contained within the SDF3.
	Evaluate(p r3.Vec) float64
	// Bounds returns the bounding box that completely contains
	// the SDF3.
	Bounds() r3.Box
}

// Sample evaluates s at the world position of every voxel of dst, without any
// approximation. It is the brute force reference for distance volumes and checks
// ctx once per slice.
func Sample(ctx context.Context, s SDF3, dst *Volume) error {
	if s == nil || dst == nil {
		return errors.New("nil SDF3 or destination volume")
	}
	nx, ny, nz := dst.Dims[0], dst.Dims[1], dst.Dims[2]
	for k := 0; k < nz; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				d := s.Evaluate(dst.IndexToWorld(i, j, k))
				if math.IsInf(d, 0) {
					d = math.Copysign(math.MaxFloat32, d)
				}
				dst.Set(i, j, k, float32(d))
			}
		}
	}
	return nil
}
