package distvol

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/soypat/sdfvol/signdist"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidParams is returned when parameters or inputs fail validation.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrSpaceMismatch is returned when the ROI volume does not share the
	// space of the distance volume.
	ErrSpaceMismatch = errors.New("ROI volume space does not match output volume")
)

// ROIPolicy selects which voxels are set to 1 in the ROI volume.
type ROIPolicy int

const (
	// ROIInside marks voxels with a value that are inside the surface.
	ROIInside ROIPolicy = iota
	// ROIComputed marks every voxel that received a distance value, inside or out.
	ROIComputed
)

func (r ROIPolicy) String() string {
	switch r {
	case ROIInside:
		return "inside"
	case ROIComputed:
		return "computed"
	}
	return fmt.Sprintf("ROIPolicy(%d)", int(r))
}

// PointEvaluator returns the unsigned distance from p to a surface and
// whether p is inside it. It must be safe for concurrent use.
// *signdist.Evaluator implements it.
type PointEvaluator interface {
	Query(p r3.Vec) (dist float64, inside bool)
}

// Params controls signed distance volume generation.
type Params struct {
	// FillValue is written to voxels beyond ApproxLimit or never reached.
	FillValue float32
	// ExactLimit is the distance from a triangle's bounding box within which
	// voxel centers are evaluated exactly.
	ExactLimit float64
	// ApproxLimit is the largest distance written. Distances beyond it are
	// replaced by FillValue. Must be at least ExactLimit.
	ApproxLimit float64
	// ApproxNeighborhood is the max-norm radius in voxels of the
	// neighborhood approximate distances are propagated over.
	ApproxNeighborhood int
	// Winding decides inside or outside for exact voxels.
	Winding signdist.Winding
	// ROI selects the voxels marked in the ROI volume.
	ROI ROIPolicy
	// Workers is the number of goroutines. Zero means GOMAXPROCS.
	Workers int
	// BatchSize is the number of voxels handed to a worker at a time, which
	// is also the granularity of cancellation and progress. Zero means 256.
	BatchSize int
	// Progress, if set, is called with the completed fraction in [0,1].
	// Calls are serialized and non-decreasing; the last call reports 1.
	Progress func(frac float64)
	// Evaluator overrides the mesh evaluator built by Create. Used to wrap or
	// instrument the exact tier.
	Evaluator PointEvaluator
}

// DefaultParams returns the default parameters.
func DefaultParams() Params {
	return Params{
		FillValue:          0,
		ExactLimit:         5,
		ApproxLimit:        20,
		ApproxNeighborhood: 2,
		Winding:            signdist.EvenOdd,
		ROI:                ROIInside,
	}
}

// Validate returns an error wrapping ErrInvalidParams if the parameters are unusable.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.ExactLimit) || math.IsInf(p.ExactLimit, 0):
		return fmt.Errorf("%w: non-finite exact limit %g", ErrInvalidParams, p.ExactLimit)
	case math.IsNaN(p.ApproxLimit) || math.IsInf(p.ApproxLimit, 0):
		return fmt.Errorf("%w: non-finite approximate limit %g", ErrInvalidParams, p.ApproxLimit)
	case p.ExactLimit < 0:
		return fmt.Errorf("%w: negative exact limit %g", ErrInvalidParams, p.ExactLimit)
	case p.ApproxLimit < p.ExactLimit:
		return fmt.Errorf("%w: approximate limit %g smaller than exact limit %g", ErrInvalidParams, p.ApproxLimit, p.ExactLimit)
	case p.ApproxNeighborhood < 1:
		return fmt.Errorf("%w: approximate neighborhood %d must be at least 1", ErrInvalidParams, p.ApproxNeighborhood)
	case p.FillValue != p.FillValue:
		return fmt.Errorf("%w: NaN fill value", ErrInvalidParams)
	case !p.Winding.Valid():
		return fmt.Errorf("%w: %v", ErrInvalidParams, p.Winding)
	case p.ROI != ROIInside && p.ROI != ROIComputed:
		return fmt.Errorf("%w: %v", ErrInvalidParams, p.ROI)
	case p.Workers < 0 || p.BatchSize < 0:
		return fmt.Errorf("%w: negative workers %d or batch size %d", ErrInvalidParams, p.Workers, p.BatchSize)
	}
	return nil
}

func (p Params) workers() int {
	if p.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}

func (p Params) batchSize() int {
	if p.BatchSize == 0 {
		return 256
	}
	return p.BatchSize
}
