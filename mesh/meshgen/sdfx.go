package meshgen

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface check.
var _ sdfvol.SDF3 = solid{}

// solid adapts an sdfx SDF3 to sdfvol.SDF3 so analytic solids can serve as
// reference distance fields.
type solid struct {
	s sdf.SDF3
}

// Solid wraps an sdfx solid as an sdfvol.SDF3.
func Solid(s sdf.SDF3) sdfvol.SDF3 { return solid{s: s} }

func (s solid) Evaluate(p r3.Vec) float64 {
	return s.s.Evaluate(v3.Vec{X: p.X, Y: p.Y, Z: p.Z})
}

func (s solid) Bounds() r3.Box {
	bb := s.s.BoundingBox()
	return r3.Box{Min: fromV3(bb.Min), Max: fromV3(bb.Max)}
}

// FromSDF tessellates an sdfx solid with uniform marching cubes using cells
// divisions along the longest side of its bounding box.
func FromSDF(s sdf.SDF3, cells int) (*mesh.Mesh, error) {
	if cells < 2 {
		return nil, fmt.Errorf("marching cubes needs at least 2 cells, got %d", cells)
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s, renderer)
	soup := make([][3]r3.Vec, 0, len(triangles))
	for _, tri := range triangles {
		soup = append(soup, [3]r3.Vec{fromV3(tri[0]), fromV3(tri[1]), fromV3(tri[2])})
	}
	return mesh.FromTriangles(soup, 0)
}

// Tube returns the sdfx solid of a hollow cylinder along Z centered at the origin.
func Tube(height, outerRadius, innerRadius float64) (sdf.SDF3, error) {
	if !(innerRadius < outerRadius) {
		return nil, fmt.Errorf("inner radius %g must be smaller than outer radius %g", innerRadius, outerRadius)
	}
	outer, err := sdf.Cylinder3D(height, outerRadius, 0)
	if err != nil {
		return nil, err
	}
	inner, err := sdf.Cylinder3D(2*height, innerRadius, 0)
	if err != nil {
		return nil, err
	}
	return sdf.Difference3D(outer, inner), nil
}

// RoundedBox returns the sdfx solid of a box with the given size and edge
// rounding radius, centered at c.
func RoundedBox(c, size r3.Vec, round float64) (sdf.SDF3, error) {
	s, err := sdf.Box3D(v3.Vec{X: size.X, Y: size.Y, Z: size.Z}, round)
	if err != nil {
		return nil, err
	}
	return sdf.Transform3D(s, sdf.Translate3d(v3.Vec{X: c.X, Y: c.Y, Z: c.Z})), nil
}

func fromV3(v v3.Vec) r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }
