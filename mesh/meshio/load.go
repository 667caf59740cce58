// Package meshio reads and writes triangle surface files.
package meshio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"github.com/soypat/sdfvol/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Load reads a surface file and welds its triangles into an indexed mesh.
// Binary STL is decoded directly. ASCII STL, OBJ and PLY are decoded by fauxgl.
func Load(path string) (*mesh.Mesh, error) {
	soup, err := LoadTriangles(path)
	if err != nil {
		return nil, err
	}
	m, err := mesh.FromTriangles(soup, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadTriangles reads the unindexed triangles of a surface file.
func LoadTriangles(path string) ([][3]r3.Vec, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		binary, err := isBinarySTL(path)
		if err != nil {
			return nil, err
		}
		if binary {
			fp, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer fp.Close()
			return ReadBinarySTL(fp)
		}
		return loadFauxgl(path, fauxgl.LoadSTL)
	case ".obj":
		return loadFauxgl(path, fauxgl.LoadOBJ)
	case ".ply":
		return loadFauxgl(path, fauxgl.LoadPLY)
	default:
		return nil, fmt.Errorf("unsupported surface file extension %q", ext)
	}
}

// isBinarySTL reports whether the file size matches the triangle count in its
// binary header. ASCII files starting with "solid" virtually never satisfy it.
func isBinarySTL(path string) (bool, error) {
	fp, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer fp.Close()
	info, err := fp.Stat()
	if err != nil {
		return false, err
	}
	var hdr [stlHeaderSize]byte
	if _, err := io.ReadFull(fp, hdr[:]); err != nil {
		// Too short for a binary header.
		return false, nil
	}
	count := int64(hdr[80]) | int64(hdr[81])<<8 | int64(hdr[82])<<16 | int64(hdr[83])<<24
	return info.Size() == stlHeaderSize+stlTriangleSize*count, nil
}

func loadFauxgl(path string, load func(string) (*fauxgl.Mesh, error)) ([][3]r3.Vec, error) {
	fm, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	soup := make([][3]r3.Vec, 0, len(fm.Triangles))
	for _, t := range fm.Triangles {
		soup = append(soup, [3]r3.Vec{
			fromFauxgl(t.V1.Position),
			fromFauxgl(t.V2.Position),
			fromFauxgl(t.V3.Position),
		})
	}
	return soup, nil
}

func fromFauxgl(v fauxgl.Vector) r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// SaveSTL writes m as a binary STL file at path.
func SaveSTL(path string, m *mesh.Mesh) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSTL(fp, m); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}
