// Package render extracts the zero level set of an SDF3 as triangles. It is
// used to check distance fields by eye, remeshing a surface through its
// signed distance.
package render

import (
	"errors"
	"io"

	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Renderer streams triangles. ReadTriangles returns io.EOF once every
// triangle has been read.
type Renderer interface {
	ReadTriangles(dst [][3]r3.Vec) (int, error)
}

// RenderAll reads the full contents of a Renderer and returns the slice read.
// It does not return error on io.EOF.
func RenderAll(r Renderer) ([][3]r3.Vec, error) {
	result := make([][3]r3.Vec, 0, 1<<12)
	buf := make([][3]r3.Vec, 1024)
	for {
		nt, err := r.ReadTriangles(buf)
		result = append(result, buf[:nt]...)
		if errors.Is(err, io.EOF) {
			return result, nil
		} else if err != nil {
			return result, err
		}
	}
}

// ToMesh renders r fully and welds the triangles into an indexed mesh.
func ToMesh(r Renderer) (*mesh.Mesh, error) {
	tris, err := RenderAll(r)
	if err != nil {
		return nil, err
	} else if len(tris) == 0 {
		return &mesh.Mesh{}, nil
	}
	bb := d3.EmptyBox()
	for _, t := range tris {
		bb = bb.Include(t[0]).Include(t[1]).Include(t[2])
	}
	// Cells sharing an edge compute bit identical crossings, so a tolerance
	// relative to the model size only merges those.
	return mesh.FromTriangles(tris, 1e-9*d3.Max(bb.Size()))
}

type triangleBuffer struct {
	buf [][3]r3.Vec
}

// Read reads from this buffer.
func (b *triangleBuffer) Read(t [][3]r3.Vec) int {
	n := copy(t, b.buf)
	b.buf = b.buf[n:]
	return n
}

// Write appends triangles to this buffer.
func (b *triangleBuffer) Write(t [][3]r3.Vec) int {
	b.buf = append(b.buf, t...)
	return len(t)
}

func (b *triangleBuffer) Len() int { return len(b.buf) }
