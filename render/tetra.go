package render

import "gonum.org/v1/gonum/spatial/r3"

// maxCellTriangles is the most triangles a single cell can emit.
const maxCellTriangles = 2 * len(cellTetras)

// cellCorners are the unit cube corner offsets, bottom face first.
var cellCorners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// cellTetras splits a cell into six tetrahedra around the 0-6 diagonal.
// Every face is cut along the diagonal through its lowest corner so
// neighboring cells agree and the output has no cracks.
var cellTetras = [6][4]int{
	{0, 6, 1, 2},
	{0, 6, 2, 3},
	{0, 6, 3, 7},
	{0, 6, 7, 4},
	{0, 6, 4, 5},
	{0, 6, 5, 1},
}

// cellTriangles writes the triangles of the iso level set inside a cell into
// dst, which must hold maxCellTriangles. Triangles face increasing values.
func cellTriangles(dst [][3]r3.Vec, corners *[8]r3.Vec, values *[8]float64, iso float64) (n int) {
	for _, tet := range cellTetras {
		var p [4]r3.Vec
		var v [4]float64
		for i, c := range tet {
			p[i], v[i] = corners[c], values[c]
		}
		n += tetraTriangles(dst[n:], &p, &v, iso)
	}
	return n
}

func tetraTriangles(dst [][3]r3.Vec, p *[4]r3.Vec, v *[4]float64, iso float64) int {
	var in, out [4]int
	var nin, nout int
	for i := range v {
		if v[i] < iso {
			in[nin] = i
			nin++
		} else {
			out[nout] = i
			nout++
		}
	}
	if nin == 0 || nout == 0 {
		return 0
	}
	// Points leaving the inside set point from inside to outside.
	var cin, cout r3.Vec
	for _, i := range in[:nin] {
		cin = r3.Add(cin, r3.Scale(1/float64(nin), p[i]))
	}
	for _, i := range out[:nout] {
		cout = r3.Add(cout, r3.Scale(1/float64(nout), p[i]))
	}
	dir := r3.Sub(cout, cin)
	cross := func(a, b int) r3.Vec {
		t := (iso - v[a]) / (v[b] - v[a])
		return r3.Add(p[a], r3.Scale(t, r3.Sub(p[b], p[a])))
	}
	n := 0
	emit := func(a, b, c r3.Vec) {
		nrm := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		d := r3.Dot(nrm, dir)
		if d == 0 {
			return // degenerate
		} else if d < 0 {
			b, c = c, b
		}
		dst[n] = [3]r3.Vec{a, b, c}
		n++
	}
	switch {
	case nin == 1:
		a := in[0]
		emit(cross(a, out[0]), cross(a, out[1]), cross(a, out[2]))
	case nout == 1:
		a := out[0]
		emit(cross(in[0], a), cross(in[1], a), cross(in[2], a))
	default:
		// Quad with vertices on edges a-c, a-d, b-d, b-c.
		a, b, c, d := in[0], in[1], out[0], out[1]
		ac, ad, bd, bc := cross(a, c), cross(a, d), cross(b, d), cross(b, c)
		emit(ac, ad, bd)
		emit(ac, bd, bc)
	}
	return n
}
