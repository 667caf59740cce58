package volio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/sdfvol"
	"gonum.org/v1/gonum/spatial/r3"
)

func testVolume(t *testing.T) *sdfvol.Volume {
	t.Helper()
	c, s := math.Cos(0.4), math.Sin(0.4)
	space := sdfvol.Space{
		Dims: [3]int{5, 4, 3},
		Sform: [3][4]float64{
			{0.5 * c, -0.5 * s, 0, -10},
			{0.5 * s, 0.5 * c, 0, 20.25},
			{0, 0, 1.5, 3},
		},
	}
	vol, err := sdfvol.NewVolume(space)
	if err != nil {
		t.Fatal(err)
	}
	for i := range vol.Data {
		vol.Data[i] = float32(i)*0.25 - 7
	}
	return vol
}

func TestNIfTIRoundTrip(t *testing.T) {
	if size := binary.Size(header{}); size != headerSize {
		t.Fatalf("header encodes to %d bytes, want %d", size, headerSize)
	}
	vol := testVolume(t)
	var buf bytes.Buffer
	if err := WriteNIfTI(&buf, vol, "round trip"); err != nil {
		t.Fatal(err)
	}
	if want := voxOffset + 4*len(vol.Data); buf.Len() != want {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), want)
	}
	raw := buf.Bytes()
	if string(raw[344:347]) != "n+1" {
		t.Errorf("magic %q", raw[344:348])
	}
	space, err := ReadSpace(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !space.Equal(vol.Space, 1e-6) {
		t.Errorf("space %+v, want %+v", space, vol.Space)
	}
	got, err := ReadVolume(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	for i := range vol.Data {
		if got.Data[i] != vol.Data[i] {
			t.Fatalf("voxel %d: got %g, want %g", i, got.Data[i], vol.Data[i])
		}
	}
}

func TestSaveOpenGzip(t *testing.T) {
	vol := testVolume(t)
	dir := t.TempDir()
	for _, name := range []string{"dist.nii", "dist.nii.gz"} {
		path := filepath.Join(dir, name)
		if err := SaveNIfTI(path, vol, "sdfvol test"); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Ext(name) == ".nii" && info.Size() != int64(voxOffset+4*len(vol.Data)) {
			t.Errorf("%s: size %d", name, info.Size())
		}
		space, err := OpenSpace(path)
		if err != nil {
			t.Fatal(err)
		}
		if !space.Equal(vol.Space, 1e-6) {
			t.Errorf("%s: space mismatch", name)
		}
		got, err := OpenVolume(path)
		if err != nil {
			t.Fatal(err)
		}
		if got.Data[len(got.Data)-1] != vol.Data[len(vol.Data)-1] {
			t.Errorf("%s: last voxel %g", name, got.Data[len(got.Data)-1])
		}
	}
}

func TestReadQformBigEndian(t *testing.T) {
	h := header{
		SizeofHdr: headerSize,
		Dim:       [8]int16{3, 2, 3, 4, 1, 1, 1, 1},
		Datatype:  dtFloat32,
		Bitpix:    32,
		Pixdim:    [8]float32{1, 2, 3, 4},
		VoxOffset: voxOffset,
		QformCode: xformScanner,
		// 90 degrees about Z.
		QuaternD: float32(math.Sqrt2 / 2),
		QOffsetX: 1,
		QOffsetY: 2,
		QOffsetZ: 3,
		Magic:    [4]byte{'n', '+', '1', 0},
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &h); err != nil {
		t.Fatal(err)
	}
	space, err := ReadSpace(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if space.Dims != [3]int{2, 3, 4} {
		t.Errorf("dims %v", space.Dims)
	}
	// Index X maps to world Y and index Y to world -X.
	got := space.IndexToWorld(1, 1, 1)
	want := r3.Vec{X: 1 - 3, Y: 2 + 2, Z: 3 + 4}
	if r3.Norm(r3.Sub(got, want)) > 1e-6 {
		t.Errorf("voxel (1,1,1) at %v, want %v", got, want)
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := ReadSpace(bytes.NewReader(make([]byte, 100))); err == nil {
		t.Error("expected error for short header")
	}
	raw := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(raw, headerSize)
	if _, err := ReadSpace(bytes.NewReader(raw)); err == nil {
		t.Error("expected error for missing magic")
	}
	var buf bytes.Buffer
	if err := WriteNIfTI(&buf, testVolume(t), ""); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, err := ReadVolume(bytes.NewReader(truncated)); err == nil {
		t.Error("expected error for truncated data")
	}
}
