// Package volio reads and writes volumes as single file NIfTI-1 images.
package volio

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/soypat/sdfvol"
)

const (
	headerSize = 348
	// voxOffset is the header plus the 4 byte extension flag.
	voxOffset = 352

	dtFloat32 = 16
	// NIFTI_XFORM_SCANNER_ANAT.
	xformScanner = 1
	// NIFTI_UNITS_MM.
	unitsMM = 2
)

// header is the NIfTI-1 header. Field order and sizes follow nifti1.h.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte
	Dim          [8]int16
	IntentP1     float32
	IntentP2     float32
	IntentP3     float32
	IntentCode   int16
	Datatype     int16
	Bitpix       int16
	SliceStart   int16
	Pixdim       [8]float32
	VoxOffset    float32
	SclSlope     float32
	SclInter     float32
	SliceEnd     int16
	SliceCode    byte
	XYZTUnits    byte
	CalMax       float32
	CalMin       float32
	SliceDur     float32
	TOffset      float32
	GLMax        int32
	GLMin        int32
	Descrip      [80]byte
	AuxFile      [24]byte
	QformCode    int16
	SformCode    int16
	QuaternB     float32
	QuaternC     float32
	QuaternD     float32
	QOffsetX     float32
	QOffsetY     float32
	QOffsetZ     float32
	SrowX        [4]float32
	SrowY        [4]float32
	SrowZ        [4]float32
	IntentName   [16]byte
	Magic        [4]byte
}

// WriteNIfTI writes vol to w as a little endian float32 NIfTI-1 image with
// its affine stored as the sform. description is truncated to 79 bytes.
func WriteNIfTI(w io.Writer, vol *sdfvol.Volume, description string) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	for _, d := range vol.Dims {
		if d > math.MaxInt16 {
			return fmt.Errorf("dimension %d exceeds NIfTI-1 limit", d)
		}
	}
	if len(vol.Data) != vol.NumVoxels() {
		return fmt.Errorf("volume has %d values for %d voxels", len(vol.Data), vol.NumVoxels())
	}
	h := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Dim:       [8]int16{3, int16(vol.Dims[0]), int16(vol.Dims[1]), int16(vol.Dims[2]), 1, 1, 1, 1},
		Datatype:  dtFloat32,
		Bitpix:    32,
		VoxOffset: voxOffset,
		SclSlope:  1,
		XYZTUnits: unitsMM,
		SformCode: xformScanner,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	sp := vol.Spacing()
	h.Pixdim = [8]float32{1, float32(sp.X), float32(sp.Y), float32(sp.Z), 1, 1, 1, 1}
	for c := 0; c < 4; c++ {
		h.SrowX[c] = float32(vol.Sform[0][c])
		h.SrowY[c] = float32(vol.Sform[1][c])
		h.SrowZ[c] = float32(vol.Sform[2][c])
	}
	copy(h.Descrip[:79], description)
	sum := vol.Summarize()
	if sum.NaN < len(vol.Data) {
		h.CalMin, h.CalMax = sum.Min, sum.Max
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	// Empty extension flag.
	if _, err := bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	var buf [4]byte
	for _, f := range vol.Data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveNIfTI writes vol to path. Paths ending in .gz are gzip compressed.
func SaveNIfTI(path string, vol *sdfvol.Volume, description string) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = fp
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(fp)
		w = zw
	}
	err = WriteNIfTI(w, vol, description)
	if zw != nil && err == nil {
		err = zw.Close()
	}
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadSpace reads the voxel grid of a NIfTI-1 header: its first three
// dimensions and voxel to world affine. The sform is used when present,
// otherwise the qform, otherwise the voxel sizes.
func ReadSpace(r io.Reader) (sdfvol.Space, error) {
	h, _, err := readHeader(r)
	if err != nil {
		return sdfvol.Space{}, err
	}
	return h.space()
}

// ReadVolume reads a float32 NIfTI-1 image.
func ReadVolume(r io.Reader) (*sdfvol.Volume, error) {
	h, order, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Datatype != dtFloat32 {
		return nil, fmt.Errorf("unsupported NIfTI datatype %d, want float32", h.Datatype)
	}
	s, err := h.space()
	if err != nil {
		return nil, err
	}
	// Skip extensions up to the data.
	if skip := int64(h.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("reading NIfTI extension: %w", err)
		}
	}
	vol, err := sdfvol.NewVolume(s)
	if err != nil {
		return nil, err
	}
	if err := binary.Read(bufio.NewReader(r), order, vol.Data); err != nil {
		return nil, fmt.Errorf("reading NIfTI data: %w", err)
	}
	return vol, nil
}

// OpenSpace reads the grid of the NIfTI-1 file at path, gzip compressed or not.
func OpenSpace(path string) (sdfvol.Space, error) {
	fp, err := os.Open(path)
	if err != nil {
		return sdfvol.Space{}, err
	}
	defer fp.Close()
	var r io.Reader = fp
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(fp)
		if err != nil {
			return sdfvol.Space{}, err
		}
		defer zr.Close()
		r = zr
	}
	s, err := ReadSpace(r)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// OpenVolume reads the float32 NIfTI-1 image at path. Paths ending in .gz
// are decompressed.
func OpenVolume(path string) (*sdfvol.Volume, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	var r io.Reader = fp
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(fp)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	vol, err := ReadVolume(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

func readHeader(r io.Reader) (h header, order binary.ByteOrder, err error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return h, nil, fmt.Errorf("reading NIfTI header: %w", err)
	}
	switch {
	case binary.LittleEndian.Uint32(raw[:4]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[:4]) == headerSize:
		order = binary.BigEndian
	default:
		return h, nil, errors.New("not a NIfTI-1 header")
	}
	if err := binary.Read(bytes.NewReader(raw[:]), order, &h); err != nil {
		return h, nil, err
	}
	if h.Magic != [4]byte{'n', '+', '1', 0} && h.Magic != [4]byte{'n', 'i', '1', 0} {
		return h, nil, fmt.Errorf("bad NIfTI magic %q", h.Magic[:3])
	}
	return h, order, nil
}

func (h *header) space() (sdfvol.Space, error) {
	if h.Dim[0] < 3 || h.Dim[0] > 7 {
		return sdfvol.Space{}, fmt.Errorf("NIfTI image has %d dimensions, need at least 3", h.Dim[0])
	}
	s := sdfvol.Space{Dims: [3]int{int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])}}
	switch {
	case h.SformCode > 0:
		for c := 0; c < 4; c++ {
			s.Sform[0][c] = float64(h.SrowX[c])
			s.Sform[1][c] = float64(h.SrowY[c])
			s.Sform[2][c] = float64(h.SrowZ[c])
		}
	case h.QformCode > 0:
		s.Sform = h.qformAffine()
	default:
		for d := 0; d < 3; d++ {
			s.Sform[d][d] = float64(h.Pixdim[d+1])
		}
	}
	return s, s.Validate()
}

// qformAffine builds the affine from the quaternion representation.
func (h *header) qformAffine() (m [3][4]float64) {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := math.Sqrt(math.Max(0, 1-(b*b+c*c+d*d)))
	qfac := 1.0
	if h.Pixdim[0] < 0 {
		qfac = -1
	}
	dx, dy, dz := float64(h.Pixdim[1]), float64(h.Pixdim[2]), qfac*float64(h.Pixdim[3])
	r := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}
	for i := 0; i < 3; i++ {
		m[i][0] = r[i][0] * dx
		m[i][1] = r[i][1] * dy
		m[i][2] = r[i][2] * dz
	}
	m[0][3], m[1][3], m[2][3] = float64(h.QOffsetX), float64(h.QOffsetY), float64(h.QOffsetZ)
	return m
}
