package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const mrcHeaderSize = 1024

// MRC data modes
const (
	ModeInt8    = 0
	ModeInt16   = 1
	ModeFloat32 = 2
	ModeUint16  = 6
)

// ErrUnsupportedMode is returned for MRC data modes other than 0, 1, 2 and 6
var ErrUnsupportedMode = errors.New("unsupported MRC mode")

// ErrCorruptMRC is returned when the header describes more data than the file holds
var ErrCorruptMRC = errors.New("corrupt MRC file")

// maxSectionPixels bounds NX*NY so the section buffer size cannot overflow
const maxSectionPixels = 1 << 30

// MRCHeader holds the header fields needed to read the first section of an MRC file
type MRCHeader struct {
	NX, NY, NZ int
	Mode       int
	MX         int

	// CellX is the cell length along X in Å
	CellX float64

	// ExtHeaderSize is the number of extended header bytes following the main header
	ExtHeaderSize int

	ByteOrder binary.ByteOrder
}

// PixelSize returns the X voxel size in nm, or 0 when the header carries no calibration
func (h MRCHeader) PixelSize() float64 {
	if h.MX <= 0 || h.CellX <= 0 {
		return 0
	}
	return h.CellX / float64(h.MX) * 0.1
}

func (h MRCHeader) bytesPerVoxel() int {
	switch h.Mode {
	case ModeInt8:
		return 1
	case ModeInt16, ModeUint16:
		return 2
	case ModeFloat32:
		return 4
	}
	return 0
}

// FileSize returns the number of bytes needed for the header, the extended header and the
// first section
func (h MRCHeader) FileSize() (int64, error) {
	if h.NX > maxSectionPixels/h.NY {
		return 0, fmt.Errorf("%w: section of %dx%d pixels", ErrCorruptMRC, h.NX, h.NY)
	}
	return mrcHeaderSize + int64(h.ExtHeaderSize) + int64(h.NX)*int64(h.NY)*int64(h.bytesPerVoxel()), nil
}

// ParseMRCHeader decodes the fixed 1024 byte MRC header
func ParseMRCHeader(raw []byte) (MRCHeader, error) {
	if len(raw) < mrcHeaderSize {
		return MRCHeader{}, fmt.Errorf("MRC header too short: %d bytes", len(raw))
	}

	// Machine stamp: 0x44 0x44 little endian, 0x11 0x11 big endian. Old writers leave it zero.
	var order binary.ByteOrder = binary.LittleEndian
	if raw[212] == 0x11 {
		order = binary.BigEndian
	}

	readInt := func(off int) int {
		return int(int32(order.Uint32(raw[off : off+4])))
	}

	h := MRCHeader{
		NX:            readInt(0),
		NY:            readInt(4),
		NZ:            readInt(8),
		Mode:          readInt(12),
		MX:            readInt(28),
		CellX:         float64(math.Float32frombits(order.Uint32(raw[40:44]))),
		ExtHeaderSize: readInt(92),
		ByteOrder:     order,
	}

	if h.NX <= 0 || h.NY <= 0 {
		return h, fmt.Errorf("invalid MRC dimensions %dx%d", h.NX, h.NY)
	}
	if h.ExtHeaderSize < 0 {
		return h, fmt.Errorf("invalid MRC extended header size %d", h.ExtHeaderSize)
	}
	if h.bytesPerVoxel() == 0 {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedMode, h.Mode)
	}
	return h, nil
}

// ReadMRC reads the header and the first section of an MRC stream. The returned values are
// row-major with X varying fastest. When size is non-negative it is the total stream length and
// headers describing more data than that are rejected before anything is allocated.
func ReadMRC(r io.Reader, size int64) (MRCHeader, []float64, error) {
	raw := make([]byte, mrcHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return MRCHeader{}, nil, fmt.Errorf("failed to read MRC header: %w", err)
	}

	h, err := ParseMRCHeader(raw)
	if err != nil {
		return h, nil, err
	}

	need, err := h.FileSize()
	if err != nil {
		return h, nil, err
	}
	if size >= 0 && need > size {
		return h, nil, fmt.Errorf("%w: header needs %d bytes, file has %d", ErrCorruptMRC, need, size)
	}

	if h.ExtHeaderSize > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(h.ExtHeaderSize)); err != nil {
			return h, nil, fmt.Errorf("failed to skip extended header: %w", err)
		}
	}

	n := h.NX * h.NY
	data := make([]byte, n*h.bytesPerVoxel())
	if _, err := io.ReadFull(r, data); err != nil {
		return h, nil, fmt.Errorf("failed to read MRC data: %w", err)
	}

	pix := make([]float64, n)
	switch h.Mode {
	case ModeInt8:
		for i := range pix {
			pix[i] = float64(int8(data[i]))
		}
	case ModeInt16:
		for i := range pix {
			pix[i] = float64(int16(h.ByteOrder.Uint16(data[2*i:])))
		}
	case ModeUint16:
		for i := range pix {
			pix[i] = float64(h.ByteOrder.Uint16(data[2*i:]))
		}
	case ModeFloat32:
		for i := range pix {
			pix[i] = float64(math.Float32frombits(h.ByteOrder.Uint32(data[4*i:])))
		}
	}
	return h, pix, nil
}
