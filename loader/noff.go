package loader

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

// NoffMagic identifies a NOFF image.
const NoffMagic = 0x00badfad

var (
	ErrBadMagic    = errors.New("not a noff image")
	ErrShortHeader = errors.New("short noff header")
)

// Segment locates one segment in the image file and in the address space.
type Segment struct {
	VirtualAddr uint32
	InFileAddr  uint32
	Size        uint32
}

func (s Segment) End() uint32 {
	return s.VirtualAddr + s.Size
}

// Header is the decoded NOFF header. The on-disk layout is the magic word
// followed by one {virtualAddr, inFileAddr, size} triple per segment: code,
// read-only data (only in the read-only layout), initialized data and
// uninitialized data.
type Header struct {
	Magic uint32

	Code         Segment
	ReadOnlyData Segment
	InitData     Segment
	UninitData   Segment

	// HasReadOnlyData is set for the layout that carries a read-only
	// data segment.
	HasReadOnlyData bool

	// Swapped is set when the header was written with the opposite byte
	// order and every field was reversed on decode.
	Swapped bool
}

// HeaderSize is the on-disk size of a header in the given layout.
func HeaderSize(withReadOnly bool) int {
	if withReadOnly {
		return 4 + 4*12
	}

	return 4 + 3*12
}

func (h *Header) segments() []*Segment {
	if h.HasReadOnlyData {
		return []*Segment{&h.Code, &h.ReadOnlyData, &h.InitData, &h.UninitData}
	}

	return []*Segment{&h.Code, &h.InitData, &h.UninitData}
}

// Size is the sum of every segment size, without any stack.
func (h *Header) Size() uint32 {
	var total uint32

	for _, seg := range h.segments() {
		total += seg.Size
	}

	return total
}

// ParseHeader reads and decodes the header at the start of r.
func ParseHeader(r io.ReaderAt, withReadOnly bool) (*Header, error) {
	buf := make([]byte, HeaderSize(withReadOnly))

	n, err := r.ReadAt(buf, 0)
	if n < len(buf) {
		return nil, errors.Wrapf(ErrShortHeader, "read %d of %d bytes (%v)", n, len(buf), err)
	}

	return DecodeHeader(buf, withReadOnly)
}

// DecodeHeader decodes a header stored little-endian. A header whose magic
// only matches once byte-reversed is assumed to come from a machine of the
// other byte order and has every field reversed.
func DecodeHeader(buf []byte, withReadOnly bool) (*Header, error) {
	size := HeaderSize(withReadOnly)
	if len(buf) < size {
		return nil, errors.Wrapf(ErrShortHeader, "have %d of %d bytes", len(buf), size)
	}

	words := make([]uint32, size/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}

	h := &Header{HasReadOnlyData: withReadOnly}

	if words[0] != NoffMagic && bits.ReverseBytes32(words[0]) == NoffMagic {
		for i := range words {
			words[i] = bits.ReverseBytes32(words[i])
		}

		h.Swapped = true
	}

	if words[0] != NoffMagic {
		return nil, errors.Wrapf(ErrBadMagic, "magic=%#x", words[0])
	}

	h.Magic = words[0]

	for i, seg := range h.segments() {
		w := words[1+i*3:]
		seg.VirtualAddr = w[0]
		seg.InFileAddr = w[1]
		seg.Size = w[2]
	}

	return h, nil
}

// Encode writes h in the given byte order.
func (h *Header) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, HeaderSize(h.HasReadOnlyData))

	order.PutUint32(buf, h.Magic)

	off := 4
	for _, seg := range h.segments() {
		order.PutUint32(buf[off:], seg.VirtualAddr)
		order.PutUint32(buf[off+4:], seg.InFileAddr)
		order.PutUint32(buf[off+8:], seg.Size)
		off += 12
	}

	return buf
}
