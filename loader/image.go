package loader

import "encoding/binary"

// Image assembles a NOFF file. Segment bodies are stored right after the
// header in the order code, read-only data, initialized data.
type Image struct {
	Code     []byte
	CodeAddr uint32

	ReadOnlyData     []byte
	ReadOnlyDataAddr uint32

	InitData     []byte
	InitDataAddr uint32

	UninitSize uint32
	UninitAddr uint32

	WithReadOnlyData bool

	// Order defaults to little-endian.
	Order binary.ByteOrder
}

// Header returns the header describing the assembled file.
func (im *Image) Header() *Header {
	h := &Header{
		Magic:           NoffMagic,
		HasReadOnlyData: im.WithReadOnlyData,
	}

	off := uint32(HeaderSize(im.WithReadOnlyData))

	place := func(body []byte, addr uint32) Segment {
		seg := Segment{VirtualAddr: addr, InFileAddr: off, Size: uint32(len(body))}
		off += seg.Size
		return seg
	}

	h.Code = place(im.Code, im.CodeAddr)

	if im.WithReadOnlyData {
		h.ReadOnlyData = place(im.ReadOnlyData, im.ReadOnlyDataAddr)
	}

	h.InitData = place(im.InitData, im.InitDataAddr)
	h.UninitData = Segment{VirtualAddr: im.UninitAddr, Size: im.UninitSize}

	return h
}

func (im *Image) Bytes() []byte {
	order := im.Order
	if order == nil {
		order = binary.LittleEndian
	}

	buf := im.Header().Encode(order)
	buf = append(buf, im.Code...)

	if im.WithReadOnlyData {
		buf = append(buf, im.ReadOnlyData...)
	}

	buf = append(buf, im.InitData...)

	return buf
}
