package loader

import (
	"encoding/binary"
	"testing"

	"github.com/evanphx/nachos/fs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestHeader(t *testing.T) {
	n := neko.Modern(t)

	image := func(order binary.ByteOrder, ro bool) *Image {
		return &Image{
			Code:             []byte{1, 2, 3, 4, 5, 6, 7, 8},
			ReadOnlyData:     []byte("ro"),
			ReadOnlyDataAddr: 0x40,
			InitData:         []byte{9, 9, 9},
			InitDataAddr:     0x80,
			UninitSize:       100,
			UninitAddr:       0x100,
			WithReadOnlyData: ro,
			Order:            order,
		}
	}

	n.It("decodes a header in host order", func(t *testing.T) {
		im := image(binary.LittleEndian, true)

		h, err := DecodeHeader(im.Bytes(), true)
		require.NoError(t, err)

		require.False(t, h.Swapped)
		require.Equal(t, *im.Header(), *h)
		require.Equal(t, uint32(8+2+3+100), h.Size())
	})

	n.It("detects and repairs a byte-swapped header", func(t *testing.T) {
		im := image(binary.BigEndian, true)

		h, err := DecodeHeader(im.Bytes(), true)
		require.NoError(t, err)

		require.True(t, h.Swapped)
		require.Equal(t, uint32(NoffMagic), h.Magic)

		want := im.Header()
		require.Equal(t, want.Code, h.Code)
		require.Equal(t, want.ReadOnlyData, h.ReadOnlyData)
		require.Equal(t, want.InitData, h.InitData)
		require.Equal(t, want.UninitData, h.UninitData)
	})

	n.It("rejects a magic that matches in neither order", func(t *testing.T) {
		buf := image(binary.LittleEndian, true).Bytes()
		binary.LittleEndian.PutUint32(buf, 0xdeadbeef)

		_, err := DecodeHeader(buf, true)
		require.Equal(t, ErrBadMagic, errors.Cause(err))
	})

	n.It("decodes the layout without read-only data", func(t *testing.T) {
		im := image(binary.LittleEndian, false)

		h, err := DecodeHeader(im.Bytes(), false)
		require.NoError(t, err)

		require.Equal(t, Segment{}, h.ReadOnlyData)
		require.Equal(t, uint32(0x80), h.InitData.VirtualAddr)
		require.Equal(t, uint32(8+3+100), h.Size())
	})

	n.It("reports a truncated header", func(t *testing.T) {
		_, err := ParseHeader(fs.NewBytesFile([]byte{0xad, 0xdf}), true)
		require.Equal(t, ErrShortHeader, errors.Cause(err))
	})

	n.Meow()
}

func TestLoader(t *testing.T) {
	n := neko.Modern(t)

	n.It("caches headers by image digest", func(t *testing.T) {
		cache := NewHeaderCache(10)
		l := NewLoader(cache, true)

		im := &Image{Code: []byte{1, 2, 3, 4}, WithReadOnlyData: true}

		h1, err := l.ReadHeader(fs.NewBytesFile(im.Bytes()))
		require.NoError(t, err)
		require.Equal(t, 1, cache.Len())

		h2, err := l.ReadHeader(fs.NewBytesFile(im.Bytes()))
		require.NoError(t, err)
		require.Equal(t, 1, cache.Len())

		require.Equal(t, *h1, *h2)

		h2.Code.Size = 99

		h3, err := l.ReadHeader(fs.NewBytesFile(im.Bytes()))
		require.NoError(t, err)
		require.Equal(t, uint32(4), h3.Code.Size)
	})

	n.It("keys the layouts apart", func(t *testing.T) {
		f := fs.NewBytesFile((&Image{Code: []byte{1}}).Bytes())

		ro, err := NewLoader(nil, true).Digest(f)
		require.NoError(t, err)

		plain, err := NewLoader(nil, false).Digest(f)
		require.NoError(t, err)

		require.NotEqual(t, ro, plain)
	})

	n.It("works without a cache", func(t *testing.T) {
		l := NewLoader(nil, false)

		h, err := l.ReadHeader(fs.NewBytesFile((&Image{Code: []byte{1}}).Bytes()))
		require.NoError(t, err)
		require.Equal(t, uint32(1), h.Code.Size)
	})

	n.Meow()
}
