package fs

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestMapFS(t *testing.T) {
	n := neko.Modern(t)

	n.It("reads a file at an offset", func(t *testing.T) {
		m := MapFS{"bin/halt": []byte("0123456789")}

		f, err := m.Open("/bin/./halt")
		require.NoError(t, err)

		require.Equal(t, int64(10), f.Length())

		buf := make([]byte, 4)
		_, err = f.ReadAt(buf, 3)
		require.NoError(t, err)
		require.Equal(t, "3456", string(buf))

		require.NoError(t, f.Close())
	})

	n.It("returns a short read at the end of the file", func(t *testing.T) {
		m := MapFS{"a": []byte("abc")}

		f, err := m.Open("a")
		require.NoError(t, err)

		buf := make([]byte, 4)
		n, err := f.ReadAt(buf, 1)
		require.Equal(t, io.EOF, err)
		require.Equal(t, 2, n)
	})

	n.It("reports unknown paths", func(t *testing.T) {
		_, err := MapFS{}.Open("missing")
		require.Equal(t, ErrUnknownPath, errors.Cause(err))
	})

	n.It("refuses reads after close", func(t *testing.T) {
		f := NewBytesFile([]byte("x"))
		require.NoError(t, f.Close())

		_, err := f.ReadAt(make([]byte, 1), 0)
		require.Error(t, err)
	})

	n.It("lists names in order", func(t *testing.T) {
		m := MapFS{"b": nil, "a": nil}
		require.Equal(t, []string{"a", "b"}, m.Names())
	})

	n.Meow()
}
