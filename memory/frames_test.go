package memory

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestFrameTable(t *testing.T) {
	n := neko.Modern(t)

	n.It("hands out the lowest free frame", func(t *testing.T) {
		ft := NewFrameTable(4)

		for want := 0; want < 4; want++ {
			got, err := ft.Allocate()
			require.NoError(t, err)
			require.Equal(t, want, got)
		}

		require.Equal(t, 4, ft.InUse())

		require.NoError(t, ft.Free(2))

		got, err := ft.Allocate()
		require.NoError(t, err)
		require.Equal(t, 2, got)
	})

	n.It("reports exhaustion", func(t *testing.T) {
		ft := NewFrameTable(1)

		_, err := ft.Allocate()
		require.NoError(t, err)

		_, err = ft.Allocate()
		require.Equal(t, ErrExhausted, errors.Cause(err))
	})

	n.It("rejects bad and double frees", func(t *testing.T) {
		ft := NewFrameTable(2)

		require.Equal(t, ErrBadFrame, errors.Cause(ft.Free(7)))
		require.Equal(t, ErrDoubleFree, errors.Cause(ft.Free(1)))
	})

	n.It("rounds sizes up to whole units", func(t *testing.T) {
		require.Equal(t, 0, DivRoundUp(0, 128))
		require.Equal(t, 1, DivRoundUp(1, 128))
		require.Equal(t, 1, DivRoundUp(128, 128))
		require.Equal(t, 2, DivRoundUp(129, 128))
	})

	n.Meow()
}
