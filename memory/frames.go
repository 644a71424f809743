package memory

import (
	"github.com/evanphx/nachos/log"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var (
	ErrExhausted  = errors.New("no free physical frames")
	ErrBadFrame   = errors.New("frame index out of range")
	ErrDoubleFree = errors.New("frame is not in use")
)

// DivRoundUp returns the number of size-byte units needed to hold n bytes.
func DivRoundUp(n, size int) int {
	diff := n % size
	if diff == 0 {
		return n / size
	}

	return n/size + 1
}

// FrameTable hands out physical frame indices. It owns no memory itself,
// only the record of which indices are claimed.
type FrameTable struct {
	L hclog.Logger

	used  []bool
	inUse int
}

func NewFrameTable(numFrames int) *FrameTable {
	return &FrameTable{
		L:    log.Named("frames"),
		used: make([]bool, numFrames),
	}
}

func (f *FrameTable) Size() int {
	return len(f.used)
}

func (f *FrameTable) InUse() int {
	return f.inUse
}

func (f *FrameTable) IsUsed(i int) bool {
	if i < 0 || i >= len(f.used) {
		return false
	}

	return f.used[i]
}

// Allocate claims the lowest free frame.
func (f *FrameTable) Allocate() (int, error) {
	for i, used := range f.used {
		if !used {
			f.used[i] = true
			f.inUse++

			f.L.Trace("allocate", "frame", i, "in-use", f.inUse)
			return i, nil
		}
	}

	return -1, errors.Wrapf(ErrExhausted, "all %d frames in use", len(f.used))
}

func (f *FrameTable) Free(i int) error {
	if i < 0 || i >= len(f.used) {
		return errors.Wrapf(ErrBadFrame, "frame=%d", i)
	}

	if !f.used[i] {
		return errors.Wrapf(ErrDoubleFree, "frame=%d", i)
	}

	f.used[i] = false
	f.inUse--

	f.L.Trace("free", "frame", i, "in-use", f.inUse)
	return nil
}
