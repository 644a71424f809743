package kernel

import (
	"io"
	"os"

	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/machine"
	"github.com/pkg/errors"
)

var ErrBadConfig = errors.New("bad kernel configuration")

type Config struct {
	PageSize     int
	NumPhysPages int

	// UserStackSize is reserved in every address space above the
	// program's segments.
	UserStackSize int

	// StackWords is the size of each kernel thread stack.
	StackWords int

	// ReadOnlyData selects the NOFF layout with a read-only data segment.
	ReadOnlyData bool

	// HeaderCacheSize is the number of NOFF headers kept; 0 disables the
	// cache.
	HeaderCacheSize int

	FileSystem fs.FileSystem
	CPU        machine.CPU

	// Console receives the output of the print system calls.
	Console io.Writer

	// Halt runs when the machine halts. The process should exit from it;
	// if it returns, halting panics with machine.ErrHalted.
	Halt func()
}

func DefaultConfig() Config {
	return Config{
		PageSize:        128,
		NumPhysPages:    128,
		UserStackSize:   1024,
		StackWords:      1024,
		ReadOnlyData:    true,
		HeaderCacheSize: 100,
		Console:         os.Stdout,
	}
}

func (c *Config) validate() error {
	switch {
	case c.PageSize <= 0 || c.PageSize%4 != 0:
		return errors.Wrapf(ErrBadConfig, "page size %d is not a positive multiple of 4", c.PageSize)
	case c.NumPhysPages <= 0:
		return errors.Wrapf(ErrBadConfig, "physical pages %d", c.NumPhysPages)
	case c.UserStackSize < 0:
		return errors.Wrapf(ErrBadConfig, "user stack size %d", c.UserStackSize)
	case c.StackWords < 0:
		return errors.Wrapf(ErrBadConfig, "stack words %d", c.StackWords)
	}

	return nil
}
