package syscalls

import (
	"bytes"

	"github.com/evanphx/nachos/kernel"
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/threads"
	"github.com/evanphx/nachos/userprog"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// MaxPathLen bounds the program names passed to exec.
const MaxPathLen = 255

var ErrPathTooLong = errors.New("path too long")

// readCString copies a NUL terminated string out of t's address space.
func readCString(t *threads.Thread, addr uint32) (string, error) {
	space, ok := t.Space.(*userprog.AddressSpace)
	if !ok {
		return "", errors.Errorf("%s has no address space", t)
	}

	var buf bytes.Buffer

	for i := uint32(0); i <= MaxPathLen; i++ {
		b, exc := space.ReadMem(addr+i, 1)
		if exc != machine.NoException {
			return "", errors.Errorf("reading %#x: %s", addr+i, exc)
		}

		if b == 0 {
			return buf.String(), nil
		}

		buf.WriteByte(byte(b))
	}

	return "", ErrPathTooLong
}

func sysHalt(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	l.Debug("halt requested", "thread", t.Name)
	k.Halt()
	return 0
}

func sysExit(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	k.Exit(int(args.R4))
	return 0
}

func sysExec(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	path, err := readCString(t, uint32(args.R4))
	if err != nil {
		l.Error("error reading path", "error", err)
		return -1
	}

	child, err := k.Exec(path)
	if err != nil {
		l.Error("unable to exec program", "error", err, "path", path)
		return -1
	}

	return int32(child.ID)
}

func sysJoin(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	status, ok := k.Join(int(args.R4))
	if !ok {
		return -1
	}

	return int32(status)
}

func sysThreadYield(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	k.Yield()
	return 0
}

func init() {
	Syscalls[userprog.SCHalt] = sysHalt
	Syscalls[userprog.SCExit] = sysExit
	Syscalls[userprog.SCExec] = sysExec
	Syscalls[userprog.SCJoin] = sysJoin
	Syscalls[userprog.SCThreadYield] = sysThreadYield
}
