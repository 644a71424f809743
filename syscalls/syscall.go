package syscalls

import (
	"github.com/evanphx/nachos/kernel"
	"github.com/evanphx/nachos/threads"
	hclog "github.com/hashicorp/go-hclog"
)

// SysArgs is a trapped system call: its number and argument registers.
type SysArgs struct {
	Index          int
	R4, R5, R6, R7 int32
}

var Syscalls [64]func(hclog.Logger, *kernel.Kernel, *threads.Thread, SysArgs) int32
