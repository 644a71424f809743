package syscalls

import (
	"fmt"

	"github.com/evanphx/nachos/kernel"
	"github.com/evanphx/nachos/threads"
	"github.com/evanphx/nachos/userprog"
	hclog "github.com/hashicorp/go-hclog"
)

func sysAdd(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	return args.R4 + args.R5
}

func sysPrintInt(l hclog.Logger, k *kernel.Kernel, t *threads.Thread, args SysArgs) int32 {
	_, err := fmt.Fprintf(k.Console(), "%d\n", args.R4)
	if err != nil {
		l.Error("error writing to console", "error", err)
		return -1
	}

	return 0
}

func init() {
	Syscalls[userprog.SCAdd] = sysAdd
	Syscalls[userprog.SCPrintInt] = sysPrintInt
}
