package syscalls

import (
	"github.com/evanphx/nachos/kernel"
	"github.com/evanphx/nachos/log"
	"github.com/evanphx/nachos/threads"
	"github.com/evanphx/nachos/userprog"
	hclog "github.com/hashicorp/go-hclog"
)

// Invoker dispatches system calls through the Syscalls table.
type Invoker struct {
	Kernel *kernel.Kernel

	L hclog.Logger
}

func NewInvoker(k *kernel.Kernel) *Invoker {
	return &Invoker{
		Kernel: k,
		L:      log.Named("syscalls"),
	}
}

// InvokeSyscall runs system call code for t. The result goes to register 2
// and the PC moves past the trapping instruction. Unknown calls return -1.
func (i *Invoker) InvokeSyscall(t *threads.Thread, code int) {
	m := i.Kernel.Machine

	args := SysArgs{
		Index: code,
		R4:    m.ReadRegister(userprog.Arg1Reg),
		R5:    m.ReadRegister(userprog.Arg2Reg),
		R6:    m.ReadRegister(userprog.Arg3Reg),
		R7:    m.ReadRegister(userprog.Arg4Reg),
	}

	ret := int32(-1)

	if code >= 0 && code < len(Syscalls) && Syscalls[code] != nil {
		ret = Syscalls[code](i.L, i.Kernel, t, args)
	} else {
		i.L.Error("unknown system call", "code", code, "thread", t.Name)
	}

	m.WriteRegister(userprog.ResultReg, ret)
	m.AdvancePC()
}
