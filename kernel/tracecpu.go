package kernel

import (
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/threads"
	"github.com/evanphx/nachos/userprog"
)

// TraceCPU walks a user program one word at a time without decoding it.
// Every fetch goes through the running thread's address space, so it
// exercises translation and context switching the way a real interpreter
// would. After Steps fetches the program exits with status 0; with Steps
// unset it runs until a fetch faults.
type TraceCPU struct {
	Kernel *Kernel

	Steps int

	// YieldEvery makes the running thread yield after that many fetches.
	YieldEvery int

	// OnFetch, if set, sees every fetched word.
	OnFetch func(t *threads.Thread, pc, word uint32)
}

func (c *TraceCPU) Run(m *machine.Machine) {
	t := c.Kernel.CurrentThread()

	space, ok := t.Space.(*userprog.AddressSpace)
	if !ok {
		panic("trace cpu running a thread without an address space")
	}

	for step := 0; c.Steps <= 0 || step < c.Steps; step++ {
		pc := uint32(m.ReadRegister(machine.PCReg))

		word, exc := space.ReadMem(pc, 4)
		if exc != machine.NoException {
			m.RaiseException(exc, pc)
			return
		}

		if c.OnFetch != nil {
			c.OnFetch(t, pc, word)
		} else {
			c.Kernel.L.Trace("fetch", "thread", t.Name, "pc", pc, "word", word)
		}

		m.AdvancePC()

		if c.YieldEvery > 0 && (step+1)%c.YieldEvery == 0 {
			c.Kernel.Yield()
		}
	}

	m.WriteRegister(userprog.ResultReg, userprog.SCExit)
	m.WriteRegister(userprog.Arg1Reg, 0)
	m.RaiseException(machine.SyscallException, 0)
}
