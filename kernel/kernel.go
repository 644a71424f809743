package kernel

import (
	"fmt"
	"io"

	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/loader"
	"github.com/evanphx/nachos/log"
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/memory"
	"github.com/evanphx/nachos/threads"
	"github.com/evanphx/nachos/userprog"
	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// SyscallInvoker carries out the system call a user thread trapped with.
type SyscallInvoker interface {
	InvokeSyscall(t *threads.Thread, code int)
}

type Kernel struct {
	L      hclog.Logger
	BootID uuid.UUID

	cfg Config

	Machine    *machine.Machine
	Interrupt  *machine.Interrupt
	Frames     *memory.FrameTable
	FileSystem fs.FileSystem
	Loader     *loader.Loader
	Scheduler  *threads.Scheduler

	threads *ThreadTable
	invoker SyscallInvoker

	joiners map[*threads.Thread][]*Semaphore
}

// NewKernel boots a kernel. The calling goroutine becomes the kernel's
// main thread and must make every further call into it.
func NewKernel(cfg Config) (*Kernel, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	m, err := machine.New(cfg.PageSize, cfg.NumPhysPages)
	if err != nil {
		return nil, err
	}

	if cfg.FileSystem == nil {
		cfg.FileSystem = fs.MapFS{}
	}

	if cfg.Console == nil {
		cfg.Console = io.Discard
	}

	var cache *loader.HeaderCache
	if cfg.HeaderCacheSize > 0 {
		cache = loader.NewHeaderCache(cfg.HeaderCacheSize)
	}

	bootID := uuid.New()

	k := &Kernel{
		L:          log.L.With("boot", bootID.String()),
		BootID:     bootID,
		cfg:        cfg,
		Machine:    m,
		Interrupt:  machine.NewInterrupt(cfg.Halt),
		Frames:     memory.NewFrameTable(cfg.NumPhysPages),
		FileSystem: cfg.FileSystem,
		Loader:     loader.NewLoader(cache, cfg.ReadOnlyData),
		threads:    NewThreadTable(),
		joiners:    make(map[*threads.Thread][]*Semaphore),
	}

	m.SetCPU(cfg.CPU)
	m.SetExceptionHandler(k.HandleException)

	k.Scheduler = threads.NewScheduler(k.Interrupt, m, threads.HandoffSwitch{})

	main := threads.NewRunningThread("main")
	k.threads.Assign(main)
	k.Scheduler.Start(main)

	k.Interrupt.Enable()

	k.L.Debug("kernel booted", "page-size", cfg.PageSize, "frames", cfg.NumPhysPages)

	return k, nil
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) Console() io.Writer {
	return k.cfg.Console
}

func (k *Kernel) SetInvoker(i SyscallInvoker) {
	k.invoker = i
}

// SetCPU replaces the CPU user programs run on.
func (k *Kernel) SetCPU(cpu machine.CPU) {
	k.Machine.SetCPU(cpu)
}

func (k *Kernel) CurrentThread() *threads.Thread {
	return k.Scheduler.Current()
}

// Thread looks up a live thread by ID.
func (k *Kernel) Thread(id int) (*threads.Thread, bool) {
	return k.threads.Lookup(id)
}

// Threads returns every live thread ordered by ID.
func (k *Kernel) Threads() []*threads.Thread {
	return k.threads.List()
}

// Exec loads the program name into a new address space and forks a user
// thread to run it.
func (k *Kernel) Exec(name string) (*threads.Thread, error) {
	space := userprog.NewAddressSpace(userprog.Env{
		Machine:       k.Machine,
		Frames:        k.Frames,
		FileSystem:    k.FileSystem,
		Loader:        k.Loader,
		UserStackSize: k.cfg.UserStackSize,
	})

	old := k.Interrupt.SetLevel(machine.IntOff)
	err := space.Load(name)
	k.Interrupt.SetLevel(old)

	if err != nil {
		return nil, errors.Wrapf(err, "exec %s", name)
	}

	t := k.NewThread(name)
	t.Space = space

	k.Fork(t, func() {
		space.Execute(t)
	})

	return t, nil
}

// Exit ends the current thread with status.
func (k *Kernel) Exit(status int) {
	t := k.CurrentThread()
	t.ExitStatus = status

	k.L.Debug("thread exit", "thread", t.Name, "id", t.ID, "status", status)
	k.Finish()
}

func (k *Kernel) Halt() {
	k.Interrupt.Halt()
}

// HandleException is the machine's exception handler. System calls go to
// the invoker; any other exception kills the offending thread.
func (k *Kernel) HandleException(which machine.ExceptionType) {
	t := k.CurrentThread()

	if which == machine.SyscallException {
		code := int(k.Machine.ReadRegister(userprog.ResultReg))

		k.L.Trace("syscall", "thread", t.Name, "code", code)

		if k.invoker == nil {
			panic(errors.Errorf("syscall %d with no invoker", code))
		}

		k.invoker.InvokeSyscall(t, code)
		return
	}

	k.L.Error("unexpected user mode exception",
		"type", which,
		"badvaddr", uint32(k.Machine.ReadRegister(machine.BadVAddrReg)),
		"thread", t.Name)

	k.Exit(-1)
}

// Print writes every live thread and the ready list to w.
func (k *Kernel) Print(w io.Writer) {
	for _, t := range k.Threads() {
		fmt.Fprintf(w, "%4d %-16s %s\n", t.ID, t.Name, t.Status())
	}

	k.Scheduler.Print(w)
}
