// Package threads holds the kernel's thread control blocks, the FIFO
// scheduler and the context switch they are dispatched with.
package threads

import (
	"fmt"

	"github.com/evanphx/nachos/machine"
)

type Status int

const (
	JustCreated Status = iota
	Running
	Ready
	Blocked
)

func (s Status) String() string {
	switch s {
	case JustCreated:
		return "just-created"
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StackFencepost is written at the base of every thread stack.
const StackFencepost = 0xdedbeef

// Space is the part of a user address space the scheduler drives on a
// context switch and on thread destruction.
type Space interface {
	SaveState()
	RestoreState()
	Release()
}

// Registers is the machine register file.
type Registers interface {
	ReadRegister(num int) int32
	WriteRegister(num int, value int32)
}

type Thread struct {
	ID   int
	Name string

	status Status

	// ExitStatus is the value the thread exited with.
	ExitStatus int

	// Space is nil for kernel-only threads.
	Space Space

	userRegisters [machine.NumTotalRegs]int32

	stack []uint32

	queued    bool
	destroyed bool
	onDestroy []func()

	ctx switchContext
	fn  func()
}

// NewThread returns a thread with a fresh stack of stackWords words. It
// does not run until it is forked and dispatched.
func NewThread(name string, stackWords int) *Thread {
	t := &Thread{
		Name:   name,
		status: JustCreated,
	}

	if stackWords > 0 {
		t.stack = make([]uint32, stackWords)
		t.stack[0] = StackFencepost
	}

	t.ctx.init()

	return t
}

// NewRunningThread wraps the calling goroutine as a thread that is already
// on the CPU. The kernel's first thread is created this way.
func NewRunningThread(name string) *Thread {
	t := NewThread(name, 0)
	t.status = Running
	t.ctx.started = true

	return t
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s(%d)", t.Name, t.ID)
}

func (t *Thread) Status() Status {
	return t.status
}

func (t *Thread) SetStatus(s Status) {
	t.status = s
}

// Fork records the function the thread runs once dispatched. fn must not
// return; the kernel wraps it so the thread finishes instead.
func (t *Thread) Fork(fn func()) {
	assertf(t.status == JustCreated, "fork of %s in status %s", t, t.status)
	assertf(t.fn == nil, "%s forked twice", t)

	t.fn = fn
}

// OnDestroy registers f to run when the scheduler reclaims t.
func (t *Thread) OnDestroy(f func()) {
	t.onDestroy = append(t.onDestroy, f)
}

func (t *Thread) Destroyed() bool {
	return t.destroyed
}

// CheckOverflow is fatal when the stack fencepost was overwritten.
func (t *Thread) CheckOverflow() {
	if t.stack != nil {
		assertf(t.stack[0] == StackFencepost, "stack overflow in %s", t)
	}
}

// SaveUserState copies the user registers out of the machine.
func (t *Thread) SaveUserState(regs Registers) {
	for i := range t.userRegisters {
		t.userRegisters[i] = regs.ReadRegister(i)
	}
}

// RestoreUserState loads the saved user registers back into the machine.
func (t *Thread) RestoreUserState(regs Registers) {
	for i, v := range t.userRegisters {
		regs.WriteRegister(i, v)
	}
}

func (t *Thread) UserRegister(num int) int32 {
	return t.userRegisters[num]
}

// destroy reclaims everything t owns. Only the scheduler calls it, and
// never while t's call stack is the one executing.
func (t *Thread) destroy() {
	assertf(!t.destroyed, "%s destroyed twice", t)
	assertf(t.status != Running, "destroying running thread %s", t)

	t.destroyed = true

	if t.Space != nil {
		t.Space.Release()
		t.Space = nil
	}

	for _, f := range t.onDestroy {
		f()
	}

	t.stack = nil
	t.ctx.kill()
}
