package machine

import (
	"github.com/evanphx/nachos/log"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type IntStatus int

const (
	IntOff IntStatus = iota
	IntOn
)

func (s IntStatus) String() string {
	if s == IntOn {
		return "on"
	}

	return "off"
}

// ErrHalted is raised when the machine halts and no halt hook stopped the
// process.
var ErrHalted = errors.New("machine halted")

// Interrupt tracks the simulated interrupt level. No devices are attached,
// so there is never anything pending when the kernel idles.
type Interrupt struct {
	L hclog.Logger

	level IntStatus
	halt  func()
}

// NewInterrupt returns a controller with interrupts disabled. halt is run
// when the machine halts; it may be nil.
func NewInterrupt(halt func()) *Interrupt {
	return &Interrupt{
		L:     log.Named("interrupt"),
		level: IntOff,
		halt:  halt,
	}
}

func (i *Interrupt) Level() IntStatus {
	return i.level
}

// SetLevel changes the interrupt level and returns the previous one.
func (i *Interrupt) SetLevel(now IntStatus) IntStatus {
	old := i.level
	i.level = now

	i.L.Trace("set-level", "old", old, "new", now)
	return old
}

func (i *Interrupt) Enable() {
	i.SetLevel(IntOn)
}

// Idle is called when the ready queue is empty. With no pending interrupts
// nothing can ever become ready again, so the machine halts.
func (i *Interrupt) Idle() {
	i.L.Debug("machine idle, no interrupts to do")
	i.Halt()
}

func (i *Interrupt) Halt() {
	i.L.Info("machine halting")

	if i.halt != nil {
		i.halt()
	}

	panic(ErrHalted)
}
