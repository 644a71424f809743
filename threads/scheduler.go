package threads

import (
	"fmt"
	"io"
	"strings"

	"github.com/evanphx/nachos/log"
	"github.com/evanphx/nachos/machine"
	"github.com/gammazero/deque"
	hclog "github.com/hashicorp/go-hclog"
)

// InterruptLevel reports the current interrupt level.
type InterruptLevel interface {
	Level() machine.IntStatus
}

// Scheduler picks the next thread to run and dispatches it. It runs on a
// single CPU with interrupts disabled by the caller and never takes a lock:
// waiting on one would re-enter the scheduler from inside itself.
//
// Threads are run in the order they were made ready.
type Scheduler struct {
	L hclog.Logger

	interrupt InterruptLevel
	regs      Registers
	switcher  Switcher

	readyList deque.Deque[*Thread]

	// toBeDestroyed holds a finished thread until the CPU is off its
	// stack.
	toBeDestroyed *Thread

	current *Thread
}

func NewScheduler(interrupt InterruptLevel, regs Registers, switcher Switcher) *Scheduler {
	return &Scheduler{
		L:         log.Named("scheduler"),
		interrupt: interrupt,
		regs:      regs,
		switcher:  switcher,
	}
}

// Start installs t, which must already be running, as the CPU occupant.
func (s *Scheduler) Start(t *Thread) {
	assertf(s.current == nil, "scheduler already started with %s", s.current)
	assertf(t.status == Running, "starting scheduler with %s in status %s", t, t.status)

	s.current = t
}

// Current is the thread occupying the CPU.
func (s *Scheduler) Current() *Thread {
	return s.current
}

func (s *Scheduler) Len() int {
	return s.readyList.Len()
}

func (s *Scheduler) assertIntOff() {
	assertf(s.interrupt.Level() == machine.IntOff, "scheduler entered with interrupts %s", s.interrupt.Level())
}

// ReadyToRun marks t ready and puts it at the tail of the ready list. The
// only running thread it accepts is the current one, which is about to
// yield the CPU.
func (s *Scheduler) ReadyToRun(t *Thread) {
	s.assertIntOff()
	assertf(t.status != Running || t == s.current, "%s is running", t)
	assertf(!t.queued, "%s is already on the ready list", t)
	assertf(!t.destroyed, "%s was destroyed", t)

	s.L.Trace("putting thread on ready list", "thread", t.Name)

	t.status = Ready
	t.queued = true
	s.readyList.PushBack(t)
}

// FindNextToRun removes and returns the head of the ready list, or nil when
// it is empty. The thread's status is left for the caller to change.
func (s *Scheduler) FindNextToRun() *Thread {
	s.assertIntOff()

	if s.readyList.Len() == 0 {
		return nil
	}

	t := s.readyList.PopFront()
	t.queued = false

	return t
}

// Run dispatches the CPU to next. The current thread must already have
// been moved off Running (to Ready or Blocked) by the caller.
//
// When finishing is set the current thread is reclaimed, but only once
// another thread is running and nothing executes on its stack anymore.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	oldThread := s.current

	s.assertIntOff()

	if finishing {
		assertf(s.toBeDestroyed == nil, "%s is already waiting to be destroyed", s.toBeDestroyed)
		s.toBeDestroyed = oldThread
	}

	if oldThread.Space != nil {
		oldThread.SaveUserState(s.regs)
		oldThread.Space.SaveState()
	}

	oldThread.CheckOverflow()

	s.current = next
	next.status = Running

	s.L.Debug("switching", "from", oldThread.Name, "to", next.Name)

	s.switcher.Switch(oldThread, next)

	// Back on oldThread's stack.

	s.assertIntOff()

	s.L.Debug("now in thread", "thread", oldThread.Name)

	s.CheckToBeDestroyed()

	if oldThread.Space != nil {
		oldThread.RestoreUserState(s.regs)
		oldThread.Space.RestoreState()
	}
}

// CheckToBeDestroyed reclaims the thread that finished before the current
// one started running. A freshly started thread calls it first thing,
// since it never returns through Run.
func (s *Scheduler) CheckToBeDestroyed() {
	if s.toBeDestroyed == nil {
		return
	}

	t := s.toBeDestroyed
	s.toBeDestroyed = nil

	s.L.Debug("destroying finished thread", "thread", t.Name)
	t.destroy()
}

// Print writes the ready list to w.
func (s *Scheduler) Print(w io.Writer) {
	fmt.Fprintf(w, "Ready list contents: %s\n", s.String())
}

func (s *Scheduler) String() string {
	names := make([]string, 0, s.readyList.Len())

	for i := 0; i < s.readyList.Len(); i++ {
		names = append(names, s.readyList.At(i).String())
	}

	return strings.Join(names, ", ")
}
