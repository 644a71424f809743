package kernel

import (
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/threads"
	"github.com/pkg/errors"
)

// NewThread creates a thread registered in the thread table. It is dropped
// from the table when the scheduler reclaims it.
func (k *Kernel) NewThread(name string) *threads.Thread {
	t := threads.NewThread(name, k.cfg.StackWords)

	k.threads.Assign(t)
	t.OnDestroy(func() {
		k.threads.Remove(t)
	})

	return t
}

// Fork makes t runnable with fn as its body. When fn returns the thread
// finishes.
func (k *Kernel) Fork(t *threads.Thread, fn func()) {
	t.Fork(func() {
		k.begin()
		fn()
		k.Finish()
	})

	old := k.Interrupt.SetLevel(machine.IntOff)
	k.Scheduler.ReadyToRun(t)
	k.Interrupt.SetLevel(old)
}

// begin is the first thing a new thread runs. It never came back through
// Scheduler.Run, so it does that function's cleanup itself.
func (k *Kernel) begin() {
	k.L.Trace("beginning thread", "thread", k.CurrentThread().Name)

	k.Scheduler.CheckToBeDestroyed()
	k.Interrupt.Enable()
}

// Yield gives the CPU to the next ready thread, if there is one, and puts
// the current thread at the back of the ready list.
func (k *Kernel) Yield() {
	old := k.Interrupt.SetLevel(machine.IntOff)

	cur := k.CurrentThread()

	next := k.Scheduler.FindNextToRun()
	if next != nil {
		k.Scheduler.ReadyToRun(cur)
		k.Scheduler.Run(next, false)
	}

	k.Interrupt.SetLevel(old)
}

// Sleep blocks the current thread. Someone else must put it back on the
// ready list. Interrupts must already be disabled.
func (k *Kernel) Sleep(finishing bool) {
	if k.Interrupt.Level() != machine.IntOff {
		panic(errors.New("sleep with interrupts enabled"))
	}

	cur := k.CurrentThread()

	k.L.Trace("sleeping thread", "thread", cur.Name)

	cur.SetStatus(threads.Blocked)

	next := k.Scheduler.FindNextToRun()
	for next == nil {
		k.Interrupt.Idle()
		next = k.Scheduler.FindNextToRun()
	}

	k.Scheduler.Run(next, finishing)
}

// Finish ends the current thread. It does not return.
func (k *Kernel) Finish() {
	k.Interrupt.SetLevel(machine.IntOff)

	cur := k.CurrentThread()

	k.L.Debug("finishing thread", "thread", cur.Name)

	for _, sem := range k.joiners[cur] {
		sem.V()
	}

	delete(k.joiners, cur)

	k.Sleep(true)

	panic(errors.New("finished thread resumed"))
}

// RunUntilIdle yields the calling thread until no other thread is ready.
func (k *Kernel) RunUntilIdle() {
	for k.Scheduler.Len() > 0 {
		k.Yield()
	}
}

// Join waits for the thread with the given ID to finish and returns its
// exit status. It reports false if there is no such thread or it is the
// caller.
func (k *Kernel) Join(id int) (int, bool) {
	t, ok := k.Thread(id)
	if !ok || t == k.CurrentThread() {
		return 0, false
	}

	sem := k.NewSemaphore("join "+t.Name, 0)

	old := k.Interrupt.SetLevel(machine.IntOff)
	k.joiners[t] = append(k.joiners[t], sem)
	k.Interrupt.SetLevel(old)

	sem.P()

	return t.ExitStatus, true
}
