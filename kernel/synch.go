package kernel

import (
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/threads"
	"github.com/gammazero/deque"
)

// Semaphore is a counting semaphore built on Sleep and ReadyToRun.
// Waiters are woken in the order they arrived.
type Semaphore struct {
	Name string

	k     *Kernel
	value int
	queue deque.Deque[*threads.Thread]
}

func (k *Kernel) NewSemaphore(name string, initial int) *Semaphore {
	return &Semaphore{
		Name:  name,
		k:     k,
		value: initial,
	}
}

func (s *Semaphore) Value() int {
	return s.value
}

// P waits until the value is positive, then decrements it.
func (s *Semaphore) P() {
	old := s.k.Interrupt.SetLevel(machine.IntOff)

	for s.value == 0 {
		s.queue.PushBack(s.k.CurrentThread())
		s.k.Sleep(false)
	}

	s.value--

	s.k.Interrupt.SetLevel(old)
}

// V increments the value, waking one waiter if there is any.
func (s *Semaphore) V() {
	old := s.k.Interrupt.SetLevel(machine.IntOff)

	if s.queue.Len() > 0 {
		s.k.Scheduler.ReadyToRun(s.queue.PopFront())
	}

	s.value++

	s.k.Interrupt.SetLevel(old)
}
