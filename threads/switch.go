package threads

import "runtime"

// Switcher transfers the CPU from one thread's execution context to
// another's. Switch returns in old only once some later switch resumes old.
type Switcher interface {
	Switch(old, next *Thread)
}

// switchContext backs every thread with a goroutine. Exactly one of those
// goroutines is runnable at a time; the rest are parked in park.
type switchContext struct {
	resume chan struct{}
	dead   chan struct{}

	started bool
}

func (c *switchContext) init() {
	c.resume = make(chan struct{}, 1)
	c.dead = make(chan struct{})
}

func (c *switchContext) kill() {
	close(c.dead)
}

// HandoffSwitch implements Switcher with goroutine handoff.
type HandoffSwitch struct{}

func (HandoffSwitch) Switch(old, next *Thread) {
	next.wake()
	old.park()
}

func (t *Thread) wake() {
	if !t.ctx.started {
		t.ctx.started = true
		go t.root()
		return
	}

	t.ctx.resume <- struct{}{}
}

// park blocks the calling goroutine until t is switched to again. A thread
// destroyed while parked never resumes; its goroutine unwinds instead.
func (t *Thread) park() {
	select {
	case <-t.ctx.resume:
	case <-t.ctx.dead:
		runtime.Goexit()
	}
}

func (t *Thread) root() {
	assertf(t.fn != nil, "%s dispatched without being forked", t)

	t.fn()

	assertf(false, "%s returned from its root function", t)
}
