package kernel

import (
	"sort"
	"sync"

	"github.com/evanphx/nachos/threads"
)

// ThreadTable hands out thread IDs and tracks every live thread. IDs of
// reclaimed threads are reused, lowest first.
type ThreadTable struct {
	mu        sync.RWMutex
	highWater int
	threads   map[int]*threads.Thread
}

func NewThreadTable() *ThreadTable {
	return &ThreadTable{
		threads: make(map[int]*threads.Thread),
	}
}

func (tt *ThreadTable) Assign(t *threads.Thread) int {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	for i := 1; i <= tt.highWater; i++ {
		if _, ok := tt.threads[i]; !ok {
			t.ID = i
			tt.threads[i] = t
			return i
		}
	}

	tt.highWater++
	id := tt.highWater
	tt.threads[id] = t
	t.ID = id

	return id
}

func (tt *ThreadTable) Remove(t *threads.Thread) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if cur, ok := tt.threads[t.ID]; ok && cur == t {
		delete(tt.threads, t.ID)
	}
}

func (tt *ThreadTable) Lookup(id int) (*threads.Thread, bool) {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	t, ok := tt.threads[id]
	return t, ok
}

func (tt *ThreadTable) Len() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	return len(tt.threads)
}

// List returns the live threads ordered by ID.
func (tt *ThreadTable) List() []*threads.Thread {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	out := make([]*threads.Thread, 0, len(tt.threads))
	for _, t := range tt.threads {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out
}
