package field

import (
	"math"
	"sync"
	"sync/atomic"
)

// LogTable memoizes log(k) for small integers. Reads of populated entries
// take no lock; growth copies the table under a mutex and publishes the new
// slice atomically, so a reader never observes a partially filled entry.
type LogTable struct {
	mu     sync.Mutex
	values atomic.Pointer[[]float64]
}

var logs LogTable

// Logs returns the process-wide table.
func Logs() *LogTable { return &logs }

// Get returns log(k); log(0) is -Inf.
func (t *LogTable) Get(k int) float64 {
	if v := t.values.Load(); v != nil && k < len(*v) {
		return (*v)[k]
	}
	t.EnsureSize(k + 1)
	return (*t.values.Load())[k]
}

// EnsureSize grows the table to hold at least n entries. The table never
// shrinks.
func (t *LogTable) EnsureSize(n int) {
	if v := t.values.Load(); v != nil && n <= len(*v) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.values.Load()
	var cur []float64
	if old != nil {
		cur = *old
	}
	if n <= len(cur) {
		return
	}
	size := 2 * len(cur)
	if size < n {
		size = n
	}
	if size < 64 {
		size = 64
	}
	next := make([]float64, size)
	copy(next, cur)
	for k := len(cur); k < size; k++ {
		next[k] = math.Log(float64(k))
	}
	t.values.Store(&next)
}

// Len reports the number of populated entries.
func (t *LogTable) Len() int {
	if v := t.values.Load(); v != nil {
		return len(*v)
	}
	return 0
}
