package pool

import (
	"sort"
	"sync/atomic"
	"testing"
)

func TestJoinCollectsAllResults(t *testing.T) {
	p := New(4)
	const n = 50
	for i := 0; i < n; i++ {
		i := i
		p.Submit(i, func() interface{} { return i * i })
	}
	results := p.Join()
	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}
	seen := make(map[int]bool, n)
	for _, r := range results {
		if r.Val.(int) != r.ID*r.ID {
			t.Fatalf("task %d: expected %d, got %v", r.ID, r.ID*r.ID, r.Val)
		}
		seen[r.ID] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct task IDs, got %d", n, len(seen))
	}
}

func TestSubmitNeverExceedsWorkerConcurrency(t *testing.T) {
	const workers = 3
	p := New(workers)

	var running int32
	var maxRunning int32
	const n = 30
	for i := 0; i < n; i++ {
		p.Submit(i, func() interface{} {
			cur := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if cur <= m || atomic.CompareAndSwapInt32(&maxRunning, m, cur) {
					break
				}
			}
			atomic.AddInt32(&running, -1)
			return nil
		})
	}
	p.Join()
	if maxRunning > workers {
		t.Fatalf("observed %d concurrent tasks, want <= %d", maxRunning, workers)
	}
}

func TestShutdownUnblocksPendingDeliveries(t *testing.T) {
	p := New(1)
	p.Submit(1, func() interface{} { return 1 })
	p.Submit(2, func() interface{} { return 2 })
	// Do not poll; fill the result buffer, then shut down.
	p.Shutdown()
	p.Join() // must return promptly, not hang on a full results channel
}

func ids(results []Result) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	sort.Ints(out)
	return out
}
