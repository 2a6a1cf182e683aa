//
// Copyright 2024 The NOVA Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package sc

import (
	"container/heap"
	"sync"
	"time"

	"github.com/bedrocksystems/NOVA/ec"
)

// Entry is one armed timeout (spec.md §5 "Timeouts": "a per-CPU sorted
// timeout structure; insertion from the owning CPU only").
type Entry struct {
	Deadline time.Time
	EC       *ec.EC
	index    int // heap bookkeeping
}

// timeoutHeap orders Entries by Deadline; implements container/heap.Interface.
type timeoutHeap []*Entry

func (h timeoutHeap) Len() int            { return len(h) }
func (h timeoutHeap) Less(i, j int) bool  { return h[i].Deadline.Before(h[j].Deadline) }
func (h timeoutHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timeoutHeap) Push(x interface{}) { e := x.(*Entry); e.index = len(*h); *h = append(*h, e) }
func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Wheel is a per-CPU sorted timeout structure. A timer interrupt calls
// Tick, which pops every expired entry — the same scan-then-drain shape
// as the teacher's fileMonitor ticker loop (fileMonitor/monitor.go
// checkFiles): collect expirations under the lock, then release it before
// the caller acts on them, so new Arm calls aren't blocked by whatever
// SM.timeout does with the expired ECs.
type Wheel struct {
	mu   sync.Mutex
	h    timeoutHeap
	byEC map[*ec.EC]*Entry
}

// NewWheel returns an empty timeout wheel.
func NewWheel() *Wheel {
	return &Wheel{byEC: make(map[*ec.EC]*Entry)}
}

// Arm schedules e to expire at deadline. If e already has an armed
// timeout, it is replaced. Must only be called from e's owning CPU
// (spec.md §5).
func (w *Wheel) Arm(e *ec.EC, deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.byEC[e]; ok {
		heap.Remove(&w.h, old.index)
	}
	entry := &Entry{Deadline: deadline, EC: e}
	heap.Push(&w.h, entry)
	w.byEC[e] = entry
}

// Cancel removes e's armed timeout, if any, reporting whether one existed
// (spec.md §4.5 SM.timeout: "if still queued, dequeue").
func (w *Wheel) Cancel(e *ec.EC) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.byEC[e]
	if !ok {
		return false
	}
	heap.Remove(&w.h, entry.index)
	delete(w.byEC, e)
	return true
}

// Tick pops every entry whose deadline is at or before now and returns
// the ECs they belonged to, in deadline order. Callers are expected to
// invoke their timeout handler (typically semaphore.SM.Timeout) on each
// one after Tick returns, exactly as fileMon's checkFiles releases its
// lock before sending its collected event list.
func (w *Wheel) Tick(now time.Time) []*ec.EC {
	w.mu.Lock()
	var fired []*ec.EC
	for len(w.h) > 0 && !w.h[0].Deadline.After(now) {
		entry := heap.Pop(&w.h).(*Entry)
		delete(w.byEC, entry.EC)
		fired = append(fired, entry.EC)
	}
	w.mu.Unlock()
	return fired
}

// Len reports how many timeouts are currently armed.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.h)
}
