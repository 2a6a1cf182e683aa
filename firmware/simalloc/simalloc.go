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

// Package simalloc is a software reference implementation of the page
// and slab allocator contracts (spec.md §6.4); a real one is built atop
// hardware memory controllers and is explicitly out of scope (spec.md
// §1). PageAllocator is a buddy allocator over a flat page-number space;
// its Free defers into a pending queue that FreeWait drains, standing in
// for "frees queued by other cores" the same way fileMonitor's
// ticker-driven expiry-scan-and-drain loop (grounding sc.Wheel) batches
// up pending work instead of acting on each event inline.
package simalloc

import "sync"

// PageAllocator is a buddy allocator over page indices [base, base+2^maxOrder).
type PageAllocator struct {
	mu       sync.Mutex
	maxOrder uint
	free     [][]uint64 // free[order] is a stack of free block base page numbers
	pending  chan uint64
}

// NewPageAllocator constructs an allocator covering 2^maxOrder pages
// starting at basePage.
func NewPageAllocator(basePage uint64, maxOrder uint) *PageAllocator {
	a := &PageAllocator{
		maxOrder: maxOrder,
		free:     make([][]uint64, maxOrder+1),
		pending:  make(chan uint64, 4096),
	}
	a.free[maxOrder] = []uint64{basePage}
	return a
}

// Alloc returns a 2^order-page-aligned block, splitting a larger free
// block if no exact-order block is available.
func (a *PageAllocator) Alloc(order uint) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocLocked(order)
}

func (a *PageAllocator) allocLocked(order uint) (uint64, bool) {
	if order > a.maxOrder {
		return 0, false
	}
	if n := len(a.free[order]); n > 0 {
		page := a.free[order][n-1]
		a.free[order] = a.free[order][:n-1]
		return page, true
	}
	page, ok := a.allocLocked(order + 1)
	if !ok {
		return 0, false
	}
	buddy := page + (1 << order)
	a.free[order] = append(a.free[order], buddy)
	return page, true
}

// Free queues page for release. It does not become allocatable again
// until FreeWait drains the queue — modeling "free() on one core, not
// yet visible to alloc() on another until a drain point," the same
// cross-core-visibility gap the delegation path's TLB shootdown exists
// to close for mappings. Once the pending queue is full, Free puts the
// page straight back on the order-0 free list instead.
func (a *PageAllocator) Free(page uint64) {
	select {
	case a.pending <- page:
	default:
		// Queue saturated: fall back to an immediate local free rather
		// than drop the page.
		a.mu.Lock()
		a.free[0] = append(a.free[0], page)
		a.mu.Unlock()
	}
}

// FreeWait drains every page queued by Free back into the order-0 free
// list (spec.md §6.4 "free_wait() to drain pending frees across cores").
// No buddy coalescing is attempted on the drained pages; this is a
// reference/test backend, not a production allocator.
func (a *PageAllocator) FreeWait() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		select {
		case page := <-a.pending:
			a.free[0] = append(a.free[0], page)
		default:
			return
		}
	}
}

// Slab is a fixed-capacity, type-safe object cache (spec.md §6.4 "per-type
// fixed-size cache"). Kernel object creation in package syscall does not
// use it: PD, EC, SC, PT and SM objects are allocated on the Go heap.
type Slab[T any] struct {
	mu   sync.Mutex
	free []*T
}

// NewSlab preallocates capacity zero-valued T objects.
func NewSlab[T any](capacity int) *Slab[T] {
	free := make([]*T, capacity)
	for i := range free {
		free[i] = new(T)
	}
	return &Slab[T]{free: free}
}

// Alloc returns an object from the cache, or false if exhausted.
func (s *Slab[T]) Alloc() (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		obj := s.free[n-1]
		s.free = s.free[:n-1]
		return obj, true
	}
	return nil, false
}

// Free zeroes obj and returns it to the cache.
func (s *Slab[T]) Free(obj *T) {
	var zero T
	*obj = zero
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = append(s.free, obj)
}

// Len reports how many objects are currently free.
func (s *Slab[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.free)
}
