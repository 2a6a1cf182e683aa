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

// Package percpu models the "CPU-local state" trick the original kernel
// implements with a per-address-space linker section (spec.md §9 DESIGN
// NOTES): an explicit array of per-CPU cells, indexed by the logical CPU
// id of whichever goroutine is currently standing in for that CPU.
// Ordinary code only ever touches its own cell via Cell.Local (called from
// the goroutine pinned to that CPU); cross-CPU code goes through the
// explicit Remote accessor, which is the only sanctioned way to reach into
// another CPU's state (spec.md §9: "cross-CPU access goes through an
// explicit remote(cpu) helper that returns a raw pointer into the remote
// cell").
package percpu

import "fmt"

// ID is a logical CPU index, stable for the lifetime of the kernel
// instance. It is assigned at boot from firmware.BootInfo's CPU table and never
// changes; an EC's CPU affinity (spec.md invariant 1) is expressed in
// terms of this type.
type ID int

// Set is a fixed-size array of per-CPU cells of type T, one per CPU named
// by firmware topology. It never grows after construction: CPU count is
// a boot-time fact (kconfig.Board.NumCPUs), not a runtime variable.
type Set[T any] struct {
	cells []T
}

// NewSet allocates a Set sized for n CPUs, default-constructing each cell.
func NewSet[T any](n int) *Set[T] {
	if n <= 0 {
		panic("percpu: non-positive CPU count")
	}
	return &Set[T]{cells: make([]T, n)}
}

// Len returns the number of CPUs this Set was sized for.
func (s *Set[T]) Len() int { return len(s.cells) }

// Local returns a pointer to the calling CPU's own cell. Callers are
// trusted to pass the CPU they are actually running as; the kernel has no
// portable way to ask the Go runtime which OS thread it's on, so the
// logical CPU id is threaded explicitly through every dispatch path
// instead (see scheduler.Scheduler.Schedule).
func (s *Set[T]) Local(cpu ID) *T {
	s.checkBounds(cpu)
	return &s.cells[cpu]
}

// Remote returns a pointer into another CPU's cell. Every call site using
// this instead of Local is, by construction, a cross-CPU access and must
// go through the synchronization the target field documents (an atomic,
// a spinlock, or an IPI mailbox) — plain field access here is exactly the
// bug class spec.md §9 calls out.
func (s *Set[T]) Remote(cpu ID) *T {
	s.checkBounds(cpu)
	return &s.cells[cpu]
}

// All returns the cells for every CPU, in CPU-index order; used only for
// boot-time initialization and debug dumps, never on a
// dispatch path.
func (s *Set[T]) All() []T { return s.cells }

func (s *Set[T]) checkBounds(cpu ID) {
	if cpu < 0 || int(cpu) >= len(s.cells) {
		panic(fmt.Sprintf("percpu: cpu %d out of range [0,%d)", cpu, len(s.cells)))
	}
}
