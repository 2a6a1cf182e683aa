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

// Package irq routes GSIs bound to an SM into semaphore.SM.Up, masking
// the source on delivery (spec.md §4.5 "SMs bound to interrupt
// sources"). A masked source is re-armed only by a direct call to
// Router.Unmask; the ctrl_sm down path in package syscall does not call
// it, so a down on the bound SM leaves the GSI masked. Grounded on
// pidmonitor's event-dispatch-to-channel shape, generalized from "one
// process table, one event channel" to "one routing table, N bound
// semaphores".
package irq

import (
	"sync"

	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/scheduler"
	"github.com/bedrocksystems/NOVA/semaphore"
	"github.com/bedrocksystems/NOVA/status"
)

// Router maps GSI numbers to the SM bound to receive them (opcode 13,
// assign_int) and tracks each GSI's masked state.
type Router struct {
	mu     sync.Mutex
	bound  map[uint32]*semaphore.SM
	masked map[uint32]bool
}

// NewRouter constructs an empty routing table.
func NewRouter() *Router {
	return &Router{
		bound:  make(map[uint32]*semaphore.SM),
		masked: make(map[uint32]bool),
	}
}

// Bind associates gsi with sm (assign_int) and records the binding on sm
// itself so SM.Interrupt can report it back to ctrl_sm/ctrl_pd callers.
func (r *Router) Bind(gsi uint32, sm *semaphore.SM) {
	sm.BindInterrupt(gsi)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[gsi] = sm
}

// Unbind removes any routing for gsi.
func (r *Router) Unbind(gsi uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bound, gsi)
	delete(r.masked, gsi)
}

// Fire is the GSI handler: it masks the source, then calls the bound
// SM's Up on the CPU the interrupt landed on. A source with no bound SM,
// or one that is already masked (the controlled down hasn't re-armed it
// yet), is reported as BadDev rather than silently dropped.
func (r *Router) Fire(gsi uint32, sched *scheduler.Scheduler, cpu percpu.ID) status.Code {
	r.mu.Lock()
	if r.masked[gsi] {
		r.mu.Unlock()
		return status.BadDev
	}
	sm, ok := r.bound[gsi]
	if !ok {
		r.mu.Unlock()
		return status.BadDev
	}
	r.masked[gsi] = true
	r.mu.Unlock()

	return sm.Up(sched, cpu)
}

// Unmask re-arms gsi for delivery. No syscall path calls it: the ctrl_sm
// down handler does not unmask the bound GSI, so after Fire a source
// stays masked until Unmask is called directly.
func (r *Router) Unmask(gsi uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.masked, gsi)
}

// Masked reports whether gsi is currently masked.
func (r *Router) Masked(gsi uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.masked[gsi]
}
