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

// Package semaphore implements the SM kernel object (spec.md §4.5): a
// counting semaphore that saturates rather than wraps (spec.md §9 Open
// Question, resolved here in favor of saturation: see DESIGN.md), an
// optional GSI binding for interrupt delivery, and a FIFO blocked-EC
// queue. Grounded on the teacher's small-object-plus-spinlock shape
// (pidmonitor.PidMon, fileMonitor.FileMon).
package semaphore

import (
	"sync"
	"time"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/sc"
	"github.com/bedrocksystems/NOVA/scheduler"
	"github.com/bedrocksystems/NOVA/status"
)

// DefaultSaturation is the counter ceiling used when a caller does not
// supply one: spec.md §3 says only "saturates at max", so an explicit,
// generous default stands in for an architecture word's worth of events
// without forcing every caller to wrap at the full uint64 range.
const DefaultSaturation = 1<<32 - 1

// waiter pairs a blocked EC with the SC it donated into Down — the SC
// that Up must hand to scheduler.Unblock once the wait is satisfied.
type waiter struct {
	ec *ec.EC
	sc *sc.SC
}

// SM is a counting semaphore.
type SM struct {
	kobject.Base

	mu         sync.Mutex
	counter    uint64
	saturation uint64
	interrupt  *uint32 // nil unless bound to a GSI (spec.md §4.5 "SMs bound to interrupt sources")
	queue      []waiter
}

// New constructs an unbound SM with the given initial counter value and
// saturation ceiling (0 saturation means DefaultSaturation).
func New(initial uint64, saturation uint64) *SM {
	if saturation == 0 {
		saturation = DefaultSaturation
	}
	return &SM{
		Base:       kobject.NewBase(kobject.KindSM),
		counter:    initial,
		saturation: saturation,
	}
}

// BindInterrupt records the GSI this SM is bound to (spec.md §4.5: its
// Up is called by the GSI handler after masking the source).
func (s *SM) BindInterrupt(gsi uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupt = &gsi
}

// Interrupt returns the bound GSI and whether one is bound.
func (s *SM) Interrupt() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupt == nil {
		return 0, false
	}
	return *s.interrupt, true
}

// Counter returns the current counter value (debug/introspection only;
// racy against concurrent Up/Down by construction, like reading any live
// counter).
func (s *SM) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Len reports how many ECs are currently blocked on this SM.
func (s *SM) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Up implements spec.md §4.5 up(): if an EC is queued, wake the head of
// the queue (FIFO) by handing its donor SC to the scheduler; otherwise
// increment the counter, or fail with Ovrflow at saturation. fromCPU is
// the CPU the caller (the GSI handler or the up() syscall) is executing
// on, needed to decide whether the woken SC's release is local or must
// go through the remote release queue.
func (s *SM) Up(sched *scheduler.Scheduler, fromCPU percpu.ID) status.Code {
	s.mu.Lock()
	if len(s.queue) > 0 {
		w := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		w.ec.SetBlocked(false)
		sched.Unblock(fromCPU, w.sc)
		return status.Success
	}
	defer s.mu.Unlock()
	if s.counter >= s.saturation {
		return status.Ovrflow
	}
	s.counter++
	return status.Success
}

// DownResult reports the outcome of Down: either it succeeded
// immediately (Blocked == false), or the caller now owns no CPU time and
// the returned Decision (if Wheel != nil and Timeout > 0, a timeout was
// also armed) is what the caller should act on next.
type DownResult struct {
	Blocked  bool
	Decision scheduler.Decision
}

// Down implements spec.md §4.5 down(caller, zero_flag, timeout): if the
// counter is positive, decrement it (or clear it, if zeroFlag) and
// return immediately. Otherwise enqueue caller (donating donorSC) at the
// tail, optionally arm a timeout on wheel, and ask sched to dispatch
// something else on caller's CPU.
func (s *SM) Down(caller *ec.EC, donorSC *sc.SC, zeroFlag bool, timeout time.Duration, wheel *sc.Wheel, sched *scheduler.Scheduler) DownResult {
	s.mu.Lock()
	if s.counter > 0 {
		if zeroFlag {
			s.counter = 0
		} else {
			s.counter--
		}
		s.mu.Unlock()
		return DownResult{Blocked: false}
	}

	caller.SetBlocked(true)
	s.queue = append(s.queue, waiter{ec: caller, sc: donorSC})
	s.mu.Unlock()

	if timeout > 0 && wheel != nil {
		wheel.Arm(caller, time.Now().Add(timeout))
	}

	d := sched.Schedule(donorSC.CPU, time.Now(), true)
	return DownResult{Blocked: true, Decision: d}
}

// Timeout implements spec.md §4.5 timeout(ec): if e is still queued,
// dequeue it and report true so the caller can unblock it with a Timeout
// reply; otherwise e was already woken by a concurrent Up and this is a
// no-op race loss, reported as false.
func (s *SM) Timeout(e *ec.EC) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.queue {
		if w.ec == e {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			e.SetBlocked(false)
			return true
		}
	}
	return false
}
