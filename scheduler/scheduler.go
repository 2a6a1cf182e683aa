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

// Package scheduler implements the per-CPU O(1) priority dispatcher
// (spec.md §4.4): an array of FIFO ready queues indexed by priority with a
// prio_top hint, a spinlock-protected release queue per CPU for
// cross-CPU unblocks, and the Dispatch/Schedule accounting sequence.
package scheduler

import (
	"sync"
	"time"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/hazard"
	"github.com/bedrocksystems/NOVA/kconfig"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/sc"
)

// cpuState is one CPU's scheduling state: its ready queues, release
// queue and currently-dispatched SC. Only the owning CPU's goroutine may
// touch ready/prioTop/current without going through a lock; the release
// queue has its own spinlock because any CPU may push into it (spec.md
// §5 "Release queue: one spinlock per CPU").
type cpuState struct {
	ready   [kconfig.Priorities][]*sc.SC
	prioTop int // -1 means every queue is empty

	releaseMu sync.Mutex
	release   []*sc.SC

	current *sc.SC
	idle    *ec.EC

	Station hazard.Station
}

// Scheduler owns one cpuState per CPU.
type Scheduler struct {
	cpus *percpu.Set[cpuState]
}

// New constructs a Scheduler for n CPUs. idle supplies each CPU's idle
// EC, dispatched whenever that CPU's ready queue is empty (spec.md §4.4
// Dispatch step 3).
func New(n int, idle func(percpu.ID) *ec.EC) *Scheduler {
	s := &Scheduler{cpus: percpu.NewSet[cpuState](n)}
	for i := 0; i < n; i++ {
		cs := s.cpus.Local(percpu.ID(i))
		cs.prioTop = -1
		cs.idle = idle(percpu.ID(i))
	}
	return s
}

// Decision is what Schedule picked: the SC to run, and the deadline its
// preemption timer should be armed for.
type Decision struct {
	SC        *sc.SC // nil means the idle EC was picked
	EC        *ec.EC
	PreemptAt time.Time
}

// Enqueue places scx on cpu's ready queue at its priority. head is true
// when the SC still has leftover budget (re-enqueued after a helping
// hand-back or a voluntary yield); false when it exhausted its quantum
// and is going to the tail behind same-priority peers (spec.md §4.4
// "Ready queue").
func (s *Scheduler) Enqueue(cpu percpu.ID, scx *sc.SC, head bool) {
	cs := s.cpus.Local(cpu)
	p := scx.Priority
	if head {
		cs.ready[p] = append([]*sc.SC{scx}, cs.ready[p]...)
	} else {
		cs.ready[p] = append(cs.ready[p], scx)
	}
	if p > cs.prioTop {
		cs.prioTop = p
	}
}

// dequeueHighest pops the SC at cs's highest non-empty priority, scanning
// prioTop downward (spec.md §4.4: "dequeue scans downward from it").
func dequeueHighest(cs *cpuState) *sc.SC {
	for p := cs.prioTop; p >= 0; p-- {
		if len(cs.ready[p]) == 0 {
			continue
		}
		scx := cs.ready[p][0]
		cs.ready[p] = cs.ready[p][1:]
		cs.prioTop = p
		return scx
	}
	cs.prioTop = -1
	return nil
}

// Unblock implements spec.md §4.4's unblock(sc): if sc's CPU is the
// caller's own CPU, push it straight to the ready queue head (it can run
// immediately, no IPI needed); otherwise push it onto the target CPU's
// release queue. The RRQ IPI itself has no separate representation here
// — the next call to Schedule on the target CPU drains its release queue
// unconditionally (step 2 below), which is the effect an RRQ delivery has
// in the original.
func (s *Scheduler) Unblock(fromCPU percpu.ID, scx *sc.SC) {
	if scx.CPU == fromCPU {
		s.Enqueue(fromCPU, scx, true)
		return
	}
	cs := s.cpus.Remote(scx.CPU)
	cs.releaseMu.Lock()
	cs.release = append(cs.release, scx)
	cs.releaseMu.Unlock()
}

// drainRelease moves every pending release-queue entry for cpu into its
// ready queue; called at the top of every Schedule (spec.md §4.4 Dispatch
// step 2).
func (s *Scheduler) drainRelease(cpu percpu.ID) {
	cs := s.cpus.Local(cpu)
	cs.releaseMu.Lock()
	pending := cs.release
	cs.release = nil
	cs.releaseMu.Unlock()

	for _, scx := range pending {
		s.Enqueue(cpu, scx, true)
	}
}

// Schedule implements spec.md §4.4 Dispatch: account the outgoing SC,
// drain the release queue, pick the next SC (or the idle EC if none is
// ready), and return the Decision the caller should act on by actually
// transferring control. blockedSelf is true when the outgoing SC's EC is
// blocking (on an SM or a timeout) rather than merely being preempted or
// voluntarily yielding — a blocked SC is never re-enqueued here, whatever
// unblocks it later calls Unblock itself.
func (s *Scheduler) Schedule(cpu percpu.ID, now time.Time, blockedSelf bool) Decision {
	cs := s.cpus.Local(cpu)

	if cs.current != nil && !blockedSelf {
		left := cs.current.Account(now)
		if left > 0 {
			s.Enqueue(cpu, cs.current, true)
		} else {
			cs.current.ReloadBudget()
			s.Enqueue(cpu, cs.current, false)
		}
	} else if cs.current != nil {
		cs.current.Account(now)
	}
	cs.current = nil

	s.drainRelease(cpu)

	picked := dequeueHighest(cs)
	cs.current = picked

	if picked == nil {
		cs.idle.Hazards.Clear(hazard.Sched)
		return Decision{EC: cs.idle, PreemptAt: time.Time{}}
	}

	picked.SetLast(now)
	return Decision{SC: picked, EC: picked.EC, PreemptAt: now.Add(picked.Left())}
}

// Current returns the SC currently dispatched on cpu, or nil if the idle
// EC is running.
func (s *Scheduler) Current(cpu percpu.ID) *sc.SC {
	return s.cpus.Local(cpu).current
}

// Station returns cpu's RKE acknowledgement station (spec.md §8 property
// 10), used by the hazard/recall machinery.
func (s *Scheduler) Station(cpu percpu.ID) *hazard.Station {
	return &s.cpus.Local(cpu).Station
}
