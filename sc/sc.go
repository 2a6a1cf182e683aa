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

// Package sc implements the Scheduling Context kernel object (spec.md
// §3): a priority + time-budget bundle bound to exactly one EC, plus the
// per-CPU timeout wheel that SM.Down arms when it blocks a caller.
package sc

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/percpu"
)

// MaxPriority is the highest valid priority (spec.md §3: "priority
// (0..127)").
const MaxPriority = 127

// SC is a scheduling context.
type SC struct {
	kobject.Base

	EC  *ec.EC
	CPU percpu.ID

	Priority int
	Budget   time.Duration

	mu   sync.Mutex
	left time.Duration
	last time.Time

	used atomic.Int64 // accumulated runtime in nanoseconds, monotonic
}

// New constructs an SC bound to e, with Left initialized to the full
// Budget (an SC starts with a fresh quantum).
func New(e *ec.EC, cpu percpu.ID, priority int, budget time.Duration) *SC {
	if priority < 0 {
		priority = 0
	}
	if priority > MaxPriority {
		priority = MaxPriority
	}
	return &SC{
		Base:     kobject.NewBase(kobject.KindSC),
		EC:       e,
		CPU:      cpu,
		Priority: priority,
		Budget:   budget,
		left:     budget,
	}
}

// Left returns the remaining time in the SC's current quantum.
func (s *SC) Left() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

// SetLeft overwrites the remaining quantum; used by the scheduler when
// re-enqueuing at head (budget remains) or reloading a fresh quantum at
// tail (budget exhausted).
func (s *SC) SetLeft(d time.Duration) {
	s.mu.Lock()
	s.left = d
	s.mu.Unlock()
}

// ReloadBudget resets Left to the full Budget, used when an SC is
// re-enqueued at the tail of its priority after exhausting its quantum
// (spec.md §4.4 Dispatch step 1).
func (s *SC) ReloadBudget() { s.SetLeft(s.Budget) }

// Last returns the timestamp this SC was last dispatched at.
func (s *SC) Last() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SetLast records the dispatch timestamp.
func (s *SC) SetLast(t time.Time) {
	s.mu.Lock()
	s.last = t
	s.mu.Unlock()
}

// Account adds the elapsed time since Last to the accumulated runtime and
// subtracts it from Left, clamping Left at zero (it must never go
// negative: a preemption interrupt can fire slightly late). Returns the
// updated Left.
func (s *SC) Account(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := now.Sub(s.last)
	if elapsed < 0 {
		elapsed = 0
	}
	s.used.Add(int64(elapsed))
	s.left -= elapsed
	if s.left < 0 {
		s.left = 0
	}
	s.last = now
	return s.left
}

// Used returns the accumulated runtime (spec.md §8 property 7: "ctrl_sc
// returns a value >= any previously returned value on the same SC" —
// guaranteed here since used is only ever incremented).
func (s *SC) Used() time.Duration {
	return time.Duration(s.used.Load())
}
