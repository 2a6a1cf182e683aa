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

// Package hazard implements the latched per-EC and per-CPU condition bits
// that force a return-to-user path to detour (spec.md glossary "Hazard";
// §4.6 step 1). A Set is a plain atomic bitset with explicit test, raise,
// clear and snapshot operations, per spec.md §9 DESIGN NOTES: "treat as an
// atomic integer with explicit test-and-set, clear, and snapshot
// operations".
package hazard

import "go.uber.org/atomic"

// Bit is one latched condition.
type Bit uint32

const (
	// Recall means an external actor asked this EC to detour into its
	// event portal instead of resuming user/guest mode (spec.md §4.3
	// "Recall").
	Recall Bit = 1 << iota
	// Sched means the EC's scheduling budget expired; the next
	// return-to-user path must re-enter Scheduler.Schedule.
	Sched
	// Sleep means the EC has an armed timeout that has not yet fired.
	Sleep
	// TscAdj means per-guest TSC offset bookkeeping is owed before the
	// next guest entry.
	TscAdj
	// Illegal means a reply loaded an illegal architectural state; the EC
	// must be killed before it resumes user mode (spec.md §4.3 step 2).
	Illegal
	// Kill means destruction has been requested; the owning CPU must
	// finalize it at the next hazard checkpoint rather than resume the EC.
	Kill
)

// Set is an atomic hazard bitset. The zero value has no bits set.
type Set struct {
	bits atomic.Uint32
}

// Test reports whether every bit in b is set.
func (s *Set) Test(b Bit) bool {
	return Bit(s.bits.Load())&b == b
}

// Raise sets every bit in b. Safe to call from any CPU: this is exactly
// the cross-CPU path spec.md §5 "Cancellation" describes ("remote cores
// request cancellation by setting hazard bits and IPI'ing").
func (s *Set) Raise(b Bit) {
	for {
		old := s.bits.Load()
		next := old | uint32(b)
		if old == next || s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Clear unsets every bit in b. Only the owning CPU should clear an EC's
// hazards (spec.md §3 "Mutate": "EC state is only mutated by (a) its
// owning CPU..."); Set does not enforce this, callers must.
func (s *Set) Clear(b Bit) {
	for {
		old := s.bits.Load()
		next := old &^ uint32(b)
		if old == next || s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// TestAndClear atomically clears b and reports whether it had been set.
func (s *Set) TestAndClear(b Bit) bool {
	for {
		old := s.bits.Load()
		if old&uint32(b) == 0 {
			return false
		}
		if s.bits.CompareAndSwap(old, old&^uint32(b)) {
			return true
		}
	}
}

// Snapshot returns every currently-set bit.
func (s *Set) Snapshot() Bit {
	return Bit(s.bits.Load())
}

// Any reports whether any hazard bit at all is set; the fast-path check
// on the return-to-user boundary.
func (s *Set) Any() bool {
	return s.bits.Load() != 0
}
