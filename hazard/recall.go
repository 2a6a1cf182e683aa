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

package hazard

import (
	"time"

	"go.uber.org/atomic"
)

// Station is the per-CPU "RKE acknowledgement counter" of spec.md §8
// property 10: "A strong recall on a remote CPU completes only after an
// RKE acknowledgement counter observable from the requester has
// advanced." Every CPU owns exactly one Station (the Station field of
// the scheduler package's per-CPU cpuState); the owning CPU calls Ack once per hazard
// checkpoint it processes, and any requester can snapshot the counter
// before sending an IPI-equivalent and then Wait for it to move past that
// snapshot.
//
// The polling shape here (snapshot, then re-check on an interval until it
// advances) is grounded on the teacher's pidmonitor package, which polls
// a process table on a ticker and reports a channel of events; Station
// strips that down to the single counter a strong recall needs to observe.
type Station struct {
	acked atomic.Uint64
}

// Snapshot returns the current acknowledgement count, to be compared
// against after requesting service.
func (s *Station) Snapshot() uint64 {
	return s.acked.Load()
}

// Ack records that the owning CPU serviced one hazard checkpoint. Called
// only by the owning CPU itself, from its own dispatch loop.
func (s *Station) Ack() {
	s.acked.Add(1)
}

// pollInterval is how often Wait re-checks the counter. Kept small: this
// only matters for the strong-recall path, which is already a blocking,
// cross-CPU, best-effort-synchronous operation and not a hot path.
const pollInterval = 50 * time.Microsecond

// Wait blocks until the Station's acknowledgement counter has advanced
// past since, the caller's snapshot from before it requested service.
func (s *Station) Wait(since uint64) {
	for s.acked.Load() <= since {
		time.Sleep(pollInterval)
	}
}
