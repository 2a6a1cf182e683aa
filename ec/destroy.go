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

package ec

import "github.com/bedrocksystems/NOVA/hazard"

// RequestKill raises the Kill hazard on e; it is safe to call from any
// CPU (spec.md §5 "Cancellation": "remote cores request cancellation by
// setting hazard bits and IPI'ing"). The caller gets back a channel it
// can wait on to learn when e's owning CPU has actually finalized the
// kill — the same "get a handle, then wait on it" shape as the teacher's
// pidfd package (pidfd.Open followed by a poll/wait on the returned
// handle), adapted from waiting on a process's exit to waiting on an EC's
// owning CPU acknowledging a cross-CPU hazard.
func (e *EC) RequestKill() <-chan struct{} {
	e.Hazards.Raise(hazard.Kill)
	return e.killDone
}

// AckKill is called only by e's owning CPU, at a hazard checkpoint, once
// it has torn the EC down (broken its partner chain, dequeued it from any
// SM, drained any pending timeout). It is idempotent; a second call is a
// no-op rather than a double-close panic, since a kill acknowledgement
// racing a destroy triggered by refcount-reaching-zero on the same EC is
// possible and both paths may observe the Kill hazard.
func (e *EC) AckKill() {
	if e.killed.CompareAndSwap(false, true) {
		close(e.killDone)
	}
}

// Killed reports whether AckKill has already run.
func (e *EC) Killed() bool { return e.killed.Load() }

// Destroy breaks this EC's partner chain (waking whatever it was partnered
// with with ABORTED is the caller's job — see ipc.Abort) and clears its
// hazards. It implements kobject.Destroyer; the caller (capspace release
// path) must have already confirmed no capability table can reach this EC.
func (e *EC) Destroy() {
	e.Partner.Store(nil)
	e.Rcap.Store(nil)
	e.Hazards.Clear(e.Hazards.Snapshot())
	e.AckKill()
}
