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

// Package ec implements the Execution Context kernel object (spec.md §3):
// a schedulable thread or vCPU. An EC's CPU affinity is fixed at creation
// (invariant 1) and it is mutated only by its owning CPU, by cross-CPU
// IPI handlers through atomic hazard bits, or by the creating path before
// its capability becomes reachable (spec.md §3 "Mutate").
package ec

import (
	"go.uber.org/atomic"

	"github.com/bedrocksystems/NOVA/hazard"
	"github.com/bedrocksystems/NOVA/kconfig"
	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/pd"
	"github.com/bedrocksystems/NOVA/percpu"
)

// Subtype distinguishes the four EC flavors (spec.md §3).
type Subtype uint8

const (
	// Kernel ECs are the kernel's own bootstrap/idle contexts.
	Kernel Subtype = iota
	// Local ECs have no SC of their own; they borrow the caller's SC
	// during a portal call (time donation, invariant 2).
	Local
	// Global ECs may own one or more SCs.
	Global
	// VCPU ECs are Global ECs that additionally carry guest architectural
	// state (see package virt).
	VCPU
)

// ContKind tags an EC's next resumption action (spec.md §9 DESIGN NOTES:
// "model as a tagged enum over the finite set of continuation kinds").
type ContKind uint8

const (
	ContNone ContKind = iota
	ContUserResume
	ContIret
	ContVMResumeVMX
	ContVMResumeSVM
	ContRecvKern
	ContRecvUser
	ContSysFinish
	ContDead
)

// Continuation is the function-pointer stand-in described in spec.md §9:
// each variant carries only the data it needs. Status is only meaningful
// when Kind is ContSysFinish.
type Continuation struct {
	Kind   ContKind
	Status uint8 // status.Code, kept untyped here to avoid an import cycle with status at call sites that only care about Kind
}

// Frame is the saved general-purpose register file copied in and out of
// an EC across IPC and guest exits.
type Frame struct {
	GPR [31]uint64
	IP  uint64
	SP  uint64
}

// FPUState is the optional saved FPU/vector register area.
type FPUState struct {
	Data [64]uint64
}

// EC is an execution context.
type EC struct {
	kobject.Base

	Subtype Subtype

	// CPU is fixed at creation (invariant 1): the scheduler never
	// dispatches this EC on any other CPU.
	CPU percpu.ID

	OwnerPD *pd.PD

	UserSP     uint64
	EventBase  uint64 // selector base for this EC's event portals
	UTCBHostVA uint64 // host-local virtual address of this EC's UTCB page

	Frame Frame
	FPU   *FPUState

	// Untyped holds the UTCB's untyped-word payload (spec.md §6.3): up to
	// kconfig.NWords message words copied between caller and callee UTCBs
	// on a user IPC transfer.
	Untyped [kconfig.NWords]uint64
	// Identity is the portal identity word last delivered to this EC by
	// a call (spec.md §4.3 step 2 "load callee's ... id ... registers").
	Identity uint64
	// MTD is the raw transfer-descriptor value last delivered to this EC.
	// Kept untyped (portal.MTD is a uint32) to avoid an import cycle
	// between ec and portal, the same tradeoff as Continuation.Status.
	MTD uint32

	Cont atomic.Pointer[Continuation]

	// Partner and Rcap form the IPC partner chain (spec.md §3 invariant
	// 4): if A.Partner == B then B.Rcap == A. Atomic pointers because a
	// recall or kill can observe/clear them from another CPU's IPI
	// handler even though ordinary call/reply only ever touches them
	// from the EC's own CPU.
	Partner atomic.Pointer[EC]
	Rcap    atomic.Pointer[EC]

	Hazards hazard.Set

	blocked atomic.Bool

	killed   atomic.Bool
	killDone chan struct{}
}

// New constructs an EC bound to cpu. The continuation starts as
// ContUserResume (a freshly created EC's first resumption is a plain
// return to user mode at UserSP/Frame.IP).
func New(subtype Subtype, cpu percpu.ID, owner *pd.PD) *EC {
	e := &EC{
		Base:     kobject.NewBase(kobject.KindEC),
		Subtype:  subtype,
		CPU:      cpu,
		OwnerPD:  owner,
		killDone: make(chan struct{}),
	}
	e.Cont.Store(&Continuation{Kind: ContUserResume})
	return e
}

// Blocked reports whether the EC is currently queued on an SM or sleeping
// on a timeout (spec.md §3 invariant 5).
func (e *EC) Blocked() bool { return e.blocked.Load() }

// SetBlocked updates the blocked flag; callers (semaphore.Down/Up,
// sc timeout wheel) are responsible for the invariant that it tracks
// actual SM/timeout-wheel membership.
func (e *EC) SetBlocked(v bool) { e.blocked.Store(v) }

// HelpChainDepth walks the partner chain starting at e and returns its
// length, used to enforce kconfig.MaxHelpChain (spec.md §9 Open Question).
// A length beyond the configured bound means the caller must fail the
// call with status.Aborted rather than recurse further.
func (e *EC) HelpChainDepth() int {
	depth := 0
	cur := e
	seen := make(map[*EC]bool)
	for cur != nil {
		if seen[cur] {
			// A cycle would violate invariant 4; treat it as
			// immediately over-depth rather than looping forever.
			return kconfig.MaxHelpChain + 1
		}
		seen[cur] = true
		depth++
		if depth > kconfig.MaxHelpChain {
			return depth
		}
		cur = cur.Partner.Load()
	}
	return depth
}

// ChainTail follows the partner chain to the EC with no further partner
// — the one portal-call helping should ultimately dispatch (spec.md §4.3:
// "donates the caller's SC to whichever EC is at the head of the partner
// chain").
func (e *EC) ChainTail() *EC {
	cur := e
	for {
		next := cur.Partner.Load()
		if next == nil {
			return cur
		}
		cur = next
	}
}
