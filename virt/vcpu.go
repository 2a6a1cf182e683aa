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

// Package virt implements the virtualization path (spec.md §4.6): a VCPU
// is a GLOBAL EC of subtype VCPU plus one archops.GuestState block. Its
// Resume method runs the pre-resume hazard/migration/TLB sequence, enters
// the guest through the active archops.Arch backend, and on exit drives
// the same kernel-exception IPC into the VMM that package ipc already
// implements for ordinary portal calls — virt adds no second IPC path of
// its own.
package virt

import (
	"github.com/bedrocksystems/NOVA/archops"
	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/hazard"
	"github.com/bedrocksystems/NOVA/ipc"
	"github.com/bedrocksystems/NOVA/klog"
	"github.com/bedrocksystems/NOVA/memspace"
	"github.com/bedrocksystems/NOVA/pd"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/portal"
	"github.com/bedrocksystems/NOVA/status"
)

// RecallSelector is the event selector used when a VCPU resume is
// diverted by a RECALL hazard rather than by a genuine architectural
// exit (spec.md §8 S6: "guest exits on next instruction boundary into
// its RECALL event portal"). It is chosen outside archops.ExitReason's
// small range so it can never collide with a real exit reason.
const RecallSelector uint64 = 1 << 32

var logger = klog.For("virt")

// VCPU is a GLOBAL, VCPU-subtype EC paired with one architectural guest
// state block and the event-portal table the VMM has bound for it.
type VCPU struct {
	EC    *ec.EC
	Arch  archops.Arch
	Guest archops.GuestState

	lastCPU percpu.ID
	events  map[uint64]*portal.PT
}

// New constructs a VCPU bound to cpu and backed by arch.
func New(owner *pd.PD, cpu percpu.ID, arch archops.Arch) (*VCPU, error) {
	gs, err := arch.NewGuestState()
	if err != nil {
		return nil, err
	}
	e := ec.New(ec.VCPU, cpu, owner)
	e.Cont.Store(&ec.Continuation{Kind: ec.ContVMResumeVMX})
	return &VCPU{
		EC:      e,
		Arch:    arch,
		Guest:   gs,
		lastCPU: cpu,
		events:  make(map[uint64]*portal.PT),
	}, nil
}

// BindEvent registers pt as the VMM's handler for the given event
// selector (an archops.ExitReason value, or RecallSelector).
func (v *VCPU) BindEvent(selector uint64, pt *portal.PT) {
	v.events[selector] = pt
}

// Destroy releases the guest state block (spec.md §3 "Destroy").
func (v *VCPU) Destroy() {
	if err := v.Arch.Free(v.Guest); err != nil {
		logger.WithField("vcpu_cpu", v.EC.CPU).WithError(err).Warn("freeing guest state block")
	}
}

// ResumeResult is the outcome of one Resume call.
type ResumeResult struct {
	Status status.Code
	// Target is who the CPU should run next: the VMM's bound event-portal
	// EC on a successful exit delivery, or nil if the resume was aborted
	// (the VCPU's EC should not run again until whatever raised Illegal
	// or killed it is resolved).
	Target     *ec.EC
	ExitReason archops.ExitReason
}

// Resume implements spec.md §4.6's pre-resume sequence and exit
// dispatch. currentCPU is the CPU actually resuming the guest; guestMem
// is the VCPU's owning PD's guest memory space (nil if none, though a
// VCPU EC should always have one).
func (v *VCPU) Resume(currentCPU percpu.ID, guestMem *memspace.Space) ResumeResult {
	// Step 1: hazard evaluation. ILLEGAL and KILL are fatal to the EC;
	// Resume must not re-enter the guest once either is latched.
	if v.EC.Hazards.Test(hazard.Illegal) || v.EC.Killed() {
		return ResumeResult{Status: status.Aborted}
	}
	if v.EC.Hazards.TestAndClear(hazard.Recall) {
		return v.deliverEvent(currentCPU, RecallSelector, archops.ExitNone)
	}

	// Step 2: CPU migration since last resume.
	if currentCPU != v.lastCPU {
		logger.WithField("vcpu_cpu", currentCPU).Debug("vcpu migrated, reloading architectural block")
		v.lastCPU = currentCPU
	}

	// Step 3: consume the guest-TLB dirty bit.
	if guestMem != nil && guestMem.DrainTLB(int(currentCPU)) {
		logger.WithField("vcpu_cpu", currentCPU).Debug("stage-2 TLB invalidated after guest-dirty mark")
	}

	// Step 4: restore per-guest system-register state the host modifies.
	v.EC.Hazards.Clear(hazard.TscAdj)

	// Step 5: architectural resume.
	reason, err := v.Arch.Enter(v.Guest, &v.EC.Frame)
	if err != nil {
		v.EC.Hazards.Raise(hazard.Illegal)
		return ResumeResult{Status: status.Aborted}
	}

	return v.deliverEvent(currentCPU, v.Arch.EventSelector(reason), reason)
}

// deliverEvent is the "fixed entry" guest exits land in (spec.md §4.6):
// GPRs are already in v.EC.Frame (Arch.Enter wrote them there), so this
// just looks up the event portal for selector and initiates a
// kernel-exception IPC into the VMM exactly as ipc.Call would for an
// ordinary user call.
func (v *VCPU) deliverEvent(currentCPU percpu.ID, selector uint64, reason archops.ExitReason) ResumeResult {
	pt, ok := v.events[selector]
	if !ok {
		return ResumeResult{Status: status.BadFtr, ExitReason: reason}
	}
	res := ipc.Call(currentCPU, v.EC, pt, portal.MTDGPR|portal.MTDArch, false)
	return ResumeResult{Status: res.Status, Target: res.Target, ExitReason: reason}
}

// ApplyVMMReply implements the tail of spec.md §4.6: "The VMM replies
// with a state-modifying MTD." After ipc.Reply has copied the shared
// ec.Frame back (the caller of this function is expected to have done
// that via ipc.Reply already), ApplyVMMReply gives the archops backend a
// chance to absorb whatever architecture-specific state the reply MTD
// carries that the Frame alone cannot express.
func (v *VCPU) ApplyVMMReply(mtd portal.MTD) {
	v.Arch.ApplyReply(v.Guest, &v.EC.Frame, mtd)
}
