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

// Package archops defines the architectural-operations seam package virt
// dispatches guest entry/exit through (spec.md §9 DESIGN NOTES). Real
// VMX/SVM/EL2 assembly is out of scope, exactly like firmware parsing and
// console drivers (original §1 Non-goals): production backends would
// satisfy this same interface. This package ships none itself; see
// archops/sim for the software reference backend tests and pure-software
// hosts use.
package archops

import (
	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/portal"
)

// ExitReason names why a guest entry returned control to the host.
type ExitReason uint32

const (
	ExitNone ExitReason = iota
	ExitHLT
	ExitIO
	ExitEPTViolation
	ExitMSR
	ExitCPUID
	ExitExternalInterrupt
	ExitTripleFault
)

func (r ExitReason) String() string {
	switch r {
	case ExitHLT:
		return "HLT"
	case ExitIO:
		return "IO"
	case ExitEPTViolation:
		return "EPT_VIOLATION"
	case ExitMSR:
		return "MSR"
	case ExitCPUID:
		return "CPUID"
	case ExitExternalInterrupt:
		return "EXTERNAL_INTERRUPT"
	case ExitTripleFault:
		return "TRIPLE_FAULT"
	default:
		return "NONE"
	}
}

// GuestState is an opaque per-architecture guest state block (VMX's VMCS,
// SVM's VMCB, or AArch64's stage-2 + EL1 context per spec.md §4.6); only
// the Arch backend that created it looks inside.
type GuestState interface{}

// Arch is the architectural backend a VCPU EC's guest entry/exit path
// (package virt) drives. NewGuestState/Free bracket a VCPU's lifetime;
// Enter performs one guest resume and blocks (in a real backend) until
// the next exit; ApplyReply lets the VMM's reply MTD mutate guest state
// the shared ec.Frame copy alone can't express (control registers,
// nested paging attributes, ...); EventSelector maps an exit reason to
// the EC's event-portal selector (spec.md §4.6: "decodes the exit reason
// into an event selector").
type Arch interface {
	Name() string
	NewGuestState() (GuestState, error)
	Free(gs GuestState) error
	Enter(gs GuestState, frame *ec.Frame) (ExitReason, error)
	ApplyReply(gs GuestState, frame *ec.Frame, mtd portal.MTD)
	EventSelector(reason ExitReason) uint64
}
