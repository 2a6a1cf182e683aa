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

// Package ipc implements the synchronous call/reply/recall engine
// (spec.md §4.3): typed message transfer between a caller and a portal's
// bound LOCAL EC, partner-chain bookkeeping, SC-donation helping bounded
// by kconfig.MaxHelpChain, and recall-driven detours. Grounded on
// syscall.cpp's single dispatch-path shape (see SPEC_FULL.md
// "SUPPLEMENTED FEATURES" #3): one engine, no separate fast/slow path.
package ipc

import (
	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/hazard"
	"github.com/bedrocksystems/NOVA/kconfig"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/portal"
	"github.com/bedrocksystems/NOVA/status"
)

// CopyRegisters transfers the register groups named by mtd from src to
// dst (spec.md §4.3 "User transfer" / "Exception transfer"), plus the
// untyped-word payload, which always travels with whatever groups move
// (spec.md §6.3). MTDArch and MTDFlags name architecture-specific state
// this package does not itself interpret; an archops backend consuming
// MTDArch-gated data reads it directly off the EC rather than through
// this helper.
func CopyRegisters(src, dst *ec.EC, mtd portal.MTD) {
	if mtd.Has(portal.MTDGPR) {
		dst.Frame.GPR = src.Frame.GPR
	}
	if mtd.Has(portal.MTDIPSP) {
		dst.Frame.IP = src.Frame.IP
		dst.Frame.SP = src.Frame.SP
	}
	if mtd.Has(portal.MTDFPU) && src.FPU != nil {
		if dst.FPU == nil {
			dst.FPU = &ec.FPUState{}
		}
		*dst.FPU = *src.FPU
	}
	dst.Untyped = src.Untyped
}

// CallResult is the outcome of Call.
type CallResult struct {
	Status status.Code
	// Target is who the caller's CPU should transfer control to next on
	// Success: either the called portal's EC, or — when helping was
	// engaged — the EC at the tail of its partner chain.
	Target *ec.EC
}

// Call implements spec.md §4.3's call protocol. callerCPU is the CPU the
// caller is actually executing on right now (checked against the
// portal's bound EC per the BAD_CPU precondition); timeout0 is the
// call's timeout==0 flag.
func Call(callerCPU percpu.ID, caller *ec.EC, pt *portal.PT, mtd portal.MTD, timeout0 bool) CallResult {
	callee := pt.EC
	if callee.CPU != callerCPU {
		return CallResult{Status: status.BadCpu}
	}
	if callee.Subtype != ec.Local {
		return CallResult{Status: status.BadPar}
	}

	chainDepth := callee.HelpChainDepth() + 1
	if chainDepth > kconfig.MaxHelpChain {
		return CallResult{Status: status.Aborted}
	}

	// Step 1 (spec.md §4.3): mark the partner chain unconditionally —
	// this records that caller's eventual reply routing passes through
	// callee, whether or not callee can actually be entered this instant.
	caller.Partner.Store(callee)
	callee.Rcap.Store(caller)
	caller.Cont.Store(&ec.Continuation{Kind: ec.ContUserResume})

	if callee.Blocked() {
		// Helping (spec.md §4.3): callee is off the CPU, genuinely
		// blocked on an SM elsewhere in its own chain. We cannot deliver
		// a new message into live callee state right now; instead the
		// caller's SC is donated to whichever EC is actually positioned
		// to make progress — the tail of callee's partner chain — and
		// this call's own message delivery happens once that chain
		// unwinds back through callee normally.
		if timeout0 {
			return CallResult{Status: status.Timeout}
		}
		return CallResult{Status: status.Success, Target: callee.ChainTail()}
	}

	// Step 2: load callee's entry IP/SP/identity/MTD and deliver the
	// message.
	callee.Cont.Store(&ec.Continuation{Kind: ec.ContRecvUser})
	callee.Frame.IP = pt.EntryIP()
	callee.Frame.SP = callee.UserSP
	callee.Identity = pt.Identity()
	callee.MTD = uint32(mtd)
	CopyRegisters(caller, callee, mtd)

	// Step 3: dispatch to callee.
	return CallResult{Status: status.Success, Target: callee}
}

// ReplyResult is the outcome of Reply.
type ReplyResult struct {
	// Target is who should run next: the original caller, if one is
	// waiting with a live return-to-userspace continuation, or nil if the
	// scheduler must pick the next ready SC instead (spec.md §4.3 step
	// 3: "otherwise the scheduler picks the next ready SC").
	Target *ec.EC
}

// ArchValidate reports whether the architectural state mtd just
// delivered to ec is legal; nil means "always legal" (no arch backend
// wired in, e.g. in unit tests exercising only user transfers).
type ArchValidate func(e *ec.EC) bool

// Reply implements spec.md §4.3's reply protocol. callee is the EC
// calling reply; mtd is the reply's transfer descriptor.
func Reply(callee *ec.EC, mtd portal.MTD, validate ArchValidate) ReplyResult {
	rcap := callee.Rcap.Load()

	var target *ec.EC
	if rcap != nil && rcap.Cont.Load().Kind == ec.ContUserResume {
		target = rcap
		CopyRegisters(callee, rcap, mtd)
		if mtd.Has(portal.MTDArch) && validate != nil && !validate(rcap) {
			rcap.Hazards.Raise(hazard.Illegal)
		}
	}

	callee.Rcap.Store(nil)
	callee.Partner.Store(nil)
	if rcap != nil {
		rcap.Partner.Store(nil)
	}

	return ReplyResult{Target: target}
}

// Recall sets target's RECALL hazard (spec.md §4.3 "Recall"): on its next
// attempt to return to user or guest mode, target detours into its event
// portal instead. Idempotent because hazard.Set.Raise is an idempotent
// OR.
func Recall(target *ec.EC) {
	target.Hazards.Raise(hazard.Recall)
}
