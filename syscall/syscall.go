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

// Package syscall implements the opcode dispatch table of spec.md §6.1:
// one decode-lookup-dispatch path for all sixteen opcodes, grounded on
// the original source's syscall.cpp (a single sys_call entry switching on
// a decoded opcode, not a family of distinct trap handlers per call). p0
// packs opcode, flags and a capability selector; p1..p4 carry
// operation-specific parameters exactly as spec.md §6.1 describes.
//
// Register packing is this package's own concrete resolution of
// spec.md's "(selector<<8)|opcode|flags" note, which underspecifies
// exact bit widths: bits [7:0] are the opcode, bits [15:8] are flags,
// and bits [63:16] are the selector.
package syscall

import (
	"time"

	"github.com/bedrocksystems/NOVA/capspace"
	"github.com/bedrocksystems/NOVA/delegate"
	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/ipc"
	"github.com/bedrocksystems/NOVA/irq"
	"github.com/bedrocksystems/NOVA/kutil"
	"github.com/bedrocksystems/NOVA/memspace"
	"github.com/bedrocksystems/NOVA/pd"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/portal"
	"github.com/bedrocksystems/NOVA/sc"
	"github.com/bedrocksystems/NOVA/scheduler"
	"github.com/bedrocksystems/NOVA/semaphore"
	"github.com/bedrocksystems/NOVA/status"
)

// Opcode is one of the sixteen syscall selectors (spec.md §6.1 table).
type Opcode uint8

const (
	OpCall Opcode = iota
	OpReply
	OpCreatePD
	OpCreateEC
	OpCreateSC
	OpCreatePT
	OpCreateSM
	OpCtrlPD
	OpCtrlEC
	OpCtrlSC
	OpCtrlPT
	OpCtrlSM
	OpCtrlHW
	OpAssignInt
	OpAssignDev
	OpReserved
)

// Regs is one syscall's register file: p0 carries the packed opcode/
// flags/selector word, p1..p4 carry operation-specific parameters.
type Regs struct {
	P0, P1, P2, P3, P4 uint64
}

func (r Regs) opcode() Opcode              { return Opcode(r.P0 & 0xFF) }
func (r Regs) flags() uint8                { return uint8((r.P0 >> 8) & 0xFF) }
func (r Regs) selector() capspace.Selector { return capspace.Selector(r.P0 >> 16) }

const flagTimeout0 = 1 << 0

// Result is a dispatched syscall's outcome.
type Result struct {
	Status status.Code
	// Target is who the CPU should run next when this opcode transfers
	// control (call, reply, a down that blocks the caller in favor of the
	// next ready SC, an up that unblocks a waiter on another CPU). Nil
	// means "resume the caller normally."
	Target *ec.EC
	// Value carries an opcode-specific return payload (ctrl_sc's
	// accumulated runtime, in nanoseconds).
	Value uint64
}

func typedLookup[T capspace.Object](obj *capspace.CapSpace, sel capspace.Selector) (T, capspace.Perm, status.Code) {
	var zero T
	c := obj.Lookup(sel)
	if c.IsNull() {
		return zero, 0, status.BadCap
	}
	v, ok := c.Obj.(T)
	if !ok {
		return zero, 0, status.BadCap
	}
	return v, c.Perm, status.Success
}

// Dispatch decodes and runs one syscall on behalf of callerEC, which is
// bound to callerPD and currently executing on cpu, donating callerSC's
// budget. wheel is callerEC's owning CPU's timeout wheel, used by ctrl_sm
// down when it arms a timeout.
func Dispatch(k *Kernel, cpu percpu.ID, callerPD *pd.PD, callerEC *ec.EC, callerSC *sc.SC, wheel *sc.Wheel, regs Regs) Result {
	switch regs.opcode() {
	case OpCall:
		return dispatchCall(cpu, callerPD, callerEC, regs)
	case OpReply:
		return dispatchReply(callerEC, regs)
	case OpCreatePD:
		return dispatchCreatePD(callerPD, regs)
	case OpCreateEC:
		return dispatchCreateEC(callerPD, regs)
	case OpCreateSC:
		return dispatchCreateSC(callerPD, regs)
	case OpCreatePT:
		return dispatchCreatePT(callerPD, regs)
	case OpCreateSM:
		return dispatchCreateSM(callerPD, regs)
	case OpCtrlPD:
		return dispatchCtrlPD(callerPD, regs)
	case OpCtrlEC:
		return dispatchCtrlEC(callerPD, regs)
	case OpCtrlSC:
		return dispatchCtrlSC(callerPD, regs)
	case OpCtrlPT:
		return dispatchCtrlPT(callerPD, regs)
	case OpCtrlSM:
		return dispatchCtrlSM(callerPD, callerEC, callerSC, wheel, k.Scheduler, regs)
	case OpCtrlHW:
		return dispatchCtrlHW(callerPD)
	case OpAssignInt:
		return dispatchAssignInt(callerPD, k.IRQ, regs)
	case OpAssignDev:
		return dispatchAssignDev(callerPD, regs)
	default:
		return Result{Status: status.BadHyp}
	}
}

// Kernel is the shared state syscall dispatch needs beyond the calling
// PD/EC/SC triple: the scheduler (cross-CPU unblock) and the GSI router
// (assign_int, interrupt delivery).
type Kernel struct {
	Scheduler *scheduler.Scheduler
	IRQ       *irq.Router
}

func dispatchCall(cpu percpu.ID, callerPD *pd.PD, caller *ec.EC, regs Regs) Result {
	pt, perm, code := typedLookup[*portal.PT](callerPD.Obj, regs.selector())
	if code != status.Success {
		return Result{Status: code}
	}
	if !perm.Get(capspace.PermCall) {
		return Result{Status: status.BadCap}
	}
	res := ipc.Call(cpu, caller, pt, portal.MTD(regs.P1), regs.flags()&flagTimeout0 != 0)
	return Result{Status: res.Status, Target: res.Target}
}

func dispatchReply(caller *ec.EC, regs Regs) Result {
	res := ipc.Reply(caller, portal.MTD(regs.P1), nil)
	return Result{Status: status.Success, Target: res.Target}
}

// dispatchCreatePD implements opcode 2: create_pd. p1 is the new
// capability's permission mask.
func dispatchCreatePD(callerPD *pd.PD, regs Regs) Result {
	obj := pd.New(nil, nil)
	code := callerPD.Obj.Insert(regs.selector(), capspace.Capability{Obj: obj, Perm: capspace.Perm(regs.P1)})
	if code != status.Success {
		obj.Destroy()
	}
	return Result{Status: code}
}

// dispatchCreateEC implements opcode 3: create_ec. p1 = cpu, p2 =
// subtype, p3 = UTCB host VA, p4 packs UserSP (high 32 bits are
// unused by any current subtype) and EventBase is derived from the
// selector's own base per spec.md §6.1 ("event base"): the destination
// selector doubles as the EC's EventBase, since every event portal this
// EC ever binds is created under it.
func dispatchCreateEC(callerPD *pd.PD, regs Regs) Result {
	obj := ec.New(ec.Subtype(regs.P2), percpu.ID(regs.P1), callerPD)
	obj.UTCBHostVA = regs.P3
	obj.UserSP = regs.P4
	obj.EventBase = uint64(regs.selector())
	code := callerPD.Obj.Insert(regs.selector(), capspace.Capability{Obj: obj, Perm: capspace.PermBindPT | capspace.PermBindSC})
	if code != status.Success {
		obj.Destroy()
	}
	return Result{Status: code}
}

// dispatchCreateSC implements opcode 4: create_sc. p1 = bound EC
// selector, p2 = priority, p3 = budget in nanoseconds.
func dispatchCreateSC(callerPD *pd.PD, regs Regs) Result {
	target, perm, code := typedLookup[*ec.EC](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	if !perm.Get(capspace.PermBindSC) {
		return Result{Status: status.BadCap}
	}
	// An SC always runs on its bound EC's CPU (invariant 1 applies
	// transitively through the EC it drives).
	obj := sc.New(target, target.CPU, int(regs.P2), time.Duration(regs.P3))
	code = callerPD.Obj.Insert(regs.selector(), capspace.Capability{Obj: obj, Perm: 0})
	if code != status.Success {
		// sc.SC has no Destroy of its own to release; dropping the only
		// reference lets the GC reclaim it, same as any other failed Go
		// allocation.
		return Result{Status: code}
	}
	return Result{Status: status.Success}
}

// dispatchCreatePT implements opcode 5: create_pt. p1 = local EC
// selector, p2 = entry IP, p3 = initial MTD.
func dispatchCreatePT(callerPD *pd.PD, regs Regs) Result {
	localEC, perm, code := typedLookup[*ec.EC](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	if !perm.Get(capspace.PermBindPT) || localEC.Subtype != ec.Local {
		return Result{Status: status.BadPar}
	}
	obj := portal.New(callerPD, localEC, regs.P2, 0, portal.MTD(regs.P3))
	code = callerPD.Obj.Insert(regs.selector(), capspace.Capability{Obj: obj, Perm: capspace.PermCall | capspace.PermCtrl})
	if code != status.Success {
		obj.Destroy()
	}
	return Result{Status: code}
}

// dispatchCreateSM implements opcode 6: create_sm. p1 = initial count,
// p2 = saturation ceiling (semaphore.DefaultSaturation if zero).
func dispatchCreateSM(callerPD *pd.PD, regs Regs) Result {
	saturation := regs.P2
	if saturation == 0 {
		saturation = semaphore.DefaultSaturation
	}
	obj := semaphore.New(regs.P1, saturation)
	code := callerPD.Obj.Insert(regs.selector(), capspace.Capability{Obj: obj, Perm: capspace.PermCtrlUp | capspace.PermCtrlDn | capspace.PermAssign})
	return Result{Status: code}
}

// spaceKind selects which of the four delegable spaces ctrl_pd targets.
type spaceKind uint8

const (
	spaceObj spaceKind = iota
	spaceMem
	spacePio
	spaceMsr
)

// dispatchCtrlPD implements opcode 7: ctrl_pd (delegate). p1 = destination
// PD selector; p2 = source base (page frame number for MEM, selector for
// OBJ, port/MSR base for PIO/MSR); p3 = destination base, same units; p4
// packs [7:0]=spaceKind, [15:8]=order (MEM/ignored elsewhere), [47:16]=
// permission mask, [63:48]=count/length.
func dispatchCtrlPD(callerPD *pd.PD, regs Regs) Result {
	dstPD, _, code := typedLookup[*pd.PD](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	if dstPD.Kernel {
		return Result{Status: status.BadPar}
	}

	kind := spaceKind(regs.P4 & 0xFF)
	order := int((regs.P4 >> 8) & 0xFF)
	perm := uint32((regs.P4 >> 16) & 0xFFFFFFFF)
	length := regs.P4 >> 48

	switch kind {
	case spaceMem:
		st := delegate.Mem(callerPD.Hst, dstPD.Hst, regs.P2, regs.P3, order, memspace.Perm(perm), nil, nil)
		return Result{Status: st}
	case spaceObj:
		st := delegate.Obj(callerPD.Obj, dstPD.Obj, capspace.Selector(regs.P2), capspace.Selector(regs.P3), length, capspace.Perm(perm))
		return Result{Status: st}
	case spacePio:
		dstPD.AddPio(kutil.Range{Base: regs.P3, Len: length})
		return Result{Status: status.Success}
	case spaceMsr:
		dstPD.AddMsr(kutil.Range{Base: regs.P3, Len: length})
		return Result{Status: status.Success}
	default:
		return Result{Status: status.BadPar}
	}
}

// dispatchCtrlEC implements opcode 8: ctrl_ec (recall). p1 = target EC
// selector.
func dispatchCtrlEC(callerPD *pd.PD, regs Regs) Result {
	target, perm, code := typedLookup[*ec.EC](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	if !perm.Get(capspace.PermCtrl) {
		return Result{Status: status.BadCap}
	}
	ipc.Recall(target)
	return Result{Status: status.Success}
}

// dispatchCtrlSC implements opcode 9: ctrl_sc (read accumulated
// runtime). p1 = target SC selector.
func dispatchCtrlSC(callerPD *pd.PD, regs Regs) Result {
	target, _, code := typedLookup[*sc.SC](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	return Result{Status: status.Success, Value: uint64(target.Used())}
}

// dispatchCtrlPT implements opcode 10: ctrl_pt (set identity/MTD). p1 =
// target PT selector, p2 = new identity, p3 = new MTD.
func dispatchCtrlPT(callerPD *pd.PD, regs Regs) Result {
	target, perm, code := typedLookup[*portal.PT](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	if !perm.Get(capspace.PermCtrl) {
		return Result{Status: status.BadCap}
	}
	target.SetCtrl(regs.P2, portal.MTD(regs.P3))
	return Result{Status: status.Success}
}

// dispatchCtrlSM implements opcode 11: ctrl_sm (up/down). p1 = target SM
// selector, p2 = 1 for down / 0 for up, p3 = zero-flag (down only), p4 =
// timeout in nanoseconds (down only, 0 = no timeout).
func dispatchCtrlSM(callerPD *pd.PD, caller *ec.EC, callerSC *sc.SC, wheel *sc.Wheel, sched *scheduler.Scheduler, regs Regs) Result {
	target, perm, code := typedLookup[*semaphore.SM](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}

	down := regs.P2 != 0
	if down {
		if !perm.Get(capspace.PermCtrlDn) {
			return Result{Status: status.BadCap}
		}
		res := target.Down(caller, callerSC, regs.P3 != 0, time.Duration(regs.P4), wheel, sched)
		if res.Blocked {
			return Result{Status: status.Success, Target: res.Decision.EC}
		}
		return Result{Status: status.Success}
	}

	if !perm.Get(capspace.PermCtrlUp) {
		return Result{Status: status.BadCap}
	}
	return Result{Status: target.Up(sched, caller.CPU)}
}

// dispatchCtrlHW implements opcode 12: ctrl_hw / ctrl_pm (power-state
// transition). Real power-state sequencing lives outside the core's
// scope (spec.md §1, "low-level CPU bring-up sequences"); this dispatch
// only enforces the root-PD precondition, the one invariant spec.md's
// opcode table names explicitly ("root PD only").
func dispatchCtrlHW(callerPD *pd.PD) Result {
	if !callerPD.Kernel {
		return Result{Status: status.BadPar}
	}
	return Result{Status: status.Success}
}

// dispatchAssignInt implements opcode 13: assign_int. p1 = GSI number,
// p2 = target SM selector.
func dispatchAssignInt(callerPD *pd.PD, router *irq.Router, regs Regs) Result {
	target, perm, code := typedLookup[*semaphore.SM](callerPD.Obj, capspace.Selector(regs.P2))
	if code != status.Success {
		return Result{Status: code}
	}
	if !perm.Get(capspace.PermAssign) {
		return Result{Status: status.BadCap}
	}
	router.Bind(uint32(regs.P1), target)
	return Result{Status: status.Success}
}

// dispatchAssignDev implements opcode 14: assign_dev (attach a PD to a
// DMA context on an SMMU). The SMMU register layout itself is an
// external collaborator's concern (spec.md §6.4); what the core owns is
// only that the target PD's DMA space exists, which pd.New already
// guarantees, so this opcode degenerates to a capability check.
func dispatchAssignDev(callerPD *pd.PD, regs Regs) Result {
	target, _, code := typedLookup[*pd.PD](callerPD.Obj, capspace.Selector(regs.P1))
	if code != status.Success {
		return Result{Status: code}
	}
	if target.Dma == nil {
		return Result{Status: status.BadDev}
	}
	return Result{Status: status.Success}
}
