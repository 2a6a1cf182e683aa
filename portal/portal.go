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

// Package portal implements the Portal kernel object (spec.md §3): an
// entry point into a bound LOCAL EC, identified by a code address, a
// badge ("identity word") the callee sees in its UTCB, and a message
// transfer descriptor (MTD) mask selecting which register groups are
// copied on call. Grounded on the teacher's small-object-plus-spinlock
// shape (pidmonitor.PidMon, fileMonitor.FileMon): a handful of mutable
// fields behind one mutex, no separate state machine.
package portal

import (
	"sync"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/pd"
)

// MTD selects which register groups an IPC transfer copies (spec.md §9
// Open Question: "expose the MTD as a typed bitset whose bits are
// architecture-specific; the IPC engine is otherwise portable"). The
// group boundaries below are architecture-neutral; which concrete
// registers MTDArch and MTDFPU pull in is a property of the archops
// backend in use, not of this package.
type MTD uint32

const (
	// MTDGPR copies the general-purpose register file.
	MTDGPR MTD = 1 << iota
	// MTDIPSP copies the instruction pointer and stack pointer.
	MTDIPSP
	// MTDFlags copies the architecture flags/status register.
	MTDFlags
	// MTDArch copies architecture-specific extended state: exit
	// qualification, control registers, segment state, page-fault
	// address — whatever the active archops.Arch backend defines.
	MTDArch
	// MTDFPU copies the floating-point/vector save area.
	MTDFPU
)

// MTDAll copies every defined register group.
const MTDAll = MTDGPR | MTDIPSP | MTDFlags | MTDArch | MTDFPU

// Has reports whether m includes every bit in subset.
func (m MTD) Has(subset MTD) bool { return m&subset == subset }

// PT is a portal: a capability target naming a LOCAL EC's entry point.
type PT struct {
	kobject.Base

	OwnerPD *pd.PD
	EC      *ec.EC // must be Subtype == ec.Local (spec.md §4.1 precondition)

	mu       sync.Mutex
	entryIP  uint64
	identity uint64
	mtd      MTD
}

// New constructs a portal bound to localEC, entering at entryIP, with the
// given identity word and initial MTD mask.
func New(owner *pd.PD, localEC *ec.EC, entryIP uint64, identity uint64, mtd MTD) *PT {
	return &PT{
		Base:     kobject.NewBase(kobject.KindPT),
		OwnerPD:  owner,
		EC:       localEC,
		entryIP:  entryIP,
		identity: identity,
		mtd:      mtd,
	}
}

// EntryIP returns the instruction address the bound EC resumes at when
// this portal is called.
func (p *PT) EntryIP() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entryIP
}

// Identity returns the badge value delivered to the callee (spec.md §4.1:
// "the callee observes ... the portal's identity word").
func (p *PT) Identity() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// MTD returns the currently configured transfer mask.
func (p *PT) MTD() MTD {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtd
}

// SetCtrl implements ctrl_pt (spec.md syscall table opcode 10: "Set
// portal identity/MTD"). The entry IP is fixed at create_pt and is not
// mutable here.
func (p *PT) SetCtrl(identity uint64, mtd MTD) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = identity
	p.mtd = mtd
}

// Destroy implements kobject.Destroyer; a portal holds no resources of
// its own beyond the bound EC, which it does not own.
func (p *PT) Destroy() {}
