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

// Package sim is the software reference archops.Arch backend: a
// deterministic guest-exit generator backed by an mmap'd page standing in
// for a VMCS/VMCB/stage-2 block, for hosts and tests that want a
// pure-software guest with no real virtualization hardware. Grounded on
// the domain-stack note pairing golang.org/x/sys/unix's raw mmap/mprotect
// with a software page-table-walk stand-in.
package sim

import (
	"golang.org/x/sys/unix"

	"github.com/bedrocksystems/NOVA/archops"
	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/kconfig"
	"github.com/bedrocksystems/NOVA/portal"
)

// guestState is sim's GuestState: one mmap'd page of "guest memory" and a
// deterministic exit cadence counter.
type guestState struct {
	mem   []byte
	turns int
}

// Arch is the software reference backend.
type Arch struct{}

// New constructs a sim backend.
func New() *Arch { return &Arch{} }

func (a *Arch) Name() string { return "sim" }

// NewGuestState mmaps one anonymous page to stand in for the
// architectural state block; sim never reads or writes its contents
// (it has no real guest instructions to execute), but allocating and
// eventually unmapping a real page exercises the same lifecycle a
// production backend's VMCS/VMCB allocation would.
func (a *Arch) NewGuestState() (archops.GuestState, error) {
	mem, err := unix.Mmap(-1, 0, kconfig.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &guestState{mem: mem}, nil
}

// Free unmaps the guest state page.
func (a *Arch) Free(gs archops.GuestState) error {
	g := gs.(*guestState)
	return unix.Munmap(g.mem)
}

// Enter simulates one guest resume. It never actually executes guest
// code (there is none); it deterministically cycles through a small set
// of exit reasons so package virt's dispatch loop has something to react
// to in tests: every fourth entry looks like the guest executed HLT,
// every other entry looks like a port I/O trap.
func (a *Arch) Enter(gs archops.GuestState, frame *ec.Frame) (archops.ExitReason, error) {
	g := gs.(*guestState)
	g.turns++
	if g.turns%4 == 0 {
		return archops.ExitHLT, nil
	}
	return archops.ExitIO, nil
}

// ApplyReply is a no-op: sim's guest state carries nothing beyond the
// shared ec.Frame that ipc.CopyRegisters already restores on reply.
func (a *Arch) ApplyReply(gs archops.GuestState, frame *ec.Frame, mtd portal.MTD) {}

// EventSelector maps an exit reason directly to its ordinal as the event
// selector; a real backend would instead follow the fixed ABI mapping
// spec.md §6.3 calls "stable external ABI".
func (a *Arch) EventSelector(reason archops.ExitReason) uint64 { return uint64(reason) }
