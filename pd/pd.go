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

// Package pd implements the Protection Domain kernel object (spec.md §3):
// the unit of isolation that owns an object capability table, a host
// memory space, an optional guest memory space, a DMA memory space, and
// PIO/MSR port allow-lists.
package pd

import (
	"sync"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/bedrocksystems/NOVA/capspace"
	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/kutil"
	"github.com/bedrocksystems/NOVA/memspace"
)

// PD is a protection domain. Obj, Hst and Dma are always present; Gst is
// nil for a PD that never hosts a VCPU.
type PD struct {
	kobject.Base

	Obj *capspace.CapSpace
	Hst *memspace.Space
	Gst *memspace.Space // nil unless this PD hosts guests
	Dma *memspace.Space

	mu  sync.Mutex
	Pio []kutil.Range
	Msr []kutil.Range

	// Kernel marks the distinguished kernel PD (spec.md §3 invariant 7 /
	// §8 property 8): it owns kernel memory and can never be named as a
	// delegation destination. Checked by every ctrl_pd handler before it
	// calls delegate.Mem/Obj/Bitmap.
	Kernel bool

	// IdentityMap optionally records a host UID/GID mapping window for
	// this PD, the way a container's user namespace does (grounded on
	// idMap.IDMapMount, which applies exactly this kind of mapping to a
	// mount rather than to a PD's host-identity view). Nil unless the
	// creating root PD supplied one; the core never interprets it beyond
	// storing and returning it verbatim to the owning VMM.
	IdentityMap []specs.LinuxIDMapping
}

// New constructs a PD with fresh, empty spaces. shootdown is the host
// TLB-shootdown callback threaded into the host MemSpace; invalidateIOMMU
// is the DMA space's equivalent. Both may be nil in tests.
func New(shootdown, invalidateIOMMU memspace.ShootdownFunc) *PD {
	return &PD{
		Base: kobject.NewBase(kobject.KindPD),
		Obj:  capspace.New(),
		Hst:  memspace.NewHost(shootdown),
		Dma:  memspace.NewDMA(invalidateIOMMU),
	}
}

// EnableGuest lazily creates this PD's guest (stage-2) memory space; a PD
// that never hosts a VCPU never pays for one.
func (p *PD) EnableGuest() *memspace.Space {
	if p.Gst == nil {
		p.Gst = memspace.NewGuest()
	}
	return p.Gst
}

// AddPio merges r into this PD's PIO port allow-list.
func (p *PD) AddPio(r kutil.Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pio = kutil.MergeRanges(append(p.Pio, r))
}

// AddMsr merges r into this PD's MSR index allow-list.
func (p *PD) AddMsr(r kutil.Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Msr = kutil.MergeRanges(append(p.Msr, r))
}

// PioAllowed reports whether port is within this PD's PIO allow-list.
func (p *PD) PioAllowed(port uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return kutil.Contains(p.Pio, port)
}

// MsrAllowed reports whether msr is within this PD's MSR allow-list.
func (p *PD) MsrAllowed(msr uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return kutil.Contains(p.Msr, msr)
}

// Destroy is a no-op. A PD has no independent timeout or SM-queue
// membership of its own (those belong to its ECs/SCs/SMs), and it is
// allocated on the Go heap rather than from a slab, so there is nothing
// to release here.
func (p *PD) Destroy() {}
