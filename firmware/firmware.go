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

// Package firmware defines the boundary contracts the core consumes from
// its external collaborators (spec.md §6.4): firmware-table parsing,
// console output, and page/slab allocation. None of ACPI/DeviceTree
// parsing, a real UART driver, or a production buddy allocator is this
// package's job (spec.md §1 lists all three as explicitly out of scope);
// what belongs here is the typed shape the core receives before starting
// APs, plus thin reference implementations for hosts and tests with no
// real firmware to hand it. Grounded on utils.appFs's injectable
// afero.Fs for table loading, generalized from "read /etc/os-release"
// to "read a boot-info blob".
package firmware

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// CPUInfo is one entry of the firmware-delivered per-CPU topology table.
type CPUInfo struct {
	LogicalID  uint32 `json:"logical_id"`
	PhysicalID uint32 `json:"physical_id"` // APIC ID / MPIDR, opaque to the core
	Package    uint32 `json:"package"`
	BootCPU    bool   `json:"boot_cpu"`
}

// InterruptController describes one GIC/APIC/IOAPIC instance's MMIO
// window and the GSI range it owns.
type InterruptController struct {
	MMIOBase uint64 `json:"mmio_base"`
	MMIOSize uint64 `json:"mmio_size"`
	GSIBase  uint32 `json:"gsi_base"`
	GSICount uint32 `json:"gsi_count"`
}

// SMMU describes one IOMMU instance's MMIO window and the context-bank
// SPIs it raises.
type SMMU struct {
	MMIOBase     uint64   `json:"mmio_base"`
	MMIOSize     uint64   `json:"mmio_size"`
	ContextSPIs  []uint32 `json:"context_spis"`
	StreamIDBits uint32   `json:"stream_id_bits"`
}

// ConsoleInfo names which console backend to bind at boot and where its
// registers live, if any.
type ConsoleInfo struct {
	Kind     string `json:"kind"` // e.g. "pl011", "16550", "sbi"
	MMIOBase uint64 `json:"mmio_base"`
}

// MemoryRegion is one entry of the firmware-delivered physical memory
// map.
type MemoryRegion struct {
	Base   uint64 `json:"base"`
	Size   uint64 `json:"size"`
	Usable bool   `json:"usable"`
}

// BootInfo is the full typed struct firmware parsing must deliver before
// the core starts application processors (spec.md §6.4 (a)-(e)).
type BootInfo struct {
	CPUs                 []CPUInfo             `json:"cpus"`
	InterruptControllers []InterruptController `json:"interrupt_controllers"`
	SMMUs                []SMMU                `json:"smmus"`
	Console              ConsoleInfo           `json:"console"`
	MemoryMap            []MemoryRegion        `json:"memory_map"`
}

// LoadBootInfo decodes a BootInfo from path on fs. Production boot
// shims would hand the core an already-parsed struct directly; this
// loader exists so hosts with no real boot shim (tests, the sim CLI)
// can inject one as a plain JSON blob, the same role afero.Fs plays for
// utils.appFs's /etc/os-release reads.
func LoadBootInfo(fs afero.Fs, path string) (*BootInfo, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "reading boot info table")
	}
	var bi BootInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, errors.Wrap(err, "decoding boot info table")
	}
	return &bi, nil
}

// UsableRegions filters the memory map to entries the page allocator may
// carve pages from.
func (b *BootInfo) UsableRegions() []MemoryRegion {
	out := make([]MemoryRegion, 0, len(b.MemoryMap))
	for _, r := range b.MemoryMap {
		if r.Usable {
			out = append(out, r)
		}
	}
	return out
}

// Console is the print(fmt, ...) contract (spec.md §6.4): one
// implementation is bound at boot.
type Console interface {
	Printf(format string, args ...interface{})
}

// PageAllocator is the page allocator contract the core assumes
// (spec.md §6.4, §1 Non-goal "buddy/slab allocators"): alloc(order)
// returns 2^order contiguous pages or false on exhaustion; free_wait
// drains any frees queued by other cores before the caller proceeds.
// No path in the core calls FreeWait: delegate.Mem returns after the
// destination's Sync without draining a page allocator.
type PageAllocator interface {
	Alloc(order uint) (page uint64, ok bool)
	Free(page uint64)
	FreeWait()
}

// SlabAllocator is the per-type fixed-size object cache contract. The
// create_* syscalls do not allocate through it; kernel objects are
// allocated on the Go heap.
type SlabAllocator interface {
	Alloc() (uintptr, bool)
	Free(uintptr)
}
