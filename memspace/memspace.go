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

// Package memspace implements the three page-table specializations a PD
// can own — host, guest (stage-2) and DMA (IOMMU) — over one generic
// range-table template (spec.md §4.2). The range-table-with-point-lookup
// shape is grounded on the teacher's mount package (mount/mount.go),
// which keeps a table of mount entries and answers "what covers this
// path" queries the same way a MemSpace answers "what covers this page
// frame": a sorted list of ranges searched for the entry containing a
// point, updated as a whole entry at a time rather than byte-by-byte.
package memspace

import (
	"sort"
	"sync"

	"github.com/bedrocksystems/NOVA/kconfig"
	"github.com/bedrocksystems/NOVA/status"
)

// Perm is the page permission bitset. K and U gate whether kernel-mode and
// user-mode accesses are permitted; R/W/X gate the access kind.
type Perm uint8

const (
	PermR Perm = 1 << iota
	PermW
	PermX
	PermU
	PermK
)

// Cache is the cacheability attribute of a mapping.
type Cache uint8

const (
	CacheWriteBack Cache = iota
	CacheWriteThrough
	CacheUncacheable
	CacheWriteCombine
)

// Share is the shareability domain of a mapping (AArch64 inner/outer
// shareable, or non-shareable on x86-64 where it is otherwise unused).
type Share uint8

const (
	ShareNone Share = iota
	ShareInner
	ShareOuter
)

// Kind distinguishes the three specializations; it only changes Sync's
// behavior, the table machinery is identical across all three.
type Kind uint8

const (
	KindHost Kind = iota
	KindGuest
	KindDMA
)

// Entry is one mapping: [PFN, PFN+1<<Order) of guest/host virtual page
// frames mapped to physical page frame PA, with the given attributes.
// Frame numbers, not byte addresses, are used throughout so that Order
// arithmetic never has to account for the page-size constant.
type Entry struct {
	PFN   uint64
	PA    uint64
	Order int
	Perm  Perm
	Cache Cache
	Share Share
}

func (e Entry) pages() uint64 { return uint64(1) << uint(e.Order) }
func (e Entry) end() uint64   { return e.PFN + e.pages() }

// ShootdownFunc performs whatever cross-CPU signalling a Sync needs:
// local + remote TLB invalidation for a host space (via an RKE IPI to
// every CPU that might have this space active), or an SMMU context
// invalidation for a DMA space. Guest spaces don't use one — see
// Space.Sync.
type ShootdownFunc func()

// Space is one page-table engine: host, guest or DMA depending on how it
// was constructed.
type Space struct {
	kind Kind

	mu      sync.RWMutex
	entries []Entry // sorted by PFN, non-overlapping

	shootdown ShootdownFunc // nil for guest spaces

	// gtlb is the per-CPU "guest TLB dirty" bitset (spec.md §4.6 step 3,
	// "gtlb.tst(cpu)"): bit i set means CPU i must invalidate its stage-2
	// TLB before next entering a guest that uses this Space. Only
	// meaningful for KindGuest spaces; a map guarded by gtlbMu is
	// enough here since the bit count is bounded by CPU
	// count, never contended on the guest's own re-entry path (only the
	// owning CPU clears its own bit).
	gtlbMu  sync.Mutex
	gtlb    map[int]bool
}

// NewHost constructs an empty host page table.
func NewHost(shootdown ShootdownFunc) *Space {
	return &Space{kind: KindHost, shootdown: shootdown}
}

// NewGuest constructs an empty stage-2 (extended) page table.
func NewGuest() *Space {
	return &Space{kind: KindGuest, gtlb: make(map[int]bool)}
}

// NewDMA constructs an empty IOMMU page table.
func NewDMA(invalidate ShootdownFunc) *Space {
	return &Space{kind: KindDMA, shootdown: invalidate}
}

// Kind reports which specialization this Space is.
func (s *Space) Kind() Kind { return s.kind }

// Lookup returns the entry covering page frame pfn, if any.
func (s *Space) Lookup(pfn uint64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(pfn)
	if i < len(s.entries) && s.entries[i].PFN <= pfn && pfn < s.entries[i].end() {
		return s.entries[i], true
	}
	return Entry{}, false
}

// find returns the index of the entry whose PFN is the greatest one
// <= pfn, or len(entries) if there is none.
func (s *Space) find(pfn uint64) int {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].PFN > pfn })
	if i == 0 {
		return len(s.entries)
	}
	return i - 1
}

// Update installs or replaces the mapping for [pfn, pfn+1<<order). Any
// existing entries that overlap the new range are removed first — a page
// table update replaces whatever was there at that granularity, it does
// not merge attributes (spec.md §4.2: "Apply update on destination").
func (s *Space) Update(pfn, pa uint64, order int, perm Perm, cache Cache, share Share) status.Code {
	if order < 0 || order > 63 {
		return status.BadPar
	}
	e := Entry{PFN: pfn, PA: pa, Order: order, Perm: perm, Cache: cache, Share: share}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.entries[:0:0]
	inserted := false
	for _, old := range s.entries {
		if old.end() <= e.PFN || old.PFN >= e.end() {
			if !inserted && old.PFN > e.PFN {
				out = append(out, e)
				inserted = true
			}
			out = append(out, old)
			continue
		}
		// old overlaps e: dropped, e supersedes it.
	}
	if !inserted {
		out = append(out, e)
	}
	s.entries = out
	return status.Success
}

// Unmap removes any mapping covering [pfn, pfn+1<<order); used by
// revocation. Ranges that only partially overlap are truncated rather
// than removed wholesale, since a partial revoke must leave the
// non-revoked portion mapped.
func (s *Space) Unmap(pfn uint64, order int) {
	lo, hi := pfn, pfn+(uint64(1)<<uint(order))

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.entries[:0:0]
	for _, old := range s.entries {
		switch {
		case old.end() <= lo || old.PFN >= hi:
			out = append(out, old)
		case old.PFN >= lo && old.end() <= hi:
			// fully covered: drop
		case old.PFN < lo:
			head := old
			head.Order = pfnOrder(old.PFN, lo)
			out = append(out, head)
			if old.end() > hi {
				tail := old
				tail.PFN = hi
				tail.PA = old.PA + (hi - old.PFN)
				tail.Order = pfnOrder(hi, old.end())
				out = append(out, tail)
			}
		default:
			trimmed := old
			trimmed.PFN = hi
			trimmed.PA = old.PA + (hi - old.PFN)
			trimmed.Order = pfnOrder(hi, old.end())
			out = append(out, trimmed)
		}
	}
	s.entries = out
}

// pfnOrder returns the largest order whose 1<<order page count fits
// between lo and hi without overrunning hi; used by Unmap's truncation
// path where the remaining run may not itself be a clean power of two
// (in which case we under-report its size rather than overrun it).
func pfnOrder(lo, hi uint64) int {
	n := hi - lo
	o := 0
	for (uint64(1) << uint(o+1)) <= n {
		o++
	}
	return o
}

// Sync flushes whatever TLB/IOTLB state Update may have invalidated
// (spec.md §4.2 "sync()"). For a host space this runs the injected
// shootdown (local invalidate + cross-CPU RKE per spec.md §4.2); for a
// DMA space it invalidates the SMMU context the same way; for a guest
// space it instead marks every CPU's gtlb bit dirty, to be drained lazily
// at guest re-entry (spec.md §4.6 step 3) rather than shot down eagerly.
func (s *Space) Sync(cpus []int) {
	switch s.kind {
	case KindHost, KindDMA:
		if s.shootdown != nil {
			s.shootdown()
		}
	case KindGuest:
		s.gtlbMu.Lock()
		for _, cpu := range cpus {
			s.gtlb[cpu] = true
		}
		s.gtlbMu.Unlock()
	}
}

// DrainTLB consumes (tests and clears) the calling CPU's gtlb dirty bit,
// reporting whether a stage-2 invalidate is owed before guest entry.
// Guest-only; host/DMA spaces always report false.
func (s *Space) DrainTLB(cpu int) bool {
	if s.kind != KindGuest {
		return false
	}
	s.gtlbMu.Lock()
	defer s.gtlbMu.Unlock()
	dirty := s.gtlb[cpu]
	delete(s.gtlb, cpu)
	return dirty
}

// StripKernelBits derives a delegated mapping's permission from srcPerm:
// the K bit is always removed, U is kept as the source has it, and every
// other bit is kept only if pmm includes it (spec.md §4.2 step 3).
func StripKernelBits(srcPerm Perm, pmm Perm) Perm {
	return srcPerm & (PermU | pmm) &^ PermK
}

// MaxOrder is the largest order a single Update call may name; bounded by
// the selector width so delegation loops always terminate.
const MaxOrder = kconfig.SelBits - kconfig.PageBits
