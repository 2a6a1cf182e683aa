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

// Package delegate implements the range-delegation algorithm template of
// spec.md §4.2: validate, walk at the largest mutually-aligned order,
// strip kernel-only permission bits, apply, sync. The validate-then-apply-
// then-sync ordering is grounded on the teacher's idMap.IDMapMount
// (idMap/idMapMount.go), which performs the same shape of sequence for a
// single mount — open/validate the target, clone it, set the new
// attribute, then let the kernel propagate it — just over one mount
// instead of a run of page-table entries.
package delegate

import (
	"math/bits"

	"github.com/bedrocksystems/NOVA/capspace"
	"github.com/bedrocksystems/NOVA/kutil"
	"github.com/bedrocksystems/NOVA/memspace"
	"github.com/bedrocksystems/NOVA/status"
)

// AttrOverride carries the caller-supplied cacheability/shareability used
// when the destination of a memory delegation is not a plain host space
// (spec.md §4.2 step 4: "for delegations into DMA or guest space, take the
// caller-supplied attributes").
type AttrOverride struct {
	Cache memspace.Cache
	Share memspace.Share
}

// largestAlignedOrder returns the largest order o <= maxOrder such that
// both a and b are aligned at o (spec.md §4.2 step 2).
func largestAlignedOrder(a, b uint64, maxOrder int) int {
	o := maxOrder
	if a != 0 {
		if tz := bits.TrailingZeros64(a); tz < o {
			o = tz
		}
	}
	if b != 0 {
		if tz := bits.TrailingZeros64(b); tz < o {
			o = tz
		}
	}
	if o < 0 {
		o = 0
	}
	return o
}

// Mem delegates a page-frame range from src to dst (spec.md §4.2). pmm is
// the caller's requested permission mask; the actual permission applied
// is src's permission intersected with pmm and stripped of kernel-only
// bits (memspace.StripKernelBits). override supplies the cacheability/
// shareability to use when dst is not a plain host space; it is ignored
// for host-to-host delegation, which always inherits the source's
// attributes. syncCPUs is passed to dst.Sync after the loop completes:
// for a guest destination it names the CPUs whose gtlb bit is marked
// dirty; host and DMA destinations ignore it and run their shootdown
// callback instead.
func Mem(src, dst *memspace.Space, ssb, dsb uint64, ord int, pmm memspace.Perm, override *AttrOverride, syncCPUs []int) status.Code {
	if ord < 0 || ord > memspace.MaxOrder {
		return status.BadPar
	}
	size := uint64(1) << uint(ord)
	if ssb+size < ssb || dsb+size < dsb {
		return status.BadPar
	}

	var off uint64
	for off < size {
		remaining := size - off
		maxStep := ord
		for (uint64(1) << uint(maxStep)) > remaining {
			maxStep--
		}
		o := largestAlignedOrder(ssb+off, dsb+off, maxStep)

		entry, ok := src.Lookup(ssb + off)
		if !ok {
			off += uint64(1) << uint(o)
			continue
		}

		perm := memspace.StripKernelBits(entry.Perm, pmm)
		cache, share := entry.Cache, entry.Share
		if !(src.Kind() == memspace.KindHost && dst.Kind() == memspace.KindHost) && override != nil {
			cache, share = override.Cache, override.Share
		}

		if st := dst.Update(dsb+off, entry.PA, o, perm, cache, share); !st.OK() {
			return st
		}
		off += uint64(1) << uint(o)
	}

	dst.Sync(syncCPUs)
	return status.Success
}

// Obj delegates a contiguous run of object capabilities from src to dst.
// Unlike a page table, a CapSpace slot holds exactly one selector's worth
// of state, so there is no alignment-order search here — the algorithm's
// "largest mutually aligned step" degenerates to one selector per
// iteration. pmm masks the copied capability's permission bits.
func Obj(src, dst *capspace.CapSpace, ssb, dsb capspace.Selector, count uint64, pmm capspace.Perm) status.Code {
	for i := uint64(0); i < count; i++ {
		cap := src.Lookup(ssb + capspace.Selector(i))
		if cap.IsNull() {
			continue
		}
		cap.Perm = cap.Perm & pmm
		dst.Update(dsb+capspace.Selector(i), cap)
	}
	return status.Success
}

// Bitmap delegates a set of PIO ports or MSR indices into a destination
// bitmap, expressed as an allow-list of ranges (pd.PD's Pio/Msr fields).
// Ranges are merged with the existing allow-list via kutil.MergeRanges so
// that repeated or overlapping delegation requests are idempotent,
// grounded on the teacher's StringSliceUniquify-shaped helpers in utils.
func Bitmap(existing []kutil.Range, add kutil.Range) []kutil.Range {
	return kutil.MergeRanges(append(append([]kutil.Range{}, existing...), add))
}
