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

// Package capspace implements the per-PD object capability table: a
// lock-free radix tree from Selector to Capability (spec.md §4.1). The
// level-by-level walk here is grounded on the teacher's pathres package
// (pathres/pathres.go), which resolves a path one component at a time and
// stops at the first component that doesn't exist — the same shape as a
// selector walk stopping at the first missing radix level, just with
// bpl-bit groups standing in for path components.
package capspace

import (
	"go.uber.org/atomic"

	"github.com/bedrocksystems/NOVA/kconfig"
	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/status"
)

// Selector identifies a slot in a PD's object table.
type Selector uint64

// Object is the minimal surface capspace needs from any kernel object it
// stores a Capability to; every concrete object (pd.PD, ec.EC, sc.SC,
// portal.PT, semaphore.SM) satisfies it via its embedded kobject.Base.
type Object interface {
	Kind() kobject.Kind
}

// Capability is either null or an (object, permission) pair. The zero
// value is the null capability. Capability itself is immutable once
// constructed; slots hold a *Capability behind an atomic pointer so that
// "insert" and "update" are single atomic-pointer swaps and a reader never
// observes a torn (object, perm) pair (spec.md invariant 6).
type Capability struct {
	Obj  Object
	Perm Perm
}

// Null is the zero Capability: no object, no permissions.
var Null = Capability{}

// IsNull reports whether c names no object.
func (c Capability) IsNull() bool { return c.Obj == nil }

// Validate reports whether c is non-null and carries every bit in
// required (spec.md §4.7: "cap = pd.obj.lookup(sel); if !cap.validate(required)
// fail BAD_CAP").
func (c Capability) Validate(required Perm) bool {
	return !c.IsNull() && c.Perm.Get(required)
}

const (
	slotsPerPage = 1 << kconfig.BitsPerLevel
	levels       = kconfig.RadixLevels
	levelMask    = Selector(slotsPerPage - 1)
)

// page is one radix level: an array of atomic slots. At every level but
// the last, a populated slot's child points at the next page down; at the
// last level, a populated slot's cap holds the actual Capability. A slot
// is only ever in one of those two roles for the lifetime of the CapSpace
// (determined entirely by its page's level), so the two atomics never
// race with each other.
type page struct {
	slot [slotsPerPage]struct {
		child atomic.Pointer[page]
		cap   atomic.Pointer[Capability]
	}
}

// CapSpace is a lock-free radix capability table. The zero value is not
// usable; construct with New.
type CapSpace struct {
	root *page
}

// New returns an empty CapSpace.
func New() *CapSpace {
	return &CapSpace{root: &page{}}
}

func indexAt(sel Selector, level int) int {
	shift := uint(levels-1-level) * kconfig.BitsPerLevel
	return int((sel >> shift) & levelMask)
}

// Lookup walks from the root and returns the null Capability at the first
// missing level; it never allocates (spec.md §4.1 "lookup(sel) →
// Capability").
func (c *CapSpace) Lookup(sel Selector) Capability {
	p := c.root
	for level := 0; level < levels-1; level++ {
		idx := indexAt(sel, level)
		child := p.slot[idx].child.Load()
		if child == nil {
			return Null
		}
		p = child
	}
	idx := indexAt(sel, levels-1)
	cp := p.slot[idx].cap.Load()
	if cp == nil {
		return Null
	}
	return *cp
}

// walkResult distinguishes the three outcomes of walk when allocate is
// false and an interior page is missing ("HOLE"), versus a genuine
// out-of-memory during lazy page allocation ("OOM" — unreachable here
// since Go's allocator panics rather than returning nil, but kept as a
// named outcome so the shape matches spec.md's three-way walk result and
// a future arena-backed allocator can return it honestly).
type walkResult int

const (
	walkOK walkResult = iota
	walkHole
	walkOOM
)

// walk descends to the leaf-level slot for sel. With allocate, it lazily
// creates any missing interior pages with compare-and-swap, discarding the
// loser's allocation on a lost race (spec.md §4.1: "on lost races the
// losing allocation is freed" — in Go, "freed" means "left for the
// collector", there is no explicit free path). Without allocate, a
// missing interior page is reported as walkHole rather than silently
// treated as a miss, so callers that mean "nothing to overwrite" (see
// Update) can tell a hole apart from a populated-but-null leaf.
func (c *CapSpace) walk(sel Selector, allocate bool) (*page, int, walkResult) {
	p := c.root
	for level := 0; level < levels-1; level++ {
		idx := indexAt(sel, level)
		child := p.slot[idx].child.Load()
		if child == nil {
			if !allocate {
				return nil, 0, walkHole
			}
			fresh := &page{}
			if !p.slot[idx].child.CompareAndSwap(nil, fresh) {
				// Lost the race: another walker installed a page first.
				// The fresh page we built is simply dropped; it was never
				// published anywhere another goroutine could reach it.
				child = p.slot[idx].child.Load()
			} else {
				child = fresh
			}
		}
		p = child
	}
	return p, indexAt(sel, levels-1), walkOK
}

// Insert stores cap at sel, succeeding only if the slot was null (spec.md
// §4.1 "insert(sel, cap) → {SUCCESS, BAD_CAP, INS_MEM}").
func (c *CapSpace) Insert(sel Selector, cap Capability) status.Code {
	p, idx, res := c.walk(sel, true)
	if res == walkOOM {
		return status.InsMem
	}
	cp := cap
	if !p.slot[idx].cap.CompareAndSwap(nil, &cp) {
		return status.BadCap
	}
	return status.Success
}

// Update unconditionally exchanges the capability at sel, returning the
// previous value (the null Capability if sel was unpopulated). Used by
// delegate for range copies, which must overwrite whatever was already
// there. A missing interior page (walkHole only arises when allocate is
// false, which Update never requests) cannot occur here since Update
// always allocates on the way down.
func (c *CapSpace) Update(sel Selector, next Capability) Capability {
	p, idx, _ := c.walk(sel, true)
	n := next
	old := p.slot[idx].cap.Swap(&n)
	if old == nil {
		return Null
	}
	return *old
}

// Clear removes any capability at sel without allocating missing interior
// pages; returns the capability that was removed (Null if none). Used by
// revocation paths.
func (c *CapSpace) Clear(sel Selector) Capability {
	p, idx, res := c.walk(sel, false)
	if res == walkHole {
		return Null
	}
	old := p.slot[idx].cap.Swap(nil)
	if old == nil {
		return Null
	}
	return *old
}
