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

// Package kutil holds small slice/range helpers shared by capspace,
// memspace and delegate. Adapted from the teacher's utils package, which
// carried the same shape of helper (StringSliceUniquify, StringSliceRemove)
// for UID/GID and mount-option slices; here the element type is a
// half-open [Base,Base+Len) port/MSR range instead of a string.
package kutil

import (
	mapset "github.com/deckarep/golang-set"
)

// Range is a half-open [Base, Base+Len) interval over a PIO port space or
// MSR space (§6.1 ctrl_pd delegation of PIO/MSR ranges).
type Range struct {
	Base uint64
	Len  uint64
}

func (r Range) end() uint64 { return r.Base + r.Len }

func (r Range) overlaps(o Range) bool {
	return r.Base < o.end() && o.Base < r.end()
}

// MergeRanges coalesces overlapping or adjacent ranges, mirroring the
// teacher's *SliceUniquify helpers: a delegation call that names the same
// port twice, or two overlapping PIO windows, should apply once. Input
// order is not preserved; output is sorted by Base.
func MergeRanges(rs []Range) []Range {
	seen := mapset.NewSet()
	var kept []Range
	for _, r := range rs {
		if r.Len == 0 {
			continue
		}
		if seen.Contains(r) {
			continue
		}
		seen.Add(r)
		kept = append(kept, r)
	}

	// insertion-sort by Base; these lists are small (a handful of
	// delegation ranges per syscall), so O(n^2) here is not a concern.
	for i := 1; i < len(kept); i++ {
		for j := i; j > 0 && kept[j-1].Base > kept[j].Base; j-- {
			kept[j-1], kept[j] = kept[j], kept[j-1]
		}
	}

	merged := kept[:0:0]
	for _, r := range kept {
		if n := len(merged); n > 0 && (merged[n-1].overlaps(r) || merged[n-1].end() == r.Base) {
			if e := r.end(); e > merged[n-1].end() {
				merged[n-1].Len = e - merged[n-1].Base
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Contains reports whether needle falls within any range in rs.
func Contains(rs []Range, needle uint64) bool {
	for _, r := range rs {
		if needle >= r.Base && needle < r.end() {
			return true
		}
	}
	return false
}
