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

package capspace

// Perm is a per-capability permission bitset (spec.md §4.7). Bit meaning
// depends on the referenced object's kind: a PD capability's bits name
// which child kinds it may create, an EC capability's bits name which
// control operations it grants, and so on. The Get/Set/Empty shape below
// is adapted from the teacher's capability.Capabilities interface
// (capability/capability.go), which has the same "bitset keyed by a small
// enum" shape for POSIX capabilities.
type Perm uint32

// PD capability bits: which child kinds this PD capability may create,
// and whether it grants control/assign operations.
const (
	PermPD Perm = 1 << iota
	PermEC
	PermSC
	PermPT
	PermSM
	PermCtrl
	PermAssign
)

// EC capability bits.
const (
	PermBindPT Perm = 1 << iota
	PermBindSC
	// PermCtrl (above) doubles as EC's recall-control bit.
)

// PT capability bits.
const (
	PermCall Perm = 1 << iota
	// PermCtrl (above) doubles as PT's identity/MTD-set bit.
	PermEvent
)

// SM capability bits.
const (
	PermCtrlUp Perm = 1 << iota
	PermCtrlDn
	// PermAssign (above) doubles as SM's interrupt-bind bit.
)

// Get reports whether every bit in want is set in p.
func (p Perm) Get(want Perm) bool { return p&want == want }

// Set returns p with every bit in add set.
func (p Perm) Set(add Perm) Perm { return p | add }

// Empty reports whether p has no bits set.
func (p Perm) Empty() bool { return p == 0 }

// Full reports whether every bit in mask is set in p.
func (p Perm) Full(mask Perm) bool { return p&mask == mask }
