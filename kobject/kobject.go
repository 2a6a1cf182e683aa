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

// Package kobject defines the base kernel-object type shared by every
// subtype (PD, EC, SC, PT, SM): a kind tag, a subtype tag and a reference
// count (spec.md §3 "KObject (variants)"). Subtype-specific state lives
// in the owning package (pd, ec, sc, portal, semaphore); this package only
// fixes the shape every one of them embeds so capspace can store a single
// uniform Ref regardless of kind.
package kobject

import "go.uber.org/atomic"

// Kind tags which object table a capability came from / which syscall
// family it answers to.
type Kind uint8

const (
	KindNone Kind = iota
	KindPD
	KindEC
	KindSC
	KindPT
	KindSM
)

func (k Kind) String() string {
	switch k {
	case KindPD:
		return "PD"
	case KindEC:
		return "EC"
	case KindSC:
		return "SC"
	case KindPT:
		return "PT"
	case KindSM:
		return "SM"
	default:
		return "NONE"
	}
}

// Destroyer is implemented by every concrete object; Destroy runs when the
// refcount reaches zero (spec.md §3 "Destroy"): it must drain any pending
// timeout and dequeue from any SM. Objects live on the Go heap, so there
// is no slab slot to release. It is called at most once per object.
type Destroyer interface {
	Destroy()
}

// Base is embedded by every concrete kernel object (pd.PD, ec.EC, sc.SC,
// portal.PT, semaphore.SM) to provide the kind tag and refcount machinery
// common to all of them.
type Base struct {
	kind Kind
	refs atomic.Int64
}

// NewBase constructs a Base with the given kind and an initial reference
// count of 1 (the reference the creating capability holds).
func NewBase(kind Kind) Base {
	b := Base{kind: kind}
	b.refs.Store(1)
	return b
}

// Kind returns the object's kind tag.
func (b *Base) Kind() Kind { return b.kind }

// Ref increments the reference count. No path in the core calls it:
// capspace insertion and delegate.Obj copy capabilities without changing
// the count.
func (b *Base) Ref() { b.refs.Add(1) }

// Unref decrements the reference count and reports whether it reached
// zero, in which case the caller must invoke the object's Destroy exactly
// once (spec.md §3 "Destroy": "final release runs after the holding space
// confirms no reachability through any capability table").
func (b *Base) Unref() bool {
	return b.refs.Add(-1) == 0
}

// RefCount returns the current reference count, for introspection.
func (b *Base) RefCount() int64 { return b.refs.Load() }
