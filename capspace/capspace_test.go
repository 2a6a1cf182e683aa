package capspace

import (
	"sync"
	"testing"

	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/status"
	"github.com/stretchr/testify/require"
)

type fakeObj struct{ kind kobject.Kind }

func (f *fakeObj) Kind() kobject.Kind { return f.kind }

func TestLookupOnEmptyIsNull(t *testing.T) {
	cs := New()
	require.True(t, cs.Lookup(42).IsNull())
}

func TestInsertThenLookup(t *testing.T) {
	cs := New()
	cap := Capability{Obj: &fakeObj{kobject.KindEC}, Perm: PermCall}

	require.Equal(t, status.Success, cs.Insert(7, cap))
	got := cs.Lookup(7)
	require.False(t, got.IsNull())
	require.Equal(t, cap.Obj, got.Obj)
	require.Equal(t, cap.Perm, got.Perm)
}

func TestInsertTwiceFailsBadCap(t *testing.T) {
	cs := New()
	cap := Capability{Obj: &fakeObj{kobject.KindPT}, Perm: PermCall}

	require.Equal(t, status.Success, cs.Insert(100, cap))
	require.Equal(t, status.BadCap, cs.Insert(100, cap))
}

func TestLookupIdempotentUnderNoMutation(t *testing.T) {
	cs := New()
	cap := Capability{Obj: &fakeObj{kobject.KindSM}, Perm: PermCtrlUp}
	require.Equal(t, status.Success, cs.Insert(9, cap))

	first := cs.Lookup(9)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, cs.Lookup(9))
	}
}

func TestUpdateOverwritesUnconditionally(t *testing.T) {
	cs := New()
	a := Capability{Obj: &fakeObj{kobject.KindEC}, Perm: PermBindPT}
	b := Capability{Obj: &fakeObj{kobject.KindEC}, Perm: PermBindSC}

	old := cs.Update(3, a)
	require.True(t, old.IsNull())

	old = cs.Update(3, b)
	require.Equal(t, a, old)
	require.Equal(t, b, cs.Lookup(3))
}

func TestClearRemovesCapability(t *testing.T) {
	cs := New()
	cap := Capability{Obj: &fakeObj{kobject.KindSC}, Perm: PermCtrl}
	require.Equal(t, status.Success, cs.Insert(55, cap))

	removed := cs.Clear(55)
	require.Equal(t, cap, removed)
	require.True(t, cs.Lookup(55).IsNull())

	// clearing an already-empty slot is a no-op, not an error
	require.True(t, cs.Clear(55).IsNull())
}

func TestValidateRequiresAllBits(t *testing.T) {
	cap := Capability{Obj: &fakeObj{kobject.KindPT}, Perm: PermCall | PermEvent}
	require.True(t, cap.Validate(PermCall))
	require.True(t, cap.Validate(PermCall|PermEvent))
	require.False(t, cap.Validate(PermCall|PermCtrl))
	require.False(t, Null.Validate(0))
}

// TestConcurrentInsertSameInteriorPath exercises the "at most one
// allocation per level per slot survives" property: many goroutines race
// to lazily install interior pages along selectors that share a prefix,
// and each selector's own leaf insert must still succeed exactly once.
func TestConcurrentInsertSameInteriorPath(t *testing.T) {
	cs := New()
	const n = 256
	var wg sync.WaitGroup
	results := make([]status.Code, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cap := Capability{Obj: &fakeObj{kobject.KindPD}, Perm: PermPD}
			results[i] = cs.Insert(Selector(i), cap)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		require.Equal(t, status.Success, r, "selector %d", i)
	}
	for i := 0; i < n; i++ {
		require.False(t, cs.Lookup(Selector(i)).IsNull())
	}
}
