package memspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupMiss(t *testing.T) {
	s := NewHost(nil)
	_, ok := s.Lookup(5)
	require.False(t, ok)
}

func TestUpdateThenLookup(t *testing.T) {
	s := NewHost(nil)
	st := s.Update(0x10, 0x1000, 2, PermR|PermW|PermU, CacheWriteBack, ShareInner)
	require.True(t, st.OK())

	e, ok := s.Lookup(0x10)
	require.True(t, ok)
	require.Equal(t, uint64(0x1000), e.PA)

	e, ok = s.Lookup(0x13) // last page of the 4-page (order 2) range
	require.True(t, ok)
	require.Equal(t, uint64(0x10), e.PFN)

	_, ok = s.Lookup(0x14)
	require.False(t, ok)
}

func TestUpdateReplacesOverlap(t *testing.T) {
	s := NewHost(nil)
	s.Update(0, 0, 4, PermR, CacheWriteBack, ShareNone) // 16 pages
	s.Update(4, 0x4000, 2, PermR|PermW, CacheWriteBack, ShareNone)

	e, ok := s.Lookup(4)
	require.True(t, ok)
	require.Equal(t, PermR|PermW, e.Perm)

	// page 0 should no longer be covered since the original 16-page
	// mapping was entirely dropped on overlap, not split.
	_, ok = s.Lookup(0)
	require.False(t, ok)
}

func TestUnmapTruncatesPartialOverlap(t *testing.T) {
	s := NewHost(nil)
	s.Update(0, 0, 4, PermR, CacheWriteBack, ShareNone) // pages [0,16)
	s.Unmap(4, 2)                                       // remove [4,8)

	_, ok := s.Lookup(2)
	require.True(t, ok, "page before the unmapped hole stays mapped")

	_, ok = s.Lookup(5)
	require.False(t, ok, "page inside the unmapped hole is gone")

	_, ok = s.Lookup(10)
	require.True(t, ok, "page after the unmapped hole stays mapped")
}

func TestGuestSyncDrainsPerCPU(t *testing.T) {
	g := NewGuest()
	g.Update(0, 0, 0, PermR, CacheWriteBack, ShareNone)
	g.Sync([]int{0, 1})

	require.True(t, g.DrainTLB(0))
	require.False(t, g.DrainTLB(0), "draining clears the bit")
	require.True(t, g.DrainTLB(1))
}

func TestHostSyncInvokesShootdown(t *testing.T) {
	called := false
	s := NewHost(func() { called = true })
	s.Sync(nil)
	require.True(t, called)
}

func TestStripKernelBits(t *testing.T) {
	src := PermR | PermW | PermK | PermU
	got := StripKernelBits(src, PermR)
	require.Equal(t, PermR|PermU, got)
}
