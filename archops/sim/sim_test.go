package sim

import (
	"testing"

	"github.com/bedrocksystems/NOVA/archops"
	"github.com/bedrocksystems/NOVA/ec"
	"github.com/stretchr/testify/require"
)

func TestNewGuestStateAndFree(t *testing.T) {
	a := New()
	gs, err := a.NewGuestState()
	require.NoError(t, err)
	require.NotNil(t, gs)
	require.NoError(t, a.Free(gs))
}

func TestEnterCyclesExitReasons(t *testing.T) {
	a := New()
	gs, err := a.NewGuestState()
	require.NoError(t, err)
	defer a.Free(gs)

	var frame ec.Frame
	seenHLT := false
	for i := 0; i < 8; i++ {
		reason, err := a.Enter(gs, &frame)
		require.NoError(t, err)
		if reason == archops.ExitHLT {
			seenHLT = true
		}
	}
	require.True(t, seenHLT, "sim must eventually produce an HLT exit")
}

func TestEventSelectorIsStableForReason(t *testing.T) {
	a := New()
	require.Equal(t, a.EventSelector(archops.ExitHLT), a.EventSelector(archops.ExitHLT))
	require.NotEqual(t, a.EventSelector(archops.ExitHLT), a.EventSelector(archops.ExitIO))
}
