package ec

import (
	"testing"
	"time"

	"github.com/bedrocksystems/NOVA/hazard"
	"github.com/stretchr/testify/require"
)

func TestNewECStartsUserResume(t *testing.T) {
	e := New(Global, 0, nil)
	require.Equal(t, ContUserResume, e.Cont.Load().Kind)
	require.Equal(t, 0, int(e.CPU))
	require.False(t, e.Blocked())
}

func TestHelpChainDepthLinear(t *testing.T) {
	a := New(Local, 0, nil)
	b := New(Local, 0, nil)
	c := New(Local, 0, nil)
	a.Partner.Store(b)
	b.Partner.Store(c)

	require.Equal(t, 3, a.HelpChainDepth())
	require.Equal(t, c, a.ChainTail())
}

func TestHelpChainDepthDetectsCycle(t *testing.T) {
	a := New(Local, 0, nil)
	b := New(Local, 0, nil)
	a.Partner.Store(b)
	b.Partner.Store(a)

	require.Greater(t, a.HelpChainDepth(), 16)
}

func TestRequestKillThenAck(t *testing.T) {
	e := New(Global, 0, nil)
	done := e.RequestKill()
	require.True(t, e.Hazards.Test(hazard.Kill))

	e.AckKill()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("killDone not closed")
	}
	require.True(t, e.Killed())

	// idempotent
	e.AckKill()
}
