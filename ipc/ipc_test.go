package ipc

import (
	"testing"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/hazard"
	"github.com/bedrocksystems/NOVA/portal"
	"github.com/bedrocksystems/NOVA/status"
	"github.com/stretchr/testify/require"
)

// TestPortalRoundTrip is scenario S1: A calls p with MTD={GPR}; B's local
// EC resumes at p.ip; replies with the GPR frame unchanged. A's GPR frame
// after the round trip must equal what it supplied.
func TestPortalRoundTrip(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)
	b := ec.New(ec.Local, 0, nil)
	b.UserSP = 0x7000

	var want [31]uint64
	for i := range want {
		want[i] = uint64(i + 1)
	}
	a.Frame.GPR = want

	pt := portal.New(nil, b, 0x4000, 0xbadcafe, portal.MTDGPR)

	res := Call(0, a, pt, portal.MTDGPR, false)
	require.Equal(t, status.Success, res.Status)
	require.Same(t, b, res.Target)
	require.Equal(t, want, b.Frame.GPR)
	require.Equal(t, uint64(0x4000), b.Frame.IP)
	require.Equal(t, uint64(0x7000), b.Frame.SP)
	require.Equal(t, uint64(0xbadcafe), b.Identity)
	require.Same(t, b, a.Partner.Load())
	require.Same(t, a, b.Rcap.Load())

	// B mutates its own frame, then replies.
	b.Frame.GPR[0] = 999
	rr := Reply(b, portal.MTDGPR, nil)
	require.Same(t, a, rr.Target)
	require.Equal(t, b.Frame.GPR, a.Frame.GPR)
	require.Nil(t, a.Partner.Load())
	require.Nil(t, b.Rcap.Load())
}

func TestCallCrossCPURejected(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)
	b := ec.New(ec.Local, 1, nil)
	pt := portal.New(nil, b, 0x1000, 0, portal.MTDGPR)

	res := Call(0, a, pt, portal.MTDGPR, false)
	require.Equal(t, status.BadCpu, res.Status)
	require.Nil(t, a.Partner.Load(), "no state changes on a rejected call")
}

func TestCallRejectsNonLocalCallee(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)
	b := ec.New(ec.Global, 0, nil)
	pt := portal.New(nil, b, 0x1000, 0, portal.MTDGPR)

	res := Call(0, a, pt, portal.MTDGPR, false)
	require.Equal(t, status.BadPar, res.Status)
}

func TestCallBlockedCalleeTimeout0Fails(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)
	b := ec.New(ec.Local, 0, nil)
	b.SetBlocked(true)
	pt := portal.New(nil, b, 0x1000, 0, portal.MTDGPR)

	res := Call(0, a, pt, portal.MTDGPR, true)
	require.Equal(t, status.Timeout, res.Status)
}

func TestCallHelpsBlockedCalleeByDispatchingChainTail(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)
	b := ec.New(ec.Local, 0, nil)
	c := ec.New(ec.Local, 0, nil)
	b.SetBlocked(true)
	b.Partner.Store(c)
	pt := portal.New(nil, b, 0x1000, 0, portal.MTDGPR)

	res := Call(0, a, pt, portal.MTDGPR, false)
	require.Equal(t, status.Success, res.Status)
	require.Same(t, c, res.Target)
	require.Same(t, b, a.Partner.Load())
}

func TestCallAbortsOnOverlongChain(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)

	first := ec.New(ec.Local, 0, nil)
	cur := first
	for i := 0; i < 20; i++ {
		next := ec.New(ec.Local, 0, nil)
		cur.Partner.Store(next)
		cur = next
	}

	pt := portal.New(nil, first, 0x1000, 0, portal.MTDGPR)
	res := Call(0, a, pt, portal.MTDGPR, false)
	require.Equal(t, status.Aborted, res.Status)
}

func TestReplyWithNoCallerReturnsNilTarget(t *testing.T) {
	b := ec.New(ec.Local, 0, nil)
	rr := Reply(b, portal.MTDGPR, nil)
	require.Nil(t, rr.Target)
}

func TestReplyIllegalArchStateRaisesHazard(t *testing.T) {
	a := ec.New(ec.Global, 0, nil)
	b := ec.New(ec.Local, 0, nil)
	pt := portal.New(nil, b, 0x1000, 0, portal.MTDArch)
	Call(0, a, pt, portal.MTDArch, false)

	alwaysIllegal := func(e *ec.EC) bool { return false }
	Reply(b, portal.MTDArch, alwaysIllegal)
	require.True(t, a.Hazards.Test(hazard.Illegal))
}

func TestRecallIsIdempotent(t *testing.T) {
	e := ec.New(ec.Global, 0, nil)
	Recall(e)
	Recall(e)
	require.True(t, e.Hazards.Test(hazard.Recall))
}
