package irq

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/scheduler"
	"github.com/bedrocksystems/NOVA/semaphore"
	"github.com/bedrocksystems/NOVA/status"
)

func newTestScheduler(n int) *scheduler.Scheduler {
	idles := make([]*ec.EC, n)
	for i := range idles {
		idles[i] = ec.New(ec.Kernel, percpu.ID(i), nil)
	}
	return scheduler.New(n, func(cpu percpu.ID) *ec.EC { return idles[cpu] })
}

func TestFireDeliversUpToBoundSM(t *testing.T) {
	r := NewRouter()
	sm := semaphore.New(0, 10)
	r.Bind(3, sm)

	sched := newTestScheduler(1)
	require.Equal(t, status.Success, r.Fire(3, sched, 0))
	require.Equal(t, uint64(1), sm.Counter())
	gsi, bound := sm.Interrupt()
	require.True(t, bound)
	require.Equal(t, uint32(3), gsi)
}

func TestFireMasksSourceUntilUnmask(t *testing.T) {
	r := NewRouter()
	sm := semaphore.New(0, 10)
	r.Bind(5, sm)
	sched := newTestScheduler(1)

	require.Equal(t, status.Success, r.Fire(5, sched, 0))
	require.True(t, r.Masked(5))
	require.Equal(t, status.BadDev, r.Fire(5, sched, 0))
	require.Equal(t, uint64(1), sm.Counter(), "masked fire must not deliver a second Up")

	r.Unmask(5)
	require.False(t, r.Masked(5))
	require.Equal(t, status.Success, r.Fire(5, sched, 0))
	require.Equal(t, uint64(2), sm.Counter())
}

func TestFireUnboundGSIReturnsBadDev(t *testing.T) {
	r := NewRouter()
	require.Equal(t, status.BadDev, r.Fire(99, newTestScheduler(1), 0))
}

func TestUnbindClearsRoutingAndMask(t *testing.T) {
	r := NewRouter()
	sm := semaphore.New(0, 10)
	r.Bind(7, sm)
	sched := newTestScheduler(1)
	require.Equal(t, status.Success, r.Fire(7, sched, 0))

	r.Unbind(7)
	require.False(t, r.Masked(7))
	require.Equal(t, status.BadDev, r.Fire(7, sched, 0))
}
