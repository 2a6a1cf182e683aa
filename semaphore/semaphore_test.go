package semaphore

import (
	"testing"
	"time"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/sc"
	"github.com/bedrocksystems/NOVA/scheduler"
	"github.com/bedrocksystems/NOVA/status"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(n int) *scheduler.Scheduler {
	idles := make([]*ec.EC, n)
	for i := range idles {
		idles[i] = ec.New(ec.Kernel, percpu.ID(i), nil)
	}
	return scheduler.New(n, func(cpu percpu.ID) *ec.EC { return idles[cpu] })
}

func TestUpIncrementsWhenNoWaiters(t *testing.T) {
	s := New(0, 10)
	require.Equal(t, status.Success, s.Up(newTestScheduler(1), 0))
	require.Equal(t, uint64(1), s.Counter())
}

func TestUpSaturatesAtCeiling(t *testing.T) {
	s := New(5, 5)
	require.Equal(t, status.Ovrflow, s.Up(newTestScheduler(1), 0))
	require.Equal(t, uint64(5), s.Counter())
}

func TestDownDecrementsWhenPositive(t *testing.T) {
	s := New(3, 10)
	caller := ec.New(ec.Global, 0, nil)
	donor := sc.New(caller, 0, 10, time.Second)

	res := s.Down(caller, donor, false, 0, nil, newTestScheduler(1))
	require.False(t, res.Blocked)
	require.Equal(t, uint64(2), s.Counter())
}

func TestDownZeroFlagClearsCounter(t *testing.T) {
	s := New(7, 10)
	caller := ec.New(ec.Global, 0, nil)
	donor := sc.New(caller, 0, 10, time.Second)

	res := s.Down(caller, donor, true, 0, nil, newTestScheduler(1))
	require.False(t, res.Blocked)
	require.Equal(t, uint64(0), s.Counter())
}

func TestDownBlocksWhenZeroAndUpWakesFIFO(t *testing.T) {
	s := New(0, 10)
	sched := newTestScheduler(1)

	c1 := ec.New(ec.Global, 0, nil)
	d1 := sc.New(c1, 0, 10, time.Second)
	c2 := ec.New(ec.Global, 0, nil)
	d2 := sc.New(c2, 0, 10, time.Second)

	res1 := s.Down(c1, d1, false, 0, nil, sched)
	require.True(t, res1.Blocked)
	require.True(t, c1.Blocked())

	res2 := s.Down(c2, d2, false, 0, nil, sched)
	require.True(t, res2.Blocked)
	require.Equal(t, 2, s.Len())

	require.Equal(t, status.Success, s.Up(sched, 0))
	require.Equal(t, 1, s.Len())
	require.False(t, c1.Blocked())

	d := sched.Schedule(0, time.Now(), false)
	require.Same(t, d1, d.SC, "FIFO: the first blocked caller wakes first")
}

func TestTimeoutDequeuesStillBlocked(t *testing.T) {
	s := New(0, 10)
	sched := newTestScheduler(1)
	wheel := sc.NewWheel()

	caller := ec.New(ec.Global, 0, nil)
	donor := sc.New(caller, 0, 10, time.Second)

	s.Down(caller, donor, false, 5*time.Millisecond, wheel, sched)
	require.Equal(t, 1, s.Len())

	require.True(t, s.Timeout(caller))
	require.Equal(t, 0, s.Len())
	require.False(t, caller.Blocked())

	// already woken: a second Timeout call is a race loss, not an error
	require.False(t, s.Timeout(caller))
}

func TestBindInterrupt(t *testing.T) {
	s := New(0, 10)
	_, ok := s.Interrupt()
	require.False(t, ok)

	s.BindInterrupt(42)
	gsi, ok := s.Interrupt()
	require.True(t, ok)
	require.Equal(t, uint32(42), gsi)
}
