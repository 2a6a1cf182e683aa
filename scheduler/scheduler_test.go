package scheduler

import (
	"testing"
	"time"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/bedrocksystems/NOVA/percpu"
	"github.com/bedrocksystems/NOVA/sc"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, n int) (*Scheduler, []*ec.EC) {
	idles := make([]*ec.EC, n)
	for i := range idles {
		idles[i] = ec.New(ec.Kernel, percpu.ID(i), nil)
	}
	s := New(n, func(cpu percpu.ID) *ec.EC { return idles[cpu] })
	return s, idles
}

func TestScheduleIdleWhenEmpty(t *testing.T) {
	s, idles := newTestScheduler(t, 1)
	d := s.Schedule(0, time.Now(), false)
	require.Nil(t, d.SC)
	require.Same(t, idles[0], d.EC)
}

func TestScheduleHighestPriorityFirst(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	low := sc.New(ec.New(ec.Local, 0, nil), 0, 5, time.Second)
	high := sc.New(ec.New(ec.Local, 0, nil), 0, 50, time.Second)

	s.Enqueue(0, low, false)
	s.Enqueue(0, high, false)

	d := s.Schedule(0, time.Now(), false)
	require.Same(t, high, d.SC)
}

func TestScheduleFIFOWithinPriority(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	first := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)
	second := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)

	s.Enqueue(0, first, false)
	s.Enqueue(0, second, false)

	d := s.Schedule(0, time.Now(), false)
	require.Same(t, first, d.SC)
}

func TestScheduleReenqueuesCurrentWithBudgetLeft(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	now := time.Now()
	scx := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)
	scx.SetLast(now)
	s.Enqueue(0, scx, false)

	d1 := s.Schedule(0, now, false)
	require.Same(t, scx, d1.SC)

	// small time passes, plenty of budget left
	d2 := s.Schedule(0, now.Add(10*time.Millisecond), false)
	require.Same(t, scx, d2.SC, "SC with budget left re-enqueues and is the only runnable SC")
}

func TestScheduleDropsBlockedSelf(t *testing.T) {
	s, idles := newTestScheduler(t, 1)
	now := time.Now()
	scx := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)
	scx.SetLast(now)
	s.Enqueue(0, scx, false)
	s.Schedule(0, now, false)

	// scx blocks on an SM: its EC calls Schedule with blockedSelf=true, so
	// it must not reappear in the ready queue.
	d := s.Schedule(0, now.Add(time.Millisecond), true)
	require.Same(t, idles[0], d.EC)
}

func TestScheduleExhaustedBudgetGoesToTail(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	now := time.Now()
	exhausted := sc.New(ec.New(ec.Local, 0, nil), 0, 10, 10*time.Millisecond)
	exhausted.SetLast(now)
	peer := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)

	s.Enqueue(0, exhausted, false)
	d1 := s.Schedule(0, now, false)
	require.Same(t, exhausted, d1.SC)

	s.Enqueue(0, peer, false)
	// exhausted's quantum (10ms) is fully used up
	d2 := s.Schedule(0, now.Add(20*time.Millisecond), false)
	require.Same(t, peer, d2.SC, "peer enqueued before exhausted was reloaded to the tail")

	require.Equal(t, exhausted.Budget, exhausted.Left(), "reloaded to a fresh quantum")
}

func TestUnblockLocalGoesToReadyHead(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	scx := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)

	s.Unblock(0, scx)
	d := s.Schedule(0, time.Now(), false)
	require.Same(t, scx, d.SC)
}

func TestUnblockRemoteGoesToReleaseQueueThenDrains(t *testing.T) {
	s, idles := newTestScheduler(t, 2)
	scx := sc.New(ec.New(ec.Local, 1, nil), 1, 10, time.Second)

	s.Unblock(0, scx)
	// not visible on CPU 1's ready queue until its own Schedule drains the
	// release queue
	d0 := s.Schedule(1, time.Now(), false)
	require.Same(t, scx, d0.SC)
	_ = idles
}

func TestCurrentTracksDispatchedSC(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	require.Nil(t, s.Current(0))
	scx := sc.New(ec.New(ec.Local, 0, nil), 0, 10, time.Second)
	s.Enqueue(0, scx, false)
	s.Schedule(0, time.Now(), false)
	require.Same(t, scx, s.Current(0))
}
