package sc

import (
	"testing"
	"time"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/stretchr/testify/require"
)

func TestAccountAndUsedMonotonic(t *testing.T) {
	e := ec.New(ec.Global, 0, nil)
	s := New(e, 0, 10, 100*time.Millisecond)
	t0 := time.Now()
	s.SetLast(t0)

	prev := s.Used()
	left := s.Account(t0.Add(30 * time.Millisecond))
	require.Equal(t, 70*time.Millisecond, left)
	require.Greater(t, s.Used(), prev)

	prev = s.Used()
	s.Account(t0.Add(30 * time.Millisecond)) // no time elapsed since last call
	require.GreaterOrEqual(t, s.Used(), prev)
}

func TestReloadBudget(t *testing.T) {
	e := ec.New(ec.Global, 0, nil)
	s := New(e, 0, 5, 50*time.Millisecond)
	s.SetLeft(0)
	s.ReloadBudget()
	require.Equal(t, 50*time.Millisecond, s.Left())
}

func TestPriorityClamped(t *testing.T) {
	e := ec.New(ec.Global, 0, nil)
	s := New(e, 0, 999, time.Second)
	require.Equal(t, MaxPriority, s.Priority)
	s2 := New(e, 0, -5, time.Second)
	require.Equal(t, 0, s2.Priority)
}

func TestWheelArmTickCancel(t *testing.T) {
	w := NewWheel()
	e1 := ec.New(ec.Local, 0, nil)
	e2 := ec.New(ec.Local, 0, nil)

	base := time.Now()
	w.Arm(e1, base.Add(10*time.Millisecond))
	w.Arm(e2, base.Add(20*time.Millisecond))
	require.Equal(t, 2, w.Len())

	fired := w.Tick(base.Add(15 * time.Millisecond))
	require.Equal(t, []*ec.EC{e1}, fired)
	require.Equal(t, 1, w.Len())

	require.True(t, w.Cancel(e2))
	require.False(t, w.Cancel(e2))
	require.Equal(t, 0, w.Len())
}

func TestWheelRearmReplaces(t *testing.T) {
	w := NewWheel()
	e := ec.New(ec.Local, 0, nil)
	base := time.Now()
	w.Arm(e, base.Add(time.Hour))
	w.Arm(e, base.Add(time.Millisecond))
	require.Equal(t, 1, w.Len())

	fired := w.Tick(base.Add(time.Second))
	require.Equal(t, []*ec.EC{e}, fired)
}
