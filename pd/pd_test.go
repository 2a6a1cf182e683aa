package pd

import (
	"testing"

	"github.com/bedrocksystems/NOVA/kobject"
	"github.com/bedrocksystems/NOVA/kutil"
	"github.com/stretchr/testify/require"
)

func TestNewPDHasEmptySpaces(t *testing.T) {
	p := New(nil, nil)
	require.NotNil(t, p.Obj)
	require.NotNil(t, p.Hst)
	require.NotNil(t, p.Dma)
	require.Nil(t, p.Gst)
	require.Equal(t, kobject.KindPD, p.Kind())
}

func TestEnableGuestIsIdempotent(t *testing.T) {
	p := New(nil, nil)
	g1 := p.EnableGuest()
	g2 := p.EnableGuest()
	require.Same(t, g1, g2)
}

func TestPioAllowList(t *testing.T) {
	p := New(nil, nil)
	require.False(t, p.PioAllowed(0x3f8))
	p.AddPio(kutil.Range{Base: 0x3f8, Len: 8})
	require.True(t, p.PioAllowed(0x3f8))
	require.True(t, p.PioAllowed(0x3ff))
	require.False(t, p.PioAllowed(0x400))
}

func TestKernelPDFlag(t *testing.T) {
	p := New(nil, nil)
	require.False(t, p.Kernel)
	p.Kernel = true
	require.True(t, p.Kernel)
}
