package portal

import (
	"testing"

	"github.com/bedrocksystems/NOVA/ec"
	"github.com/stretchr/testify/require"
)

func TestNewPTFields(t *testing.T) {
	localEC := ec.New(ec.Local, 0, nil)
	p := New(nil, localEC, 0x1000, 0xdead, MTDGPR|MTDIPSP)

	require.Equal(t, uint64(0x1000), p.EntryIP())
	require.Equal(t, uint64(0xdead), p.Identity())
	require.True(t, p.MTD().Has(MTDGPR))
	require.True(t, p.MTD().Has(MTDIPSP))
	require.False(t, p.MTD().Has(MTDFPU))
}

func TestSetCtrlUpdatesIdentityAndMTDOnly(t *testing.T) {
	localEC := ec.New(ec.Local, 0, nil)
	p := New(nil, localEC, 0x2000, 1, MTDGPR)

	p.SetCtrl(42, MTDAll)
	require.Equal(t, uint64(42), p.Identity())
	require.Equal(t, MTDAll, p.MTD())
	require.Equal(t, uint64(0x2000), p.EntryIP(), "entry IP is fixed at create_pt")
}

func TestMTDHasRequiresEveryBit(t *testing.T) {
	m := MTDGPR | MTDArch
	require.True(t, m.Has(MTDGPR))
	require.True(t, m.Has(MTDGPR|MTDArch))
	require.False(t, m.Has(MTDFPU))
	require.False(t, m.Has(MTDGPR|MTDFPU))
}
