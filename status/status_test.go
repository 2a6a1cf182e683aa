package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	cases := map[Code]string{
		Success: "SUCCESS",
		Timeout: "TIMEOUT",
		BadCap:  "BAD_CAP",
		Ovrflow: "OVRFLOW",
		ComTim:  "COM_TIM",
	}
	for code, want := range cases {
		require.Equal(t, want, code.String())
		require.Equal(t, want, code.Error())
	}
}

func TestOK(t *testing.T) {
	require.True(t, Success.OK())
	require.False(t, BadCap.OK())
}

func TestUnknownCodeDoesNotPanic(t *testing.T) {
	var c Code = 255
	require.Equal(t, "BAD_HYP", c.String())
}
