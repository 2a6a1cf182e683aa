package kutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeRangesOverlap(t *testing.T) {
	in := []Range{
		{Base: 10, Len: 10}, // [10,20)
		{Base: 15, Len: 10}, // [15,25)
		{Base: 100, Len: 1},
	}
	out := MergeRanges(in)
	require.Equal(t, []Range{{Base: 10, Len: 15}, {Base: 100, Len: 1}}, out)
}

func TestMergeRangesDedupExact(t *testing.T) {
	in := []Range{{Base: 4, Len: 4}, {Base: 4, Len: 4}}
	out := MergeRanges(in)
	require.Equal(t, []Range{{Base: 4, Len: 4}}, out)
}

func TestContains(t *testing.T) {
	rs := []Range{{Base: 0, Len: 4}, {Base: 16, Len: 4}}
	require.True(t, Contains(rs, 2))
	require.True(t, Contains(rs, 16))
	require.False(t, Contains(rs, 8))
}
