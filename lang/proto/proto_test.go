package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineForPCDeltas(t *testing.T) {
	// pc0 is an absolute checkpoint at line 10; pc1..3 are deltas; pc4 is a
	// fresh checkpoint at line 20 (as emitted after a large delta); pc5 is a
	// delta from it.
	p := &Prototype{
		Code:       make([]uint32, 6),
		LineDeltas: []byte{LineNoDelta, 1, 0, 2, LineNoDelta, 3},
		Lines: []AbsLineInfo{
			{PC: 0, Line: 10},
			{PC: 4, Line: 20},
		},
	}
	cases := []struct {
		pc   int
		want int32
	}{
		{0, 10},
		{1, 11},
		{2, 11},
		{3, 13},
		{4, 20},
		{5, 23},
	}
	for _, c := range cases {
		require.Equal(t, c.want, p.LineForPC(c.pc), "pc %d", c.pc)
	}
}

func TestLineForPCNegativeDelta(t *testing.T) {
	// A delta byte is a signed int8: a loop back-edge can decrease the line.
	negThree := int8(-3)
	p := &Prototype{
		Code:       make([]uint32, 3),
		LineDeltas: []byte{LineNoDelta, 5, byte(negThree)},
		Lines:      []AbsLineInfo{{PC: 0, Line: 100}},
	}
	require.Equal(t, int32(105), p.LineForPC(1))
	require.Equal(t, int32(102), p.LineForPC(2))
}

func TestLineForPCOutOfRange(t *testing.T) {
	p := &Prototype{LineDeltas: []byte{LineNoDelta}, Lines: []AbsLineInfo{{PC: 0, Line: 1}}}
	require.Equal(t, int32(0), p.LineForPC(-1))
	require.Equal(t, int32(0), p.LineForPC(5))
}
