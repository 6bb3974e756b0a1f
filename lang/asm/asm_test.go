package asm

import (
	"testing"

	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/proto"
	"github.com/stretchr/testify/require"
)

func TestBuilderShape(t *testing.T) {
	b := New("f").Params(2, true).MaxStack(10).NeedsReceiver().UseDefer()
	up := b.Upvalue(3, true)
	require.Equal(t, uint8(0), up)

	k1 := b.KInt(42)
	k2 := b.KString("s")
	k3 := b.KFloat(1.5)
	k4 := b.KBool(true)
	k5 := b.KNil()
	require.Equal(t, []uint32{0, 1, 2, 3, 4}, []uint32{k1, k2, k3, k4, k5})

	nested := b.Nested(New("inner").Build())
	require.Equal(t, uint32(0), nested)

	require.Equal(t, 0, b.PC())
	b.ABC(bytecode.OpMove, 1, 0, 0, false, 3)
	require.Equal(t, 1, b.PC())
	b.ABx(bytecode.OpLoadK, 0, k1, 4)
	b.AsBx(bytecode.OpJmp, 0, -1, 5)
	b.Ax(bytecode.OpInvoke, 12345, 6)

	p := b.Build()
	require.Equal(t, "f", p.Name)
	require.Equal(t, uint8(2), p.NumParams)
	require.True(t, p.IsVararg)
	require.Equal(t, uint8(10), p.MaxStackSize)
	require.True(t, p.NeedsReceiver)
	require.True(t, p.UseDefer)
	require.Equal(t, uint8(1), p.NumUpvalues)
	require.Len(t, p.Code, 4)
	require.Len(t, p.Constants, 5)
	require.Len(t, p.Protos, 1)
	require.Equal(t, proto.UpvalDesc{SourceIndex: 3, IsLocal: true}, p.Upvalues[0])

	// Each instruction gets an absolute line checkpoint.
	require.Equal(t, int32(3), p.LineForPC(0))
	require.Equal(t, int32(6), p.LineForPC(3))

	op, a, sbx := bytecode.Instruction(p.Code[2]).DecodeAsBx()
	require.Equal(t, bytecode.OpJmp, op)
	require.Equal(t, uint8(0), a)
	require.Equal(t, int32(-1), sbx)
}

func TestPatchSBx(t *testing.T) {
	b := New("f").MaxStack(2)
	pc := b.AsBx(bytecode.OpJmp, 0, 0, 1)
	b.ABC(bytecode.OpMove, 0, 1, 0, false, 1)
	b.PatchSBx(pc, int32(b.PC()-pc-1))

	p := b.Build()
	_, _, sbx := bytecode.Instruction(p.Code[pc]).DecodeAsBx()
	require.Equal(t, int32(1), sbx)
}

func TestChunkExports(t *testing.T) {
	p := New("root").Build()
	c := Chunk(p, "a", "b")
	require.Same(t, p, c.Root)
	require.Equal(t, []string{"a", "b"}, c.Exports)
}
