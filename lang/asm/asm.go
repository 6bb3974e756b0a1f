// Package asm hand-assembles proto.Prototype values from a fluent
// builder, standing in for the AST-lowering compiler that lives outside
// this repository. It exists so tests and the hot-reload demo can
// construct bytecode directly.
package asm

import (
	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/proto"
)

// Builder accumulates instructions, constants, nested prototypes, and
// upvalue descriptors for a single Prototype.
type Builder struct {
	name          string
	numParams     uint8
	isVararg      bool
	maxStack      uint8
	needsReceiver bool
	useDefer      bool

	code      []uint32
	constants []proto.Const
	protos    []*proto.Prototype
	upvalues  []proto.UpvalDesc
	lines     []int32
}

// New creates a builder for a prototype named name.
func New(name string) *Builder {
	return &Builder{name: name, maxStack: 8}
}

// Params sets the parameter count and vararg flag.
func (b *Builder) Params(n uint8, vararg bool) *Builder {
	b.numParams = n
	b.isVararg = vararg
	return b
}

// MaxStack sets the max register window size for this prototype.
func (b *Builder) MaxStack(n uint8) *Builder {
	b.maxStack = n
	return b
}

// NeedsReceiver marks this prototype as a method expecting slots[0] to be
// the receiver.
func (b *Builder) NeedsReceiver() *Builder {
	b.needsReceiver = true
	return b
}

// UseDefer marks this prototype as containing at least one DEFER.
func (b *Builder) UseDefer() *Builder {
	b.useDefer = true
	return b
}

// Upvalue appends an upvalue descriptor, returning its index for use with
// CLOSURE.
func (b *Builder) Upvalue(sourceIndex uint8, isLocal bool) uint8 {
	b.upvalues = append(b.upvalues, proto.UpvalDesc{SourceIndex: sourceIndex, IsLocal: isLocal})
	return uint8(len(b.upvalues) - 1)
}

// Nested appends a nested prototype (as built by its own Builder.Build),
// returning its index for use with CLOSURE's Bx operand.
func (b *Builder) Nested(p *proto.Prototype) uint32 {
	b.protos = append(b.protos, p)
	return uint32(len(b.protos) - 1)
}

// KInt, KFloat, KString, KBool, and KNil append a constant pool entry,
// returning its index for use with LOADK/GETFIELD/EQK and friends.
func (b *Builder) KInt(v int64) uint32 {
	return b.addConst(proto.Const{Kind: proto.ConstInt, Int: v})
}
func (b *Builder) KFloat(v float64) uint32 {
	return b.addConst(proto.Const{Kind: proto.ConstFloat, Flt: v})
}
func (b *Builder) KString(v string) uint32 {
	return b.addConst(proto.Const{Kind: proto.ConstString, Str: v})
}
func (b *Builder) KBool(v bool) uint32 {
	return b.addConst(proto.Const{Kind: proto.ConstBool, Bool: v})
}
func (b *Builder) KNil() uint32 {
	return b.addConst(proto.Const{Kind: proto.ConstNil})
}

func (b *Builder) addConst(c proto.Const) uint32 {
	b.constants = append(b.constants, c)
	return uint32(len(b.constants) - 1)
}

// PC returns the index the next emitted instruction will occupy, useful for
// computing jump offsets before the jump target is known.
func (b *Builder) PC() int { return len(b.code) }

// Emit appends a fully-formed instruction (for callers that prefer to build
// Instruction values directly) at source line.
func (b *Builder) Emit(instr bytecode.Instruction, line int32) int {
	b.code = append(b.code, uint32(instr))
	b.lines = append(b.lines, line)
	return len(b.code) - 1
}

// ABC emits an iABC instruction.
func (b *Builder) ABC(op bytecode.Op, a, c2, c3 uint8, k bool, line int32) int {
	return b.Emit(bytecode.EncodeABC(op, a, c2, c3, k), line)
}

// ABx emits an iABx instruction.
func (b *Builder) ABx(op bytecode.Op, a uint8, bx uint32, line int32) int {
	return b.Emit(bytecode.EncodeABx(op, a, bx), line)
}

// AsBx emits an iAsBx instruction.
func (b *Builder) AsBx(op bytecode.Op, a uint8, sbx int32, line int32) int {
	return b.Emit(bytecode.EncodeAsBx(op, a, sbx), line)
}

// Ax emits an iAx instruction (used for the extended operand that follows
// OP_INVOKE).
func (b *Builder) Ax(op bytecode.Op, ax uint32, line int32) int {
	return b.Emit(bytecode.EncodeAx(op, ax), line)
}

// PatchSBx rewrites the sBx operand of the iAsBx instruction at pc, used to
// back-patch forward jumps once the target address is known.
func (b *Builder) PatchSBx(pc int, sbx int32) {
	op, a, _ := bytecode.Instruction(b.code[pc]).DecodeAsBx()
	b.code[pc] = uint32(bytecode.EncodeAsBx(op, a, sbx))
}

// Build finalises the accumulated instructions into an immutable
// *proto.Prototype. Line info is emitted as one absolute checkpoint per
// instruction for simplicity (a real compiler compresses this; tests don't
// need to exercise the delta path to validate VM semantics).
func (b *Builder) Build() *proto.Prototype {
	deltas := make([]byte, len(b.code))
	checkpoints := make([]proto.AbsLineInfo, len(b.code))
	for i, line := range b.lines {
		deltas[i] = proto.LineNoDelta
		checkpoints[i] = proto.AbsLineInfo{PC: i, Line: line}
	}
	return &proto.Prototype{
		Name:          b.name,
		NumParams:     b.numParams,
		IsVararg:      b.isVararg,
		NumUpvalues:   uint8(len(b.upvalues)),
		MaxStackSize:  b.maxStack,
		NeedsReceiver: b.needsReceiver,
		UseDefer:      b.useDefer,
		Code:          b.code,
		Constants:     b.constants,
		Protos:        b.protos,
		Upvalues:      b.upvalues,
		LineDeltas:    deltas,
		Lines:         checkpoints,
	}
}

// Chunk wraps p as a root Chunk with the given export names.
func Chunk(p *proto.Prototype, exports ...string) *proto.Chunk {
	return &proto.Chunk{Root: p, Exports: exports}
}
