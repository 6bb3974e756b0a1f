package object

import (
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// FrameStatus distinguishes a plain in-flight frame from one suspended
// mid-call by a native continuation (a native frame that suspends records
// a continuation callback plus a ctx word on its CallFrame).
type FrameStatus uint8

const (
	FrameRunning FrameStatus = iota
	FrameSuspendedNative
)

// Continuation is invoked to resume a native frame that suspended via a
// yield helper mid-call; it receives the resume argument and the ctx word
// it stashed before suspending, and returns its final result.
type Continuation func(ctx any, resumeArg value.Value) (value.Value, error)

// CallFrame is one in-flight call on a Fiber's frame stack.
// Slots addresses into the fiber's Value stack via Base rather than a raw
// pointer, since the stack may be reallocated.
type CallFrame struct {
	Closure *Closure
	IP      int
	Base    int // index into the owning Fiber's Stack of R[0] for this frame

	ReturnTo        int // absolute stack index in the caller's window for the first return value
	ExpectedResults int // -1 means "keep all"
	DeferBase       int // index into the fiber's defer stack at frame entry

	Continuation Continuation
	Ctx          any
	Status       FrameStatus
}

// Proto is a convenience accessor for fr.Closure.Proto, nil for a frame
// running a native closure.
func (fr *CallFrame) Proto() *proto.Prototype {
	if fr.Closure == nil {
		return nil
	}
	return fr.Closure.Proto
}
