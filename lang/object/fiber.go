package object

import (
	"fmt"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// FiberState is one of the five states a Fiber may be in.
type FiberState uint8

const (
	FiberNew FiberState = iota
	FiberRunning
	FiberSuspended
	FiberDone
	FiberError
)

func (s FiberState) String() string {
	switch s {
	case FiberNew:
		return "new"
	case FiberRunning:
		return "running"
	case FiberSuspended:
		return "suspended"
	case FiberDone:
		return "dead"
	case FiberError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultStackCapacity is the initial value-stack size every Fiber is
// created with.
const DefaultStackCapacity = 256

// MaxCallFrames is the default per-fiber frame-depth cap, sized to give
// deeply-recursive scripts headroom while still catching runaway recursion
// quickly.
const MaxCallFrames = 200

// deferEntry is one closure queued by OP_DEFER, fired LIFO on frame exit.
type deferEntry struct {
	closure *Closure
}

// Fiber is a single cooperative execution context: its own value stack,
// call-frame stack, and defer stack. The
// value stack is relocatable; open upvalues store offsets rather than raw
// pointers specifically so that a stack reallocation can fix them all up in
// one pass.
type Fiber struct {
	gc.Header

	Stack    []value.Value
	StackTop int // index one past the highest live slot; invariant F1

	Frames []CallFrame

	defers []deferEntry

	openUpvalues *Upvalue // head of list sorted by descending Offset (F2)

	Caller *Fiber

	// Entry, when non-nil, is the closure the scheduler runs as this fiber's
	// first call on the first Resume. NewFiber leaves it nil and records its
	// entry closure in the initial frame instead, which the scheduler uses
	// when Entry is nil.
	Entry *Closure

	YieldValue value.Value
	Err        value.Value
	HasErr     bool

	State FiberState

	// PendingReturnTo/PendingExpected remember where a suspended native call
	// (Fiber.yield) should deliver the next resume argument, exactly as if
	// the call that yielded had instead returned it. Meaningless unless
	// State == FiberSuspended.
	PendingReturnTo int
	PendingExpected int

	// pendingResults carries a RETURN's values out of the dispatch loop when
	// the popped frame was the last one execute is responsible for: execute
	// reads and clears this immediately after noticing the frame count
	// dropped to its exit depth.
	pendingResults []value.Value
}

var (
	_ value.Value = (*Fiber)(nil)
	_ gc.Object   = (*Fiber)(nil)
)

// NewFiber creates a Fiber in state NEW ready to begin its first resume
// with entry pre-installed as the top-level call.
func NewFiber(entry *Closure) *Fiber {
	f := &Fiber{
		Stack: make([]value.Value, DefaultStackCapacity),
		State: FiberNew,
	}
	f.Frames = append(f.Frames, CallFrame{Closure: entry, ExpectedResults: -1})
	return f
}

func (f *Fiber) Kind() value.Kind { return value.KindFiber }
func (f *Fiber) String() string   { return fmt.Sprintf("<fiber %p (%s)>", f, f.State) }

// EnsureCapacity grows the stack so that at least n slots are usable,
// relocating every open upvalue's offset unchanged (offsets are indices,
// not pointers, so growth alone never invalidates them; only a base
// shift, which this fiber never performs, would).
func (f *Fiber) EnsureCapacity(n int) {
	if n <= len(f.Stack) {
		return
	}
	newCap := len(f.Stack) * 2
	if newCap < n {
		newCap = n
	}
	grown := make([]value.Value, newCap)
	copy(grown, f.Stack)
	f.Stack = grown
}

// PushDefer queues closure to run LIFO when the current frame exits
// (OP_DEFER).
func (f *Fiber) PushDefer(closure *Closure) {
	f.defers = append(f.defers, deferEntry{closure: closure})
}

// DeferTop returns the current length of the defer stack, recorded into a
// CallFrame's DeferBase at frame entry.
func (f *Fiber) DeferTop() int { return len(f.defers) }

// PopDefersTo pops and returns, in LIFO (fire) order, every defer entry
// above base, truncating the defer stack to base. Used on frame exit and
// on pcall unwind.
func (f *Fiber) PopDefersTo(base int) []*Closure {
	if base >= len(f.defers) {
		return nil
	}
	pending := f.defers[base:]
	out := make([]*Closure, len(pending))
	for i := range pending {
		out[len(pending)-1-i] = pending[i].closure
	}
	f.defers = f.defers[:base]
	return out
}

// SetPendingResults stashes a RETURN's values for execute to pick up once
// the popped frame was the last one it owns.
func (f *Fiber) SetPendingResults(results []value.Value) { f.pendingResults = results }

// TakePendingResults returns and clears the values stashed by
// SetPendingResults.
func (f *Fiber) TakePendingResults() []value.Value {
	r := f.pendingResults
	f.pendingResults = nil
	return r
}

// OpenUpvalues returns the head of the open-upvalue list (descending
// offset order, F2).
func (f *Fiber) OpenUpvalues() *Upvalue { return f.openUpvalues }

// SetOpenUpvalues replaces the open-upvalue list head, used when splicing
// in a newly captured upvalue or after CloseUpvaluesFrom removes some.
func (f *Fiber) SetOpenUpvalues(head *Upvalue) { f.openUpvalues = head }

// FindOrCaptureUpvalue implements captureUpvalue: it walks the
// open list for an existing upvalue at offset, reusing it, or else
// allocates and splices in a new one at the correct sorted position.
func (f *Fiber) FindOrCaptureUpvalue(offset int) *Upvalue {
	var prev *Upvalue
	cur := f.openUpvalues
	for cur != nil && cur.Offset() > offset {
		prev = cur
		cur = cur.Next()
	}
	if cur != nil && cur.Offset() == offset {
		return cur
	}
	uv := NewOpenUpvalue(&f.Stack, offset)
	uv.SetNext(cur)
	if prev == nil {
		f.openUpvalues = uv
	} else {
		prev.SetNext(uv)
	}
	return uv
}

// CloseUpvaluesFrom closes every open upvalue whose offset is >= offset,
// per OP_CLOSE_UPVALUE and the implicit close-on-return.
func (f *Fiber) CloseUpvaluesFrom(offset int) {
	for f.openUpvalues != nil && f.openUpvalues.Offset() >= offset {
		uv := f.openUpvalues
		f.openUpvalues = uv.Next()
		uv.Close()
	}
}

func (f *Fiber) GCHeader() *gc.Header { return &f.Header }

func (f *Fiber) Trace(mark func(value.Value)) {
	for i := 0; i < f.StackTop; i++ {
		if f.Stack[i] != nil {
			mark(f.Stack[i])
		}
	}
	for i := range f.Frames {
		if f.Frames[i].Closure != nil {
			mark(f.Frames[i].Closure)
		}
	}
	for uv := f.openUpvalues; uv != nil; uv = uv.Next() {
		mark(uv)
	}
	for _, d := range f.defers {
		mark(d.closure)
	}
	if f.YieldValue != nil {
		mark(f.YieldValue)
	}
	if f.HasErr && f.Err != nil {
		mark(f.Err)
	}
}

func (f *Fiber) Free() {
	f.Stack = nil
	f.Frames = nil
	f.defers = nil
	f.openUpvalues = nil
	f.Caller = nil
}
