package vm_test

import (
	"fmt"
	"testing"

	"github.com/emberlang/ember/lang/asm"
	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
	"github.com/emberlang/ember/lang/vm"
	"github.com/stretchr/testify/require"
)

// yieldOnceProto builds fn() { Fiber.yield(1); return 2 }.
func yieldOnceProto() *asm.Builder {
	b := asm.New("yieldOnce").MaxStack(4)
	emitLoadGlobal(b, 0, "Fiber")
	kYield := b.KString("yield")
	b.ABC(bytecode.OpGetField, 0, 0, uint8(kYield), false, 1)
	b.AsBx(bytecode.OpLoadI, 1, 1, 1)
	b.ABC(bytecode.OpCall, 0, 2, 2, false, 1)
	b.AsBx(bytecode.OpLoadI, 0, 2, 2)
	b.ABC(bytecode.OpReturn, 0, 2, 0, false, 2)
	return b
}

func newFiber(t *testing.T, v *vm.VM, b *asm.Builder) *object.Fiber {
	t.Helper()
	cl := object.NewScriptClosure(b.Build())
	v.Heap.Register(cl, 48)
	f := object.NewFiber(cl)
	v.Heap.Register(f, 96)
	return f
}

func TestFiberStateTransitions(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	require.Equal(t, object.FiberNew, fib.State)

	results, yielded, err := v.Resume(fib, nil)
	require.NoError(t, err)
	require.True(t, yielded)
	require.Equal(t, []value.Value{value.Int(1)}, results)
	require.Equal(t, object.FiberSuspended, fib.State)

	results, yielded, err = v.Resume(fib, nil)
	require.NoError(t, err)
	require.False(t, yielded)
	require.Equal(t, []value.Value{value.Int(2)}, results)
	require.Equal(t, object.FiberDone, fib.State)
}

func TestResumeRunningFiberFails(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	fib.State = object.FiberRunning
	_, _, err := v.Resume(fib, nil)
	require.ErrorContains(t, err, "already running")
}

func TestAbortSuspendedFiber(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	_, yielded, err := v.Resume(fib, nil)
	require.NoError(t, err)
	require.True(t, yielded)

	v.Abort(fib, fmt.Errorf("host shutdown"))
	require.Equal(t, object.FiberError, fib.State)
	require.True(t, fib.HasErr)
	require.Empty(t, fib.Frames)

	_, _, err = v.Resume(fib, nil)
	require.ErrorContains(t, err, "ended in error")
}

// TestAbortFiresDefers: aborting a suspended fiber still runs the defers of
// the frames it discards.
func TestAbortFiresDefers(t *testing.T) {
	b := asm.New("f").MaxStack(4).UseDefer()
	nd := b.Nested(printerProto("d", "aborted"))
	b.ABx(bytecode.OpClosure, 0, nd, 1)
	b.ABC(bytecode.OpDefer, 0, 0, 0, false, 1)
	emitLoadGlobal(b, 0, "Fiber")
	kYield := b.KString("yield")
	b.ABC(bytecode.OpGetField, 0, 0, uint8(kYield), false, 1)
	b.ABC(bytecode.OpCall, 0, 1, 2, false, 1)
	b.ABC(bytecode.OpReturn, 0, 1, 0, false, 1)

	v, out := newVM()
	fib := newFiber(t, v, b)
	_, yielded, err := v.Resume(fib, nil)
	require.NoError(t, err)
	require.True(t, yielded)

	v.Abort(fib, fmt.Errorf("stop"))
	require.Equal(t, "aborted\n", out.String())
}

// TestFiberStatusFromScript reads fiber.status through GETFIELD.
func TestFiberStatusFromScript(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	_, _, err := v.Resume(fib, nil)
	require.NoError(t, err)

	main := asm.New("main").Params(1, false).MaxStack(4)
	kStatus := main.KString("status")
	main.ABC(bytecode.OpGetField, 1, 0, uint8(kStatus), false, 1)
	main.ABC(bytecode.OpReturn, 1, 2, 0, false, 1)

	results := run(t, v, main.Build(), fib)
	require.Equal(t, "suspended", str(t, results[0]))
}

// TestFiberCurrent: Fiber.current() returns the running fiber itself.
func TestFiberCurrent(t *testing.T) {
	main := asm.New("main").MaxStack(4)
	emitLoadGlobal(main, 0, "Fiber")
	kCurrent := main.KString("current")
	main.ABC(bytecode.OpGetField, 0, 0, uint8(kCurrent), false, 1)
	main.ABC(bytecode.OpCall, 0, 1, 2, false, 1)
	main.ABC(bytecode.OpReturn, 0, 2, 0, false, 1)

	v, _ := newVM()
	cl := object.NewScriptClosure(main.Build())
	v.Heap.Register(cl, 48)
	results, err := v.Interpret(cl, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Same(t, v.Main, results[0])
}

// TestFiberAbortFromScript: fib.abort(msg) forces the ERROR state.
func TestFiberAbortFromScript(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	_, _, err := v.Resume(fib, nil)
	require.NoError(t, err)

	b := asm.New("main").Params(1, false).MaxStack(4)
	kAbort := b.KString("abort")
	kMsg := b.KString("killed")
	b.ABx(bytecode.OpLoadK, 1, kMsg, 1)
	b.ABC(bytecode.OpInvoke, 0, 2, 0, false, 1)
	b.Ax(bytecode.OpInvoke, kAbort, 1)
	b.ABC(bytecode.OpLoadNil, 1, 0, 0, false, 1)
	b.ABC(bytecode.OpReturn, 1, 1, 0, false, 1)

	run(t, v, b.Build(), fib)
	require.Equal(t, object.FiberError, fib.State)
	require.Equal(t, "killed", str(t, fib.Err))
}

// TestMainFiberYieldErrors: a yield with no resumer is reported by the
// top-level interpreter.
func TestMainFiberYieldErrors(t *testing.T) {
	v, _ := newVM()
	cl := object.NewScriptClosure(yieldOnceProto().Build())
	v.Heap.Register(cl, 48)
	_, err := v.Interpret(cl, nil)
	require.ErrorContains(t, err, "yielded with no resumer")
}

// TestNestedFiberResume: a fiber resumed from inside another fiber returns
// control to its resumer, not to the host.
func TestNestedFiberResume(t *testing.T) {
	inner := asm.New("inner").Params(1, false).MaxStack(4)
	inner.ABC(bytecode.OpAddI, 1, 0, 100, false, 1)
	inner.ABC(bytecode.OpReturn, 1, 2, 0, false, 1)

	outer := asm.New("outer").Params(1, false).MaxStack(8)
	kResume := outer.KString("resume")
	outer.AsBx(bytecode.OpLoadI, 1, 7, 1)
	outer.ABC(bytecode.OpInvoke, 0, 2, 0, false, 1) // R0 = fib.resume(7)
	outer.Ax(bytecode.OpInvoke, kResume, 1)
	outer.ABC(bytecode.OpReturn, 0, 2, 0, false, 1)

	v, _ := newVM()
	innerFib := newFiber(t, v, inner)
	results := run(t, v, outer.Build(), innerFib)
	require.Equal(t, []value.Value{value.Int(107)}, results)
}

// TestScriptResumeDeadFiberRaises: resuming a completed fiber from script
// raises a runtime error (which a pcall could capture like any other).
func TestScriptResumeDeadFiberRaises(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	_, _, err := v.Resume(fib, nil)
	require.NoError(t, err)
	_, _, err = v.Resume(fib, nil)
	require.NoError(t, err)
	require.Equal(t, object.FiberDone, fib.State)

	main := asm.New("main").Params(1, false).MaxStack(4)
	kResume := main.KString("resume")
	main.ABC(bytecode.OpInvoke, 0, 1, 0, false, 1)
	main.Ax(bytecode.OpInvoke, kResume, 1)
	main.ABC(bytecode.OpReturn, 0, 1, 0, false, 1)

	err = runErr(t, v, main.Build(), fib)
	require.ErrorContains(t, err, "dead fiber")
}
