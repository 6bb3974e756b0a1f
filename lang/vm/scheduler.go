package vm

import (
	"fmt"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// Interpret runs closure as a fresh top-level fiber and installs it as
// vm.Main. Use this for
// the host's outermost entry point; nested fiber execution (module loads,
// Fiber.create/resume) goes through runClosure/Resume instead so a nested
// run never clobbers vm.Main.
func (vm *VM) Interpret(closure *object.Closure, args []value.Value) ([]value.Value, error) {
	fiber := object.NewFiber(closure)
	vm.Heap.Register(fiber, 96)
	vm.Main = fiber
	results, yielded, err := vm.Resume(fiber, args)
	if err != nil {
		vm.reportError(err)
		return nil, err
	}
	if yielded {
		return nil, fmt.Errorf("main fiber yielded with no resumer")
	}
	return results, nil
}

// runClosure drives a fresh fiber running closure to completion without
// touching vm.Main, for callers (module loading) that must not disturb
// whichever fiber the host considers the main one.
func (vm *VM) runClosure(closure *object.Closure, args []value.Value) ([]value.Value, error) {
	fiber := object.NewFiber(closure)
	vm.Heap.Register(fiber, 96)
	results, yielded, err := vm.Resume(fiber, args)
	if err != nil {
		return nil, err
	}
	if yielded {
		return nil, fmt.Errorf("fiber yielded with no resumer")
	}
	return results, nil
}

// Resume drives fiber forward from NEW or SUSPENDED until it either returns
// (results, false, nil), yields (the yielded value wrapped in a one-element
// slice, true, nil), or errors (nil, false, err). It is the single place
// fiber scheduling happens; the native
// Fiber.resume method (builtins.go) is a thin script-facing wrapper.
func (vm *VM) Resume(fiber *object.Fiber, args []value.Value) ([]value.Value, bool, error) {
	switch fiber.State {
	case object.FiberDone:
		return nil, false, fmt.Errorf("cannot resume a dead fiber")
	case object.FiberRunning:
		return nil, false, fmt.Errorf("cannot resume a fiber that is already running")
	case object.FiberError:
		return nil, false, fmt.Errorf("cannot resume a fiber that ended in error")
	}

	prev := vm.Current
	fiber.Caller = prev
	vm.Current = fiber
	defer func() { vm.Current = prev }()

	if fiber.State == object.FiberNew {
		if err := vm.startFiber(fiber, args); err != nil {
			fiber.State = object.FiberError
			fiber.HasErr = true
			fiber.Err = errValueOf(vm, err)
			return nil, false, err
		}
	} else {
		vm.deliverResumeArg(fiber, firstOrNil(args))
	}
	fiber.State = object.FiberRunning

	results, status, err := vm.execute(fiber, 0)
	if err != nil {
		fiber.State = object.FiberError
		fiber.HasErr = true
		fiber.Err = errValueOf(vm, err)
		return nil, false, err
	}
	if status == execYielded {
		return []value.Value{fiber.YieldValue}, true, nil
	}
	fiber.State = object.FiberDone
	return results, false, nil
}

// startFiber installs entry as fiber's first (and, at this point, only)
// frame, replacing the placeholder frame NewFiber pushed at construction
// time, and seeds its register window/native argument window with args.
func (vm *VM) startFiber(fiber *object.Fiber, args []value.Value) error {
	entry := fiber.Entry
	if entry == nil && len(fiber.Frames) > 0 {
		entry = fiber.Frames[0].Closure
	}
	fiber.Frames = fiber.Frames[:0]
	fiber.StackTop = 0
	if entry == nil {
		return fmt.Errorf("fiber has no entry closure")
	}
	if entry.IsNative() {
		fiber.EnsureCapacity(len(args))
		copy(fiber.Stack, args)
		fiber.StackTop = len(args)
		fiber.Frames = append(fiber.Frames, object.CallFrame{Closure: entry, DeferBase: fiber.DeferTop()})
		return nil
	}
	return vm.pushScriptFrame(fiber, entry, args, 0, -1)
}

// deliverResumeArg writes a resumed fiber's argument into the register
// slot the suspended Fiber.yield call was about to return into, exactly as
// if that call had returned arg instead of suspending.
func (vm *VM) deliverResumeArg(fiber *object.Fiber, arg value.Value) {
	vm.writeResults(fiber, fiber.PendingReturnTo, fiber.PendingExpected, []value.Value{arg})
	if fiber.PendingExpected >= 0 && len(fiber.Frames) > 0 {
		top := &fiber.Frames[len(fiber.Frames)-1]
		fiber.StackTop = top.Base + int(top.Closure.Proto.MaxStackSize)
	}
}

// NewHostFiber creates a bare fiber in the RUNNING state with no entry
// closure and no frames, for the embedding API's root State to
// drive Call/GetGlobal/etc. against before any script has been interpreted.
// If no fiber is current yet it becomes vm.Current (and, if vm.Main is
// unset, vm.Main), so nested
// script calls (GC, magic methods) see a consistent "currently running
// fiber" even though nothing ever resumed it through the scheduler.
func (vm *VM) NewHostFiber() *object.Fiber {
	fiber := &object.Fiber{
		Stack: make([]value.Value, object.DefaultStackCapacity),
		State: object.FiberRunning,
	}
	vm.Heap.Register(fiber, 96)
	if vm.Current == nil {
		vm.Current = fiber
	}
	if vm.Main == nil {
		vm.Main = fiber
	}
	return fiber
}

// Abort forcibly unwinds fiber (firing defers and closing upvalues exactly
// as an in-loop error unwind would) and marks it FiberError, for a host
// that wants to discard a suspended fiber rather than resume it to
// completion.
func (vm *VM) Abort(fiber *object.Fiber, err error) {
	if fiber.State == object.FiberDone || fiber.State == object.FiberError {
		return
	}
	vm.unwindOnError(fiber, 0, err)
	fiber.State = object.FiberError
	fiber.HasErr = true
	fiber.Err = errValueOf(vm, err)
}

func errValueOf(vm *VM, err error) value.Value {
	if re, ok := err.(*RuntimeError); ok && re.Value != nil {
		return re.Value
	}
	return vm.Intern(err.Error())
}
