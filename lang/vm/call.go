package vm

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// pushScriptFrame appends a new CallFrame running closure's prototype,
// binding args into its register window (missing arguments are filled with
// Nil; extra arguments to a non-vararg function are discarded). It grows
// the fiber's stack as needed and never runs any
// bytecode itself -- the caller's dispatch loop picks the new frame up on
// its next iteration.
func (vm *VM) pushScriptFrame(fiber *object.Fiber, closure *object.Closure, args []value.Value, returnTo, expectedResults int) error {
	if len(fiber.Frames) >= vm.maxCallFrames {
		return vm.newError(fiber, "stack overflow")
	}
	p := closure.Proto
	argc := len(args)
	if !p.IsVararg && argc > int(p.NumParams) {
		argc = int(p.NumParams)
	}

	base := fiber.StackTop
	fiber.EnsureCapacity(base + int(p.MaxStackSize))
	window := fiber.Stack[base : base+int(p.MaxStackSize)]
	for i := range window {
		if i < argc {
			window[i] = args[i]
		} else {
			window[i] = value.NilValue
		}
	}
	fiber.StackTop = base + int(p.MaxStackSize)

	fiber.Frames = append(fiber.Frames, object.CallFrame{
		Closure:         closure,
		Base:            base,
		ReturnTo:        returnTo,
		ExpectedResults: expectedResults,
		DeferBase:       fiber.DeferTop(),
	})
	return nil
}

// callNative invokes a native closure inline, pushing and popping a
// receiver-less traceback frame around the call (the calling convention
// makes no distinction between script and native callees from the caller's
// perspective). A *yieldSignal returned by fn is propagated
// to the caller unchanged rather than treated as an error.
func (vm *VM) callNative(fiber *object.Fiber, closure *object.Closure, args []value.Value) ([]value.Value, error) {
	fn := closure.Native
	fiber.Frames = append(fiber.Frames, object.CallFrame{Closure: closure, DeferBase: fiber.DeferTop()})
	defer func() { fiber.Frames = fiber.Frames[:len(fiber.Frames)-1] }()

	callArgs := args
	if fn.Receiver != nil {
		callArgs = make([]value.Value, 0, len(args)+1)
		callArgs = append(callArgs, fn.Receiver)
		callArgs = append(callArgs, args...)
	}
	if fn.Arity >= 0 && len(callArgs) != fn.Arity {
		return nil, vm.newError(fiber, "%s expects %d argument(s), got %d", fn.String(), fn.Arity, len(callArgs))
	}

	vm.hasNativeMultiRet = false
	v, err := fn.Fn(callArgs)
	if err != nil {
		vm.hasNativeMultiRet = false
		return nil, err
	}
	// A native that stored a multi-value vector supersedes its single
	// return slot; the vector is consumed here, once, by its own call.
	if vm.hasNativeMultiRet {
		results := vm.nativeMultiRet
		vm.nativeMultiRet, vm.hasNativeMultiRet = nil, false
		return results, nil
	}
	if v == nil {
		v = value.NilValue
	}
	return []value.Value{v}, nil
}

// Call invokes callee with args against fiber using the ordinary
// (unprotected) calling convention, for the embedding API; errors
// propagate to the caller rather than being captured, unlike
// ProtectedCall.
func (vm *VM) Call(fiber *object.Fiber, callee value.Value, args []value.Value) ([]value.Value, error) {
	return vm.callClosureValue(fiber, callee, args)
}

// callClosureValue resolves callee to a closure (wrapping a bare NativeFunc
// if necessary, the way a builtin member lookup returns one) and calls it
// to completion.
func (vm *VM) callClosureValue(fiber *object.Fiber, callee value.Value, args []value.Value) ([]value.Value, error) {
	switch c := callee.(type) {
	case *object.Closure:
		return vm.callClosure(fiber, c, args)
	case *object.NativeFunc:
		return vm.callClosure(fiber, object.NewNativeClosure(c), args)
	default:
		return nil, vm.newError(fiber, "attempt to call a %s value", callee.Kind())
	}
}

// callClosure invokes closure to completion from Go: inline for a native
// closure, or by pushing a frame and re-entering the dispatch loop bounded
// to this one call for a script closure. Used by every call site that is
// not itself a CALL/CALL_SELF/INVOKE instruction already being processed by
// the running loop (magic methods, NEWOBJ's __init, defers, pcall, and
// Fiber.resume's entry call).
//
// Yielding across this boundary is disallowed: a yield signal raised
// underneath a Go-level call is turned
// into a runtime error instead of being allowed to escape as a suspension,
// since there is no flat dispatch loop above this point left to carry the
// fiber's SUSPENDED bookkeeping.
func (vm *VM) callClosure(fiber *object.Fiber, closure *object.Closure, args []value.Value) ([]value.Value, error) {
	if closure.IsNative() {
		results, err := vm.callNative(fiber, closure, args)
		if _, ok := err.(*yieldSignal); ok {
			return nil, vm.newError(fiber, "attempt to yield across a call boundary that does not support it")
		}
		return results, err
	}

	returnTo := fiber.StackTop
	if err := vm.pushScriptFrame(fiber, closure, args, returnTo, -1); err != nil {
		return nil, err
	}
	exitDepth := len(fiber.Frames) - 1
	results, status, err := vm.execute(fiber, exitDepth)
	if err != nil {
		return nil, err
	}
	if status == execYielded {
		return nil, vm.rejectYield(fiber, exitDepth)
	}
	return results, nil
}

// rejectYield undoes a suspension that reached a Go-level call boundary
// unable to carry it:
// the fiber is put back in the RUNNING state and every frame above
// exitDepth is unwound exactly as an in-loop error would unwind it, so no
// orphaned frame survives the rejection.
func (vm *VM) rejectYield(fiber *object.Fiber, exitDepth int) error {
	fiber.State = object.FiberRunning
	err := vm.newError(fiber, "attempt to yield across a call boundary that does not support it")
	vm.unwindOnError(fiber, exitDepth, err)
	return err
}

// callValueAsMethod calls method against recv, prepending recv as slots[0]
// when method is a plain script closure whose prototype declares it needs a
// receiver. Bound
// native methods already carry their receiver via NativeFunc.Bind and need
// no such prepending.
func (vm *VM) callValueAsMethod(fiber *object.Fiber, recv, method value.Value, args []value.Value) ([]value.Value, error) {
	callArgs := args
	if cl, ok := method.(*object.Closure); ok && !cl.IsNative() && cl.Proto.NeedsReceiver {
		callArgs = make([]value.Value, 0, len(args)+1)
		callArgs = append(callArgs, recv)
		callArgs = append(callArgs, args...)
	}
	return vm.callClosureValue(fiber, method, callArgs)
}

// CallMethod invokes method against recv the way instruction-level dispatch
// would (receiver prepended for a script closure that declares it needs
// one), for the embedding API's callmagicmethod.
func (vm *VM) CallMethod(fiber *object.Fiber, recv, method value.Value, args []value.Value) ([]value.Value, error) {
	return vm.callValueAsMethod(fiber, recv, method, args)
}

// dispatchCall implements CALL/CALL_SELF/INVOKE's callee resolution from
// inside the running dispatch loop: a native callee runs inline and writes
// its results directly into the caller's register window; a script callee
// gets a new frame pushed, to be picked up by the loop's next iteration.
func (vm *VM) dispatchCall(fiber *object.Fiber, callee value.Value, args []value.Value, returnTo, expected int) error {
	var closure *object.Closure
	switch c := callee.(type) {
	case *object.Closure:
		closure = c
	case *object.NativeFunc:
		closure = object.NewNativeClosure(c)
	default:
		return vm.newError(fiber, "attempt to call a %s value", callee.Kind())
	}

	if closure.IsNative() {
		fiber.PendingReturnTo, fiber.PendingExpected = returnTo, expected
		results, err := vm.callNative(fiber, closure, args)
		if err != nil {
			return err
		}
		vm.writeResults(fiber, returnTo, expected, results)
		return nil
	}
	return vm.pushScriptFrame(fiber, closure, args, returnTo, expected)
}

// writeResults copies results into the caller's window starting at
// returnTo, padding with Nil (expected >= 0) or keeping every value and
// advancing the fiber's logical stack top (expected == -1, the "keep all"
// case used to forward a multi-return tail call).
func (vm *VM) writeResults(fiber *object.Fiber, returnTo, expected int, results []value.Value) {
	n := len(results)
	if expected >= 0 {
		for i := 0; i < expected; i++ {
			if i < n {
				fiber.Stack[returnTo+i] = results[i]
			} else {
				fiber.Stack[returnTo+i] = value.NilValue
			}
		}
		return
	}
	for i, v := range results {
		fiber.Stack[returnTo+i] = v
	}
	fiber.StackTop = returnTo + n
}

// runDefers fires, in LIFO order, every closure deferred since base,
// reporting (rather than propagating) any error one of them raises so that
// the remaining defers still run: an error inside a defer closure is
// reported but does not prevent subsequent defers from running.
func (vm *VM) runDefers(fiber *object.Fiber, base int) {
	for _, d := range fiber.PopDefersTo(base) {
		if _, err := vm.callClosure(fiber, d, nil); err != nil {
			vm.reportError(err)
		}
	}
}

// Instantiate exposes NEWOBJ's class instantiation (script or native) to
// the embedding API, so a host can create objects the same
// way a NEWOBJ instruction does.
func (vm *VM) Instantiate(fiber *object.Fiber, classVal value.Value, ctorArgs []value.Value) (value.Value, error) {
	return vm.instantiate(fiber, classVal, ctorArgs)
}

// instantiate implements NEWOBJ for both script and native classes:
// allocate the instance, then run its constructor (__init
// for a script Class, Construct for a NativeClass) with ctorArgs.
func (vm *VM) instantiate(fiber *object.Fiber, classVal value.Value, ctorArgs []value.Value) (value.Value, error) {
	switch cls := classVal.(type) {
	case *object.Class:
		inst := object.NewInstance(cls)
		vm.Heap.Register(inst, 48)
		if cls.HasMagic(object.MagicInit) {
			if _, err := vm.callValueAsMethod(fiber, inst, cls.Magic(object.MagicInit), ctorArgs); err != nil {
				return nil, err
			}
		}
		return inst, nil
	case *object.NativeClass:
		var data any
		if cls.Construct != nil {
			d, err := cls.Construct(ctorArgs)
			if err != nil {
				return nil, err
			}
			data = d
		}
		inst := object.NewNativeInstance(cls, data)
		vm.Heap.Register(inst, 48)
		return inst, nil
	default:
		return nil, vm.newError(fiber, "attempt to instantiate a %s value", classVal.Kind())
	}
}

func firstOrNil(vs []value.Value) value.Value {
	if len(vs) == 0 {
		return value.NilValue
	}
	return vs[0]
}
