package vm

import (
	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/module"
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// execStatus distinguishes how execute returned to its caller.
type execStatus uint8

const (
	execReturned execStatus = iota
	execYielded
)

// yieldSignal is returned as an error by a native function that wants to
// suspend the current fiber at its return site. The dispatch loop
// recognises it at the CALL/INVOKE site and turns it into an execYielded
// exit rather than an ordinary error.
type yieldSignal struct {
	value value.Value
}

func (y *yieldSignal) Error() string { return "yield" }

// execute is the single non-reentrant dispatch loop: it runs
// fiber's frames from the current top down to, but not including, the
// frame at index exitDepth-1 -- i.e. it returns as soon as the frame stack
// would drop to exitDepth frames, handing back whatever RETURN copied out,
// or (nil, execYielded, nil) if the fiber suspended instead.
//
// On any opcode error, execute itself unwinds every frame from the current
// one down to exitDepth, firing defers (LIFO) and closing upvalues for each
// as it goes,
// before returning the error. This means a protected call (pcall.go) never
// needs to replay that unwind itself: by the time execute returns an error,
// every frame it is responsible for is already gone.
func (vm *VM) execute(fiber *object.Fiber, exitDepth int) ([]value.Value, execStatus, error) {
	for {
		if len(fiber.Frames) <= exitDepth {
			return nil, execReturned, nil
		}
		fr := &fiber.Frames[len(fiber.Frames)-1]
		if fr.Closure.IsNative() {
			// A native closure was installed as a fiber's entry point (e.g.
			// Fiber.create(nativeFn)); run it to completion inline and treat it
			// as an immediate return, since the loop otherwise only ever sees
			// script frames.
			results, err := vm.callNative(fiber, fr.Closure, nativeEntryArgs(fiber, fr))
			if _, ok := err.(*yieldSignal); ok {
				return nil, execReturned, vm.newError(fiber, "attempt to yield from a native fiber entry point")
			}
			if err != nil {
				return vm.unwindOnError(fiber, exitDepth, err)
			}
			fiber.Frames = fiber.Frames[:len(fiber.Frames)-1]
			if len(fiber.Frames) == exitDepth {
				return results, execReturned, nil
			}
			continue
		}

		p := fr.Proto()
		if fr.IP >= len(p.Code) {
			return vm.unwindOnError(fiber, exitDepth, vm.newError(fiber, "fell off the end of %s's code", p.Name))
		}
		instr := bytecode.Instruction(p.Code[fr.IP])
		fr.IP++

		if err := vm.step(fiber, fr, p, instr, exitDepth); err != nil {
			if ys, ok := err.(*yieldSignal); ok {
				fiber.State = object.FiberSuspended
				fiber.YieldValue = ys.value
				return nil, execYielded, nil
			}
			return vm.unwindOnError(fiber, exitDepth, err)
		}

		if status, results, done := vm.checkFrameExit(fiber, exitDepth); done {
			return results, status, nil
		}
	}
}

// checkFrameExit reports whether the frame-stack depth has dropped to or
// below exitDepth since the last instruction (a RETURN/RETURN_NDEF handler
// pops its own frame directly rather than signalling through a return
// value, since most instructions don't pop anything).
func (vm *VM) checkFrameExit(fiber *object.Fiber, exitDepth int) (execStatus, []value.Value, bool) {
	if len(fiber.Frames) > exitDepth {
		return execReturned, nil, false
	}
	return execReturned, fiber.TakePendingResults(), true
}

// unwindOnError pops every frame from fiber's current top down to
// exitDepth, firing each one's defers (LIFO) and closing its upvalues,
// then returns err unchanged. This is the single place error unwinding
// runs defers; a protected call only needs to restore bookkeeping this
// function doesn't
// own (stackTop, the open-upvalue list head already reflects the closes
// performed here).
func (vm *VM) unwindOnError(fiber *object.Fiber, exitDepth int, err error) ([]value.Value, execStatus, error) {
	for len(fiber.Frames) > exitDepth {
		fr := fiber.Frames[len(fiber.Frames)-1]
		if fr.Closure != nil && !fr.Closure.IsNative() && fr.Closure.Proto.UseDefer {
			vm.runDefers(fiber, fr.DeferBase)
		}
		fiber.CloseUpvaluesFrom(fr.Base)
		fiber.Frames = fiber.Frames[:len(fiber.Frames)-1]
	}
	return nil, execReturned, err
}

func nativeEntryArgs(fiber *object.Fiber, fr *object.CallFrame) []value.Value {
	return fiber.Stack[fr.Base:fiber.StackTop]
}

// step decodes and executes a single instruction already fetched into
// instr, mutating fr/fiber in place. A non-nil error (including *yieldSignal)
// aborts the current instruction; execute's caller decides how to surface
// it.
func (vm *VM) step(fiber *object.Fiber, fr *object.CallFrame, p *proto.Prototype, instr bytecode.Instruction, exitDepth int) error {
	op, a, b, c, k := instr.DecodeABC()
	switch op {
	case bytecode.OpMove:
		setReg(fiber, fr, a, reg(fiber, fr, b))

	case bytecode.OpLoadK:
		_, ra, bx := instr.DecodeABx()
		v := vm.constValue(p.Constants[bx])
		vm.maybeCollect(v)
		setReg(fiber, fr, ra, v)

	case bytecode.OpLoadBool:
		setReg(fiber, fr, a, value.Bool(b != 0))
		if c != 0 {
			fr.IP++
		}

	case bytecode.OpLoadNil:
		for i := 0; i <= int(b); i++ {
			setReg(fiber, fr, a+uint8(i), value.NilValue)
		}

	case bytecode.OpLoadI:
		_, ra, sbx := instr.DecodeAsBx()
		setReg(fiber, fr, ra, value.Int(sbx))

	case bytecode.OpNewList:
		l := object.NewList(int(b))
		vm.Heap.Register(l, 32)
		vm.maybeCollect(l)
		setReg(fiber, fr, a, l)

	case bytecode.OpNewMap:
		m := object.NewMap(int(b))
		vm.Heap.Register(m, 32)
		vm.maybeCollect(m)
		setReg(fiber, fr, a, m)

	case bytecode.OpGetIndex:
		v, err := vm.getIndex(fiber, reg(fiber, fr, b), reg(fiber, fr, c))
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpSetIndex:
		if err := vm.setIndex(fiber, reg(fiber, fr, a), reg(fiber, fr, b), reg(fiber, fr, c)); err != nil {
			return err
		}

	case bytecode.OpGetField:
		name := constString(p, uint32(c))
		v, err := vm.getField(fiber, reg(fiber, fr, b), name, false)
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpSetField:
		name := constString(p, uint32(b))
		if err := vm.setField(fiber, reg(fiber, fr, a), name, reg(fiber, fr, c)); err != nil {
			return err
		}

	case bytecode.OpNewClass:
		_, ra, bx := instr.DecodeABx()
		name := constString(p, bx)
		cls := object.NewClass(name)
		vm.Heap.Register(cls, 64)
		vm.maybeCollect(cls)
		setReg(fiber, fr, ra, cls)

	case bytecode.OpNewObj:
		ctorArgs := make([]value.Value, int(c))
		for i := range ctorArgs {
			ctorArgs[i] = reg(fiber, fr, b+1+uint8(i))
		}
		v, err := vm.instantiate(fiber, reg(fiber, fr, b), ctorArgs)
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpGetUpval:
		setReg(fiber, fr, a, fr.Closure.Upvalues[b].Get())

	case bytecode.OpSetUpval:
		fr.Closure.Upvalues[b].Set(reg(fiber, fr, a))

	case bytecode.OpClosure:
		_, ra, bx := instr.DecodeABx()
		nested := p.Protos[bx]
		cl := object.NewScriptClosure(nested)
		vm.Heap.Register(cl, 48)
		for i, ud := range nested.Upvalues {
			if ud.IsLocal {
				cl.Upvalues[i] = fiber.FindOrCaptureUpvalue(fr.Base + int(ud.SourceIndex))
			} else {
				cl.Upvalues[i] = fr.Closure.Upvalues[ud.SourceIndex]
			}
		}
		vm.maybeCollect(cl)
		setReg(fiber, fr, ra, cl)

	case bytecode.OpCloseUpvalue:
		fiber.CloseUpvaluesFrom(fr.Base + int(a))

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
		bytecode.OpMod, bytecode.OpIDiv, bytecode.OpPow:
		ch, slot := arithOpFor(op)
		v, err := vm.binaryArith(fiber, ch, slot, reg(fiber, fr, b), reg(fiber, fr, c))
		if err != nil {
			return err
		}
		vm.maybeCollect(v)
		setReg(fiber, fr, a, v)

	case bytecode.OpUnm:
		v, err := vm.unaryOp(fiber, object.MagicUnm, reg(fiber, fr, b), func(x value.Value) (value.Value, error) {
			nv, ok := unm(x)
			if !ok {
				return nil, vm.newError(fiber, "attempt to perform arithmetic on a %s value", x.Kind())
			}
			return nv, nil
		})
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor, bytecode.OpShl, bytecode.OpShr:
		ch, slot := bitwiseOpFor(op)
		v, err := vm.binaryBitwise(fiber, ch, slot, reg(fiber, fr, b), reg(fiber, fr, c))
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpBNot:
		v, err := vm.unaryOp(fiber, object.MagicBnot, reg(fiber, fr, b), func(x value.Value) (value.Value, error) {
			return vm.bnot(fiber, x)
		})
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpJmp:
		_, _, sbx := instr.DecodeAsBx()
		fr.IP += int(sbx)

	case bytecode.OpEq:
		ok, err := vm.equalValues(fiber, reg(fiber, fr, a), reg(fiber, fr, b))
		if err != nil {
			return err
		}
		// A magic __eq may have pushed (and popped) nested frames, possibly
		// reallocating the frame array; re-materialise fr before writing IP.
		fr = topFrame(fiber)
		if ok != (c != 0) {
			fr.IP++
		}

	case bytecode.OpLt, bytecode.OpLe:
		ok, err := vm.compareValues(fiber, op == bytecode.OpLe, reg(fiber, fr, a), reg(fiber, fr, b))
		if err != nil {
			return err
		}
		fr = topFrame(fiber)
		if ok != (c != 0) {
			fr.IP++
		}

	case bytecode.OpTest:
		if value.Truthy(reg(fiber, fr, a)) != (c != 0) {
			fr.IP++
		}

	case bytecode.OpEqK:
		kv := vm.constValue(p.Constants[b])
		ok := value.Equal(reg(fiber, fr, a), kv)
		if ok != k {
			fr.IP++
		}

	case bytecode.OpEqI:
		ok := value.Equal(reg(fiber, fr, a), value.Int(int8(b)))
		if ok != k {
			fr.IP++
		}

	case bytecode.OpLtI, bytecode.OpLeI:
		ok, valid := compare(reg(fiber, fr, a), value.Int(int8(b)), op == bytecode.OpLeI)
		if !valid {
			return vm.newError(fiber, "attempt to compare a %s value with a number", reg(fiber, fr, a).Kind())
		}
		if ok != k {
			fr.IP++
		}

	case bytecode.OpAddI:
		base, ok := reg(fiber, fr, b).(value.Int)
		if !ok {
			return vm.newError(fiber, "attempt to perform arithmetic on a %s value", reg(fiber, fr, b).Kind())
		}
		setReg(fiber, fr, a, value.Int(int64(base)+int64(int8(c))))

	case bytecode.OpCall:
		return vm.execCall(fiber, fr, a, b, c)

	case bytecode.OpCallSelf:
		return vm.execCallSelf(fiber, fr, a, b, c)

	case bytecode.OpInvoke:
		return vm.execInvoke(fiber, fr, p, a, b)

	case bytecode.OpReturn:
		return vm.execReturn(fiber, fr, p, a, b, true, exitDepth)

	case bytecode.OpReturnNDef:
		return vm.execReturn(fiber, fr, p, a, b, false, exitDepth)

	case bytecode.OpImport:
		_, ra, bx := instr.DecodeABx()
		name := constString(p, bx)
		v, err := vm.doImport(fiber, name)
		if err != nil {
			return err
		}
		setReg(fiber, fr, ra, v)

	case bytecode.OpImportFrom:
		moduleName := constString(p, uint32(b))
		symbolName := constString(p, uint32(c))
		v, err := vm.doImportFrom(fiber, moduleName, symbolName)
		if err != nil {
			return err
		}
		setReg(fiber, fr, a, v)

	case bytecode.OpExport:
		name := constString(p, uint32(b))
		if vm.pendingExports != nil {
			vm.pendingExports[name] = reg(fiber, fr, a)
		}

	case bytecode.OpDefer:
		cl, ok := reg(fiber, fr, a).(*object.Closure)
		if !ok {
			return vm.newError(fiber, "defer requires a function value")
		}
		fiber.PushDefer(cl)

	case bytecode.OpForPrep:
		return vm.execForPrep(fiber, fr, instr)

	case bytecode.OpForLoop:
		return vm.execForLoop(fiber, fr, instr)

	case bytecode.OpTForCall:
		return vm.execTForCall(fiber, fr, a, c)

	case bytecode.OpTForLoop:
		_, ra, sbx := instr.DecodeAsBx()
		if _, isNil := reg(fiber, fr, ra+3).(value.Nil); !isNil {
			setReg(fiber, fr, ra+2, reg(fiber, fr, ra+3))
			fr.IP += int(sbx)
		}

	default:
		return vm.newError(fiber, "unimplemented opcode %s", op)
	}
	return nil
}

func arithOpFor(op bytecode.Op) (byte, object.MagicSlot) {
	switch op {
	case bytecode.OpAdd:
		return 'A', object.MagicAdd
	case bytecode.OpSub:
		return 'S', object.MagicSub
	case bytecode.OpMul:
		return 'M', object.MagicMul
	case bytecode.OpDiv:
		return 'D', object.MagicDiv
	case bytecode.OpMod:
		return 'O', object.MagicMod
	case bytecode.OpIDiv:
		return 'I', object.MagicIdiv
	case bytecode.OpPow:
		return 'P', object.MagicPow
	}
	return 0, 0
}

func bitwiseOpFor(op bytecode.Op) (byte, object.MagicSlot) {
	switch op {
	case bytecode.OpBAnd:
		return '&', object.MagicBand
	case bytecode.OpBOr:
		return '|', object.MagicBor
	case bytecode.OpBXor:
		return '^', object.MagicBxor
	case bytecode.OpShl:
		return '<', object.MagicShl
	case bytecode.OpShr:
		return '>', object.MagicShr
	}
	return 0, 0
}

// execCall implements CALL A B C.
func (vm *VM) execCall(fiber *object.Fiber, fr *object.CallFrame, a, b, c uint8) error {
	argBase := fr.Base + int(a) + 1
	argc := int(b) - 1
	if b == 0 {
		argc = fiber.StackTop - argBase
	}
	args := append([]value.Value(nil), fiber.Stack[argBase:argBase+argc]...)
	expected := int(c) - 1
	if c == 0 {
		expected = -1
	}
	returnTo := fr.Base + int(a)
	callee := reg(fiber, fr, a)
	callerDepth := len(fiber.Frames)
	if err := vm.dispatchCall(fiber, callee, args, returnTo, expected); err != nil {
		return err
	}
	if expected >= 0 && len(fiber.Frames) == callerDepth {
		// A native callee already ran inline and wrote results; reset stackTop
		// to this frame's window the way RETURN does for a finite expected
		// count, since dispatchCall's native path does not do so itself. The
		// frame is re-fetched by index: the native call transiently pushed a
		// traceback frame, which may have reallocated the frame array.
		caller := topFrame(fiber)
		fiber.StackTop = caller.Base + int(caller.Closure.Proto.MaxStackSize)
	}
	return nil
}

func (vm *VM) execCallSelf(fiber *object.Fiber, fr *object.CallFrame, a, b, c uint8) error {
	argBase := fr.Base + int(a) + 1
	argc := int(b) - 1
	if b == 0 {
		argc = fiber.StackTop - argBase
	}
	args := append([]value.Value(nil), fiber.Stack[argBase:argBase+argc]...)
	expected := int(c) - 1
	if c == 0 {
		expected = -1
	}
	returnTo := fr.Base + int(a)
	return vm.dispatchCall(fiber, fr.Closure, args, returnTo, expected)
}

// execInvoke implements INVOKE A B C together with the iAx extended operand
// carried on the instruction immediately following it.
func (vm *VM) execInvoke(fiber *object.Fiber, fr *object.CallFrame, p *proto.Prototype, a, b uint8) error {
	if fr.IP >= len(p.Code) {
		return vm.newError(fiber, "INVOKE missing its method-name operand")
	}
	nameInstr := bytecode.Instruction(p.Code[fr.IP])
	fr.IP++
	_, methodIdx := nameInstr.DecodeAx()
	name := constString(p, methodIdx)

	recv := reg(fiber, fr, a)
	argc := int(b) - 1
	argBase := fr.Base + int(a) + 1
	args := append([]value.Value(nil), fiber.Stack[argBase:argBase+argc]...)

	method, err := vm.getField(fiber, recv, name, true)
	if err != nil {
		return err
	}
	returnTo := fr.Base + int(a)
	if err := vm.dispatchInvoke(fiber, recv, method, args, returnTo, -1); err != nil {
		return err
	}
	return nil
}

// dispatchInvoke mirrors dispatchCall but prepends recv to args for a
// script closure that declares NeedsReceiver. expected is
// hardcoded to "keep all" by its caller, execInvoke (the compiler is expected
// to emit an explicit CALL if it actually wants a fixed count; INVOKE is a
// convenience fusion, so we match CALL's semantics with C=0 by default)
// -- except that a host embedding may rely on the caller pre-clearing the
// register window, so keep-all is the conservative choice here too.
func (vm *VM) dispatchInvoke(fiber *object.Fiber, recv, method value.Value, args []value.Value, returnTo, expected int) error {
	switch m := method.(type) {
	case *object.Closure:
		callArgs := args
		if !m.IsNative() && m.Proto.NeedsReceiver {
			callArgs = make([]value.Value, 0, len(args)+1)
			callArgs = append(callArgs, recv)
			callArgs = append(callArgs, args...)
		}
		return vm.dispatchCall(fiber, m, callArgs, returnTo, expected)
	case *object.NativeFunc:
		return vm.dispatchCall(fiber, m, args, returnTo, expected)
	default:
		return vm.newError(fiber, "attempt to call a %s value", method.Kind())
	}
}

// execReturn implements RETURN/RETURN_NDEF.
func (vm *VM) execReturn(fiber *object.Fiber, fr *object.CallFrame, p *proto.Prototype, a, b uint8, fireDefers bool, exitDepth int) error {
	base := fr.Base + int(a)
	n := int(b) - 1
	if b == 0 {
		n = fiber.StackTop - base
	}
	results := append([]value.Value(nil), fiber.Stack[base:base+n]...)

	if fireDefers && p.UseDefer {
		vm.runDefers(fiber, fr.DeferBase)
	}
	fiber.CloseUpvaluesFrom(fr.Base)
	fiber.Frames = fiber.Frames[:len(fiber.Frames)-1]

	if len(fiber.Frames) <= exitDepth {
		fiber.SetPendingResults(results)
		return nil
	}
	caller := &fiber.Frames[len(fiber.Frames)-1]
	vm.writeResults(fiber, fr.ReturnTo, fr.ExpectedResults, results)
	if fr.ExpectedResults >= 0 {
		fiber.StackTop = caller.Base + int(caller.Closure.Proto.MaxStackSize)
	}
	return nil
}

// topFrame re-materialises the current-frame pointer after a nested call
// may have appended frames (reallocating the frame array).
func topFrame(fiber *object.Fiber) *object.CallFrame {
	return &fiber.Frames[len(fiber.Frames)-1]
}

func (vm *VM) execForPrep(fiber *object.Fiber, fr *object.CallFrame, instr bytecode.Instruction) error {
	_, a, sbx := instr.DecodeAsBx()
	init := reg(fiber, fr, a)
	step := reg(fiber, fr, a+2)
	nv, err := vm.arith(fiber, 'S', init, step)
	if err != nil {
		return err
	}
	fr = topFrame(fiber)
	setReg(fiber, fr, a, nv)
	fr.IP += int(sbx)
	return nil
}

func (vm *VM) execForLoop(fiber *object.Fiber, fr *object.CallFrame, instr bytecode.Instruction) error {
	_, a, sbx := instr.DecodeAsBx()
	cur := reg(fiber, fr, a)
	step := reg(fiber, fr, a+2)
	limit := reg(fiber, fr, a+1)
	nv, err := vm.arith(fiber, 'A', cur, step)
	if err != nil {
		return err
	}
	fr = topFrame(fiber)
	setReg(fiber, fr, a, nv)
	if forInRange(nv, limit, step) {
		setReg(fiber, fr, a+3, nv)
		fr.IP += int(sbx)
	}
	return nil
}

func forInRange(cur, limit, step value.Value) bool {
	cf, _ := numericFloat(cur)
	lf, _ := numericFloat(limit)
	sf, _ := numericFloat(step)
	if sf >= 0 {
		return cf <= lf
	}
	return cf >= lf
}

func (vm *VM) execTForCall(fiber *object.Fiber, fr *object.CallFrame, a, c uint8) error {
	fn := reg(fiber, fr, a)
	args := []value.Value{reg(fiber, fr, a+1), reg(fiber, fr, a+2)}
	results, err := vm.callClosureValue(fiber, fn, args)
	if err != nil {
		return err
	}
	for i := 0; i < int(c); i++ {
		var v value.Value = value.NilValue
		if i < len(results) {
			v = results[i]
		}
		setReg(fiber, fr, a+3+uint8(i), v)
	}
	return nil
}

// doImport implements IMPORT: resolve name through the
// module manager, raising a runtime error if the loader produced a
// sentinel failure map, otherwise wrapping the exports into a fresh Map.
func (vm *VM) doImport(fiber *object.Fiber, name string) (value.Value, error) {
	exports := vm.Modules.Resolve(name)
	if msg, failed := module.IsErrorSentinel(exports); failed {
		return nil, vm.newError(fiber, "import %q failed: %s", name, msg)
	}
	m := object.NewMap(len(exports))
	vm.Heap.Register(m, 32)
	for k, v := range exports {
		m.Set(vm.Intern(k), v)
	}
	vm.maybeCollect(m)
	return m, nil
}

// doImportFrom implements IMPORT_FROM.
func (vm *VM) doImportFrom(fiber *object.Fiber, moduleName, symbolName string) (value.Value, error) {
	exports := vm.Modules.Resolve(moduleName)
	if msg, failed := module.IsErrorSentinel(exports); failed {
		return nil, vm.newError(fiber, "import %q failed: %s", moduleName, msg)
	}
	v, ok := exports[symbolName]
	if !ok {
		return nil, vm.newError(fiber, "module %q has no export %q", moduleName, symbolName)
	}
	return v, nil
}
