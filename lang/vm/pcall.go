package vm

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// ProtectedCall calls callee(args...) bounded to the fiber's current
// frame depth and
// reports whatever execute reports, without itself needing to replay any
// unwind bookkeeping -- execute/unwindOnError already fire defers and close
// upvalues for every frame they pop before an error ever reaches here (see
// dispatch.go's execute doc comment). The only state this function owns is
// the stack-top snapshot, since that is not part of the frame stack
// unwindOnError walks.
//
// Yielding out from beneath a protected call is disallowed: the
// protection record would not survive the suspension, so a resume could
// never restore it. The attempt is converted into an ordinary runtime
// error, which pcall then captures like any other.
func (vm *VM) ProtectedCall(fiber *object.Fiber, callee value.Value, args []value.Value) ([]value.Value, error) {
	var closure *object.Closure
	switch c := callee.(type) {
	case *object.Closure:
		closure = c
	case *object.NativeFunc:
		closure = object.NewNativeClosure(c)
	default:
		return nil, vm.newError(fiber, "attempt to call a %s value", callee.Kind())
	}

	if closure.IsNative() {
		return vm.callNative(fiber, closure, args)
	}

	snapshotTop := fiber.StackTop
	exitDepth := len(fiber.Frames)
	if err := vm.pushScriptFrame(fiber, closure, args, snapshotTop, -1); err != nil {
		return nil, err
	}

	results, status, err := vm.execute(fiber, exitDepth)
	if err != nil {
		fiber.StackTop = snapshotTop
		return nil, err
	}
	if status == execYielded {
		err := vm.rejectYield(fiber, exitDepth)
		fiber.StackTop = snapshotTop
		return nil, err
	}
	fiber.StackTop = snapshotTop
	return results, nil
}
