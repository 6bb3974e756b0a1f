package vm

import (
	"fmt"
	"io"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/emberlang/ember/lang/object"
)

// DumpStack writes fiber's live register window ([stack, stackTop)) to w,
// one slot per line, innermost frame first. A debug-only aid with no
// effect on execution; w is typically vm.Config.Stderr.
func (vm *VM) DumpStack(w io.Writer, fiber *object.Fiber) {
	fmt.Fprintf(w, "fiber %p: %d frame(s), stackTop=%d\n", fiber, len(fiber.Frames), fiber.StackTop)
	for i := len(fiber.Frames) - 1; i >= 0; i-- {
		fr := fiber.Frames[i]
		name := "?"
		if fr.Closure != nil && !fr.Closure.IsNative() {
			name = fr.Closure.Proto.Name
		} else if fr.Closure != nil {
			name = fr.Closure.Native.Name
		}
		fmt.Fprintf(w, "  #%d %s base=%d\n", i, name, fr.Base)
	}
	for i := 0; i < fiber.StackTop; i++ {
		fmt.Fprintf(w, "    [%d] %s\n", i, fiber.Stack[i].String())
	}
}

// DumpGlobals writes every global name and its current value to w in
// sorted order, so two runs of the same program produce byte-identical
// output. Grounded the same
// way as DumpStack.
func (vm *VM) DumpGlobals(w io.Writer) {
	names := maps.Keys(vm.Globals)
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s = %s\n", name, vm.Globals[name].String())
	}
}
