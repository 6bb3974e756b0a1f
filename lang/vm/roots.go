package vm

import "github.com/emberlang/ember/lang/value"

// markRoots seeds the collector's gray worklist from every GC root: the
// main fiber and whichever fiber is currently running
// (object.Fiber.Trace itself walks that fiber's live stack slots, frames,
// defer closures, and open upvalues), the globals map, and the reference
// table used by the embedding API. A suspended fiber reachable only via a
// resume chain is still rooted transitively: whatever script state resumed
// it (a local, upvalue, or global holding the Fiber value) is itself a
// root already covered below.
func (vm *VM) markRoots(mark func(value.Value)) {
	if vm.Main != nil {
		mark(vm.Main)
	}
	if vm.Current != nil && vm.Current != vm.Main {
		mark(vm.Current)
	}
	for _, v := range vm.Globals {
		if v != nil {
			mark(v)
		}
	}
	for _, v := range vm.References {
		if v != nil {
			mark(v)
		}
	}
	for _, v := range vm.protected {
		if v != nil {
			mark(v)
		}
	}
	for _, v := range vm.nativeMultiRet {
		if v != nil {
			mark(v)
		}
	}
	if vm.registry != nil {
		mark(vm.registry)
	}
}
