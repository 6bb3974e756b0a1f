package vm

import "github.com/emberlang/ember/lang/value"

// maybeCollect is called by every opcode handler immediately after it
// allocates (and registers) a new heap object: v is pushed onto the
// protected scratch stack before
// the threshold check, so a collection triggered here cannot reclaim it even
// though it has not yet been written into a register or returned to its
// caller.
func (vm *VM) maybeCollect(v value.Value) {
	if !vm.ShouldCollect() {
		return
	}
	vm.protectTop(v)
	vm.Collect()
	vm.unprotect(1)
}

// protectTop pushes v onto the protected scratch stack, rooting it until the
// matching unprotect.
func (vm *VM) protectTop(v value.Value) {
	vm.protected = append(vm.protected, v)
}

// unprotect pops the n most recently protected values.
func (vm *VM) unprotect(n int) {
	vm.protected = vm.protected[:len(vm.protected)-n]
}
