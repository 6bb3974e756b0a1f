package vm

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// tryMagicBinary dispatches a's (then b's) magic slot against the other
// operand when the operand is an Instance whose class populates it:
// operator overloading dispatches to the left operand's magic method,
// falling back to the right operand's. handled is
// false when neither operand is an overloading Instance, in which case the
// caller should fall through to the built-in numeric implementation.
func (vm *VM) tryMagicBinary(fiber *object.Fiber, slot object.MagicSlot, a, b value.Value) (v value.Value, handled bool, err error) {
	if ai, ok := a.(*object.Instance); ok && ai.Class.HasMagic(slot) {
		res, err := vm.callValueAsMethod(fiber, ai, ai.Class.Magic(slot), []value.Value{b})
		return firstOrNil(res), true, err
	}
	if bi, ok := b.(*object.Instance); ok && bi.Class.HasMagic(slot) {
		res, err := vm.callValueAsMethod(fiber, bi, bi.Class.Magic(slot), []value.Value{a})
		return firstOrNil(res), true, err
	}
	return nil, false, nil
}

// binaryArith dispatches ADD/SUB/MUL/DIV/MOD/IDIV/POW: magic method first,
// built-in numeric/string arithmetic otherwise.
func (vm *VM) binaryArith(fiber *object.Fiber, opChar byte, slot object.MagicSlot, a, b value.Value) (value.Value, error) {
	if v, handled, err := vm.tryMagicBinary(fiber, slot, a, b); handled {
		return v, err
	}
	return vm.arith(fiber, opChar, a, b)
}

// binaryBitwise is binaryArith's counterpart for BAND/BOR/BXOR/SHL/SHR.
func (vm *VM) binaryBitwise(fiber *object.Fiber, opChar byte, slot object.MagicSlot, a, b value.Value) (value.Value, error) {
	if v, handled, err := vm.tryMagicBinary(fiber, slot, a, b); handled {
		return v, err
	}
	return vm.intBitwise(fiber, opChar, a, b)
}

// unaryOp dispatches UNM/BNOT: magic method on the single operand's class
// when present, the built-in implementation otherwise.
func (vm *VM) unaryOp(fiber *object.Fiber, slot object.MagicSlot, v value.Value, fallback func(value.Value) (value.Value, error)) (value.Value, error) {
	if inst, ok := v.(*object.Instance); ok && inst.Class.HasMagic(slot) {
		res, err := vm.callValueAsMethod(fiber, inst, inst.Class.Magic(slot), nil)
		return firstOrNil(res), err
	}
	return fallback(v)
}

// equalValues dispatches EQ/EQK: __eq on either operand's class when
// present, structural/identity equality otherwise. __eq is only consulted
// when at least one operand is an Instance; comparisons
// between values of other kinds never invoke script code.
func (vm *VM) equalValues(fiber *object.Fiber, a, b value.Value) (bool, error) {
	if v, handled, err := vm.tryMagicBinary(fiber, object.MagicEq, a, b); handled {
		if err != nil {
			return false, err
		}
		return value.Truthy(v), nil
	}
	return value.Equal(a, b), nil
}

// compareValues dispatches LT/LE/LTI/LEI: __lt/__le on either operand's
// class when present, the built-in ordering otherwise.
func (vm *VM) compareValues(fiber *object.Fiber, le bool, a, b value.Value) (bool, error) {
	slot := object.MagicLt
	if le {
		slot = object.MagicLe
	}
	if v, handled, err := vm.tryMagicBinary(fiber, slot, a, b); handled {
		if err != nil {
			return false, err
		}
		return value.Truthy(v), nil
	}
	ok, valid := compare(a, b, le)
	if !valid {
		return false, vm.newError(fiber, "attempt to compare %s with %s", a.Kind(), b.Kind())
	}
	return ok, nil
}
