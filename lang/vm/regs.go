package vm

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// reg/setReg always index through fiber.Stack fresh rather than caching a
// slice across the frame's lifetime: the stack may be reallocated by any
// allocating opcode (a new CALL growing the stack for its callee, for
// instance), and a cached slice header would then point at stale backing
// storage. Rather than re-materialising a cached pointer after every
// allocation, never cache one in the first place.
func reg(fiber *object.Fiber, fr *object.CallFrame, i uint8) value.Value {
	return fiber.Stack[fr.Base+int(i)]
}

func setReg(fiber *object.Fiber, fr *object.CallFrame, i uint8, v value.Value) {
	fiber.Stack[fr.Base+int(i)] = v
}

// constValue materialises a constant-pool entry as a value.Value,
// interning string constants on load.
func (vm *VM) constValue(k proto.Const) value.Value {
	switch k.Kind {
	case proto.ConstNil:
		return value.NilValue
	case proto.ConstBool:
		return value.Bool(k.Bool)
	case proto.ConstInt:
		return value.Int(k.Int)
	case proto.ConstFloat:
		return value.Float(k.Flt)
	case proto.ConstString:
		return vm.Intern(k.Str)
	default:
		return value.NilValue
	}
}

// constString returns the raw string content of a string constant; callers
// use this for field/method names rather than round-tripping through
// value.Value.
func constString(p *proto.Prototype, idx uint32) string {
	return p.Constants[idx].Str
}
