package vm

import (
	"math"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// The numeric promotion rule: Int op Int stays Int, except negating
// math.MinInt64 (via UNM or 0-x, both of which overflow an int64 and
// promote to Float); any operand being Float promotes the whole operation
// to Float. Int/Int truncates toward zero and Int%Int is the C-style
// remainder; modulo is integer-only, so a Float operand raises instead of
// promoting. ADDI is a fused Int-register-plus-signed-immediate op and by
// construction never sees a Float operand, so it has no promotion case.

func (vm *VM) arith(fiber *object.Fiber, op byte, a, b value.Value) (value.Value, error) {
	// String concatenation is ADD's special case: if either operand is a
	// string, concatenate.
	if op == 'A' {
		if as, ok := a.(*object.String); ok {
			return vm.Intern(as.Content() + toConcatString(b)), nil
		}
		if bs, ok := b.(*object.String); ok {
			return vm.Intern(toConcatString(a) + bs.Content()), nil
		}
	}

	ai, aIsInt := a.(value.Int)
	bi, bIsInt := b.(value.Int)
	if aIsInt && bIsInt {
		return vm.intArith(fiber, op, int64(ai), int64(bi))
	}

	// Modulo has no float path: both operands must be integers.
	if op == 'O' {
		return nil, vm.newError(fiber, "modulo requires integer operands")
	}

	af, aok := numericFloat(a)
	bf, bok := numericFloat(b)
	if !aok || !bok {
		bad := a
		if aok {
			bad = b
		}
		return nil, vm.newError(fiber, "attempt to perform arithmetic on a %s value", bad.Kind())
	}
	return floatArith(op, af, bf), nil
}

func numericFloat(v value.Value) (float64, bool) {
	switch x := v.(type) {
	case value.Int:
		return float64(x), true
	case value.Float:
		return float64(x), true
	default:
		return 0, false
	}
}

func toConcatString(v value.Value) string {
	if s, ok := v.(*object.String); ok {
		return s.Content()
	}
	return v.String()
}

func (vm *VM) intArith(fiber *object.Fiber, op byte, a, b int64) (value.Value, error) {
	switch op {
	case 'A':
		return value.Int(a + b), nil
	case 'S':
		if a == 0 && b == math.MinInt64 {
			// Negating math.MinInt64 overflows an int64; promote, matching UNM.
			return value.Float(-float64(b)), nil
		}
		return value.Int(a - b), nil
	case 'M':
		return value.Int(a * b), nil
	case 'D':
		if b == 0 {
			return nil, vm.newError(fiber, "attempt to divide by zero")
		}
		// Truncated division: Int/Int stays Int. Go's / truncates toward
		// zero and defines MinInt64/-1 as MinInt64, both as required here.
		return value.Int(a / b), nil
	case 'O': // modulo
		if b == 0 {
			return nil, vm.newError(fiber, "attempt to perform 'n%%0'")
		}
		// C-style remainder; Go defines MinInt64 % -1 as 0.
		return value.Int(a % b), nil
	case 'I': // integer division
		if b == 0 {
			return nil, vm.newError(fiber, "attempt to perform 'n//0'")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return value.Int(q), nil
	case 'P':
		return value.Float(math.Pow(float64(a), float64(b))), nil
	default:
		return nil, vm.newError(fiber, "unsupported arithmetic op")
	}
}

func floatArith(op byte, a, b float64) value.Value {
	switch op {
	case 'A':
		return value.Float(a + b)
	case 'S':
		return value.Float(a - b)
	case 'M':
		return value.Float(a * b)
	case 'D':
		return value.Float(a / b)
	case 'I':
		return value.Float(math.Floor(a / b))
	case 'P':
		return value.Float(math.Pow(a, b))
	default:
		return value.NilValue
	}
}

// unm implements unary minus, including the Int-to-Float promotion when
// negating math.MinInt64.
func unm(v value.Value) (value.Value, bool) {
	switch x := v.(type) {
	case value.Int:
		if int64(x) == math.MinInt64 {
			return value.Float(-float64(int64(x))), true
		}
		return value.Int(-int64(x)), true
	case value.Float:
		return value.Float(-float64(x)), true
	default:
		return nil, false
	}
}

// intBitwise implements BAND/BOR/BXOR/SHL/SHR, which are integer-only.
// Shift amounts outside [0,64) are a runtime error.
func (vm *VM) intBitwise(fiber *object.Fiber, op byte, a, b value.Value) (value.Value, error) {
	ai, aok := a.(value.Int)
	bi, bok := b.(value.Int)
	if !aok || !bok {
		return nil, vm.newError(fiber, "attempt to perform bitwise operation on a non-integer value")
	}
	x, y := int64(ai), int64(bi)
	switch op {
	case '&':
		return value.Int(x & y), nil
	case '|':
		return value.Int(x | y), nil
	case '^':
		return value.Int(x ^ y), nil
	case '<':
		if y < 0 || y >= 64 {
			return nil, vm.newError(fiber, "shift amount out of range [0,64)")
		}
		return value.Int(x << uint(y)), nil
	case '>':
		if y < 0 || y >= 64 {
			return nil, vm.newError(fiber, "shift amount out of range [0,64)")
		}
		return value.Int(int64(uint64(x) >> uint(y))), nil
	default:
		return nil, vm.newError(fiber, "unsupported bitwise op")
	}
}

func (vm *VM) bnot(fiber *object.Fiber, v value.Value) (value.Value, error) {
	i, ok := v.(value.Int)
	if !ok {
		return nil, vm.newError(fiber, "attempt to perform bitwise operation on a non-integer value")
	}
	return value.Int(^int64(i)), nil
}

// compare implements LT/LE with Int/Float promotion identical to arith's.
func compare(a, b value.Value, le bool) (bool, bool) {
	if as, ok := a.(*object.String); ok {
		if bs, ok := b.(*object.String); ok {
			if le {
				return as.Content() <= bs.Content(), true
			}
			return as.Content() < bs.Content(), true
		}
		return false, false
	}
	af, aok := numericFloat(a)
	bf, bok := numericFloat(b)
	if !aok || !bok {
		return false, false
	}
	if le {
		return af <= bf, true
	}
	return af < bf, true
}
