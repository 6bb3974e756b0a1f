package embed

import (
	"fmt"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
	"github.com/emberlang/ember/lang/vm"
)

// PushNil, PushBool, PushInt, PushFloat, PushString push the corresponding
// primitive onto the top of the stack.
func (s *State) PushNil()            { s.stack = append(s.stack, value.NilValue) }
func (s *State) PushBool(b bool)     { s.stack = append(s.stack, value.Bool(b)) }
func (s *State) PushInt(i int64)     { s.stack = append(s.stack, value.Int(i)) }
func (s *State) PushFloat(f float64) { s.stack = append(s.stack, value.Float(f)) }

// PushString interns str and pushes the resulting *object.String.
func (s *State) PushString(str string) { s.stack = append(s.stack, s.VM.Intern(str)) }

// PushLString pushes a byte slice as an interned string, for byte content
// that need not be valid UTF-8 or NUL-free.
func (s *State) PushLString(b []byte) { s.PushString(string(b)) }

// PushFString formats like fmt.Sprintf and pushes the result as a string.
func (s *State) PushFString(format string, args ...any) {
	s.PushString(fmt.Sprintf(format, args...))
}

// PushLightUserData pushes an opaque host pointer, compared only by
// identity.
func (s *State) PushLightUserData(ptr any) {
	s.stack = append(s.stack, value.LightUserData{Ptr: ptr})
}

// PushValue pushes an already-constructed runtime Value verbatim, the
// escape hatch for a host that obtained v from GetField, Call's results,
// or anywhere else a *vm.VM hands out a value.Value.
func (s *State) PushValue(v value.Value) {
	if v == nil {
		v = value.NilValue
	}
	s.stack = append(s.stack, v)
}

// PushCClosure pops nups values off the top of the stack to become the new
// closure's upvalues (upvalues are pushed before the closure is created,
// then consumed by it), wraps fn in the native trampoline, and pushes the
// resulting closure. PushCFunction is PushCClosure with nups == 0.
func (s *State) PushCClosure(name string, fn CFunction, nups int) {
	ups := make([]value.Value, nups)
	for i := nups - 1; i >= 0; i-- {
		ups[i] = s.pop1()
	}
	s.stack = append(s.stack, newNativeFunc(s.VM, name, fn, ups))
}

// PushCFunction pushes a native closure with no upvalues.
func (s *State) PushCFunction(name string, fn CFunction) {
	s.PushCClosure(name, fn, 0)
}

// newNativeFunc builds the *object.NativeFunc trampoline for a CFunction:
// it records the executing closure (so UpvalueIndex resolves), hands the
// CFunction a fresh per-call State view seeded with args, and copies its
// pushed results back out -- a single result through the ordinary return
// slot, more than one through the VM's multi-return vector, which the call
// site spreads across destination slots exactly like a script RETURN.
func newNativeFunc(v *vm.VM, name string, fn CFunction, upvalues []value.Value) *object.NativeFunc {
	nf := &object.NativeFunc{Name: name, Arity: -1, Upvalues: upvalues}
	nf.Fn = func(args []value.Value) (value.Value, error) {
		inner := &State{VM: v, Fiber: v.Current, closure: object.NewNativeClosure(nf), stack: append([]value.Value{}, args...)}
		var n int
		var panicErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					if ae, ok := r.(*argError); ok {
						panicErr = ae
						return
					}
					panic(r)
				}
			}()
			n = fn(inner)
		}()
		if panicErr != nil {
			return nil, panicErr
		}
		if n < 0 {
			msg := "native function error"
			if inner.GetTop() > 0 {
				msg = inner.ToString(-1)
			}
			return nil, fmt.Errorf("%s", msg)
		}
		if n == 0 {
			return value.NilValue, nil
		}
		if n == 1 {
			return inner.stack[len(inner.stack)-1], nil
		}
		results := append([]value.Value{}, inner.stack[len(inner.stack)-n:]...)
		v.SetNativeMultiReturn(results...)
		return value.NilValue, nil
	}
	v.Heap.Register(nf, 48)
	return nf
}
