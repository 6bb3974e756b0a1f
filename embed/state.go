// Package embed implements the host embedding API: a stack-based ABI
// (positive/negative/pseudo indices, push/to/is/check conventions, a
// trampoline bridging C-style native callbacks into the machine) layered
// on top of package vm's dispatch loop and protected-call mechanism. The
// shape follows the classic Lua auxiliary-API conventions, rendered as a
// State method set with error returns instead of a function table with
// negative-int/longjmp status signalling.
package embed

import (
	"fmt"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
	"github.com/emberlang/ember/lang/vm"
)

// Status is the coarse outcome code returned by Call/PCall/Resume.
type Status int

const (
	StatusOK Status = iota
	StatusYield
	StatusErrRun
	StatusErrSyntax
	StatusErrCompile
	StatusErrMem
	StatusErrErr
	StatusErrFile
)

// Tag mirrors the Value discriminant, exposed so a host can branch
// on Type(idx) without importing package value directly.
type Tag int

const TagNone Tag = -1

const (
	TagNil Tag = iota
	TagBool
	TagInt
	TagFloat
	TagString
	TagList
	TagMap
	TagObject
	TagClosure
	TagClass
	TagUpvalue
	TagFiber
	TagCInstance
	TagLightUserData
)

var kindToTag = map[value.Kind]Tag{
	value.KindNil:           TagNil,
	value.KindBool:          TagBool,
	value.KindInt:           TagInt,
	value.KindFloat:         TagFloat,
	value.KindString:        TagString,
	value.KindList:          TagList,
	value.KindMap:           TagMap,
	value.KindInstance:      TagObject,
	value.KindClosure:       TagClosure,
	value.KindNativeFunc:    TagClosure,
	value.KindClass:         TagClass,
	value.KindNativeClass:   TagClass,
	value.KindUpvalue:       TagUpvalue,
	value.KindFiber:         TagFiber,
	value.KindNativeObject:  TagCInstance,
	value.KindLightUserData: TagLightUserData,
}

// RegistryIndex and UpvalueIndex are the two pseudo-index families: the
// process-wide registry map, and the upvalues of the currently executing
// native closure.
const RegistryIndex = -1000000

// UpvalueIndex returns the pseudo-index addressing the i-th upvalue (1
// based) of the currently executing native closure.
func UpvalueIndex(i int) int { return RegistryIndex - i }

// CFunction is the embedding ABI's native function signature: it
// reads arguments off s via positive indices, pushes results onto s, and
// returns how many values it pushed (a negative count signals an error,
// whose message it must have pushed onto s first).
type CFunction func(s *State) int

// State is a per-call view onto the embedding stack: either a root handle
// a host holds across calls (created by New), or the transient view a
// CFunction trampoline hands to native code for the duration of one call.
type State struct {
	VM    *vm.VM
	Fiber *object.Fiber

	// closure is the native closure currently executing through this State,
	// used to resolve UpvalueIndex; nil on a host-held root State.
	closure *object.Closure

	stack []value.Value

	iterKeys map[*object.Map][]value.Value
}

// New creates a root State bound to a fresh host-driven fiber, for a host
// to push globals/args and drive Call before any script fiber exists.
func New(v *vm.VM) *State {
	return &State{VM: v, Fiber: v.NewHostFiber()}
}

// argError is panicked by the Check* family and recovered by the CFunction
// trampoline (PushCFunction), converting it into a VM error before
// propagation: any exception-like escape from inside a native function is
// converted into an ordinary VM error.
type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

// ArgError raises an argument-checking failure for argument i, unwinding
// out of the current CFunction via panic/recover where a C API would
// longjmp.
func (s *State) ArgError(i int, extra string) int {
	panic(&argError{msg: fmt.Sprintf("bad argument #%d (%s)", i, extra)})
}

// absIndex converts i (positive, or negative counting from the top) to a
// zero-based position in s.stack, reporting false for 0, for a
// pseudo-index, or for a position outside the stack.
func (s *State) absIndex(i int) (int, bool) {
	if i <= RegistryIndex {
		return 0, false
	}
	var idx int
	if i > 0 {
		idx = i - 1
	} else if i < 0 {
		idx = len(s.stack) + i
	} else {
		return 0, false
	}
	if idx < 0 || idx >= len(s.stack) {
		return 0, false
	}
	return idx, true
}

func (s *State) resolve(i int) value.Value {
	if i == RegistryIndex {
		return s.VM.RegistryTable()
	}
	if i < RegistryIndex {
		n := RegistryIndex - i
		if s.closure == nil || s.closure.Native == nil {
			return value.NilValue
		}
		ups := s.closure.Native.Upvalues
		if n < 1 || n > len(ups) {
			return value.NilValue
		}
		return ups[n-1]
	}
	idx, ok := s.absIndex(i)
	if !ok {
		return value.NilValue
	}
	return s.stack[idx]
}

// GetTop returns the number of values currently on the stack.
func (s *State) GetTop() int { return len(s.stack) }

// SetTop grows or truncates the stack to n elements, padding growth with
// Nil ("pop multiple values" is SetTop(GetTop()-n)).
func (s *State) SetTop(n int) {
	if n < 0 {
		n = len(s.stack) + n + 1
	}
	if n < 0 {
		n = 0
	}
	if n <= len(s.stack) {
		s.stack = s.stack[:n]
		return
	}
	for len(s.stack) < n {
		s.stack = append(s.stack, value.NilValue)
	}
}

// Pop removes n values from the top of the stack.
func (s *State) Pop(n int) { s.SetTop(len(s.stack) - n) }

// pop1 removes and returns the top value, for helpers that consume exactly
// one argument off the stack (SetGlobal, SetField, RawSet).
func (s *State) pop1() value.Value {
	if len(s.stack) == 0 {
		return value.NilValue
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// Type reports idx's Tag, or TagNone if idx is out of range.
func (s *State) Type(idx int) Tag {
	if idx == RegistryIndex || idx < RegistryIndex {
		v := s.resolve(idx)
		if v == nil {
			return TagNone
		}
		return kindToTag[v.Kind()]
	}
	if _, ok := s.absIndex(idx); !ok {
		return TagNone
	}
	return kindToTag[s.stack[mustIdx(s, idx)].Kind()]
}

func mustIdx(s *State, i int) int {
	idx, _ := s.absIndex(i)
	return idx
}
