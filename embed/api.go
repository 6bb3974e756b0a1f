package embed

import (
	"fmt"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
	"github.com/emberlang/ember/lang/vm"
)

// GetGlobal pushes the value of the global named name, or Nil if it is
// unset.
func (s *State) GetGlobal(name string) {
	v, ok := s.VM.Globals[name]
	if !ok {
		v = value.NilValue
	}
	s.PushValue(v)
}

// SetGlobal pops the top of the stack and installs it as global name.
func (s *State) SetGlobal(name string) {
	s.VM.Globals[name] = s.pop1()
}

// NewMap pushes a freshly allocated, heap-registered Map with room for at
// least capHint entries.
func (s *State) NewMap(capHint int) {
	m := object.NewMap(capHint)
	s.VM.Heap.Register(m, 32)
	s.PushValue(m)
}

// NewList pushes a freshly allocated, heap-registered List.
func (s *State) NewList(capHint int) {
	l := object.NewList(capHint)
	s.VM.Heap.Register(l, 32)
	s.PushValue(l)
}

// GetField looks up recv.name using the GETFIELD lookup chain
// (member-surface- and property-aware, unlike RawGet) and pushes the
// result.
func (s *State) GetField(idx int, name string) error {
	recv := s.resolve(idx)
	v, err := s.VM.GetField(s.Fiber, recv, name)
	if err != nil {
		return err
	}
	s.PushValue(v)
	return nil
}

// SetField pops the top of the stack and assigns it to recv.name via the
// SETFIELD rules.
func (s *State) SetField(idx int, name string) error {
	recv := s.resolve(idx)
	v := s.pop1()
	return s.VM.SetField(s.Fiber, recv, name, v)
}

// RawGet pops a key and pushes recv[key] read directly from the underlying
// List/Map/Instance storage, bypassing magic methods.
func (s *State) RawGet(idx int) {
	recv := s.resolve(idx)
	key := s.pop1()
	var out value.Value = value.NilValue
	switch r := recv.(type) {
	case *object.Map:
		if v, ok := r.Get(key); ok {
			out = v
		}
	case *object.List:
		if i, ok := key.(value.Int); ok {
			if v, ok := r.Get(int(i)); ok {
				out = v
			}
		}
	case *object.Instance:
		if str, ok := key.(*object.String); ok {
			if v, ok := r.Field(str.Content()); ok {
				out = v
			}
		}
	}
	s.PushValue(out)
}

// RawSet pops a value and a key and writes recv[key] directly, bypassing
// magic methods.
func (s *State) RawSet(idx int) {
	recv := s.resolve(idx)
	v := s.pop1()
	key := s.pop1()
	switch r := recv.(type) {
	case *object.Map:
		r.Set(key, v)
	case *object.List:
		if i, ok := key.(value.Int); ok {
			r.Set(int(i), v)
		}
	case *object.Instance:
		if str, ok := key.(*object.String); ok {
			r.SetField(str.Content(), v)
		}
	}
}

// Len pushes the length of idx: List length, String length, or 0 for a Map
// (matching script's `#` operator, which reports 0 for maps).
func (s *State) Len(idx int) {
	switch r := s.resolve(idx).(type) {
	case *object.List:
		s.PushInt(int64(r.Len()))
	case *object.String:
		s.PushInt(int64(r.Len()))
	default:
		s.PushInt(0)
	}
}

// MapNext implements mapnext-style iteration: with
// the previous key on top of the stack (Nil to start), it pops that key and,
// if another entry follows it in mapIdx's insertion order, pushes the next
// key and value and returns true; otherwise it returns false having pushed
// nothing. The snapshot of keys taken to start an iteration is held until
// the iteration ends (exhausted, or the map stops appearing as the receiver
// of a MapNext call with a matching Nil-started sequence), so concurrent
// mutation of the map mid-iteration is not supported -- the caller must not
// rely on seeing inserts/deletes made during iteration.
func (s *State) MapNext(mapIdx int) bool {
	m, ok := s.resolve(mapIdx).(*object.Map)
	if !ok {
		s.pop1()
		return false
	}
	prev := s.pop1()
	_, starting := prev.(value.Nil)

	keys, cached := s.iterKeys[m]
	if !cached || starting {
		keys = append([]value.Value{}, m.Keys()...)
		if s.iterKeys == nil {
			s.iterKeys = make(map[*object.Map][]value.Value)
		}
		s.iterKeys[m] = keys
	}

	pos := 0
	if !starting {
		pos = len(keys)
		for i, k := range keys {
			if k == prev {
				pos = i + 1
				break
			}
		}
	}
	if pos >= len(keys) {
		delete(s.iterKeys, m)
		return false
	}
	key := keys[pos]
	v, _ := m.Get(key)
	s.PushValue(key)
	s.PushValue(v)
	return true
}

// Call pops a function and its nargs arguments off the top of the stack
// (function below its arguments)
// and pushes nresults results, padding with Nil or discarding extras
// (nresults == MultRet keeps every result). Errors propagate to the caller
// rather than being captured -- use PCall to capture them.
const MultRet = -1

func (s *State) Call(nargs, nresults int) error {
	if len(s.stack) < nargs+1 {
		return fmt.Errorf("stack underflow: need %d values, have %d", nargs+1, len(s.stack))
	}
	funcIdx := len(s.stack) - nargs - 1
	fn := s.stack[funcIdx]
	args := append([]value.Value{}, s.stack[funcIdx+1:]...)
	s.stack = s.stack[:funcIdx]

	results, err := s.VM.Call(s.Fiber, fn, args)
	if err != nil {
		return err
	}
	s.pushResults(results, nresults)
	return nil
}

// PCall is Call's protected counterpart, built on vm.ProtectedCall: on
// success it behaves exactly like Call and returns StatusOK; on
// failure it pops the function and arguments, pushes the single error
// value in their place, and returns StatusErrRun. errfunc, if nonzero,
// names a stack index whose value is called with the error value before it
// is pushed (the usual message-handler convention); 0 disables it.
func (s *State) PCall(nargs, nresults, errfunc int) Status {
	if len(s.stack) < nargs+1 {
		s.stack = append(s.stack, s.VM.Intern("stack underflow"))
		return StatusErrRun
	}
	funcIdx := len(s.stack) - nargs - 1
	fn := s.stack[funcIdx]
	args := append([]value.Value{}, s.stack[funcIdx+1:]...)
	s.stack = s.stack[:funcIdx]

	results, err := s.VM.ProtectedCall(s.Fiber, fn, args)
	if err != nil {
		errVal := s.errValue(err)
		if errfunc != 0 {
			handler := s.resolve(errfunc)
			if hres, herr := s.VM.Call(s.Fiber, handler, []value.Value{errVal}); herr == nil {
				errVal = firstOrNil(hres)
			}
		}
		s.stack = append(s.stack, errVal)
		return StatusErrRun
	}
	s.pushResults(results, nresults)
	return StatusOK
}

func (s *State) errValue(err error) value.Value {
	if re, ok := err.(*vm.RuntimeError); ok && re.Value != nil {
		return re.Value
	}
	return s.VM.Intern(err.Error())
}

func (s *State) pushResults(results []value.Value, nresults int) {
	if nresults == MultRet {
		s.stack = append(s.stack, results...)
		return
	}
	for i := 0; i < nresults; i++ {
		if i < len(results) {
			s.stack = append(s.stack, results[i])
		} else {
			s.stack = append(s.stack, value.NilValue)
		}
	}
}

func firstOrNil(vs []value.Value) value.Value {
	if len(vs) == 0 {
		return value.NilValue
	}
	return vs[0]
}

// HasMagicMethod, GetMagicMethod, SetMagicMethod, CallMagicMethod are the
// magic-method introspection/dispatch surface,
// operating against a Class at idx (Has/Get/Set) or an Instance of one
// (Call, which supplies the instance as the receiver the way a script
// operator dispatch would).
func (s *State) HasMagicMethod(idx int, slot object.MagicSlot) bool {
	cls, ok := classOf(s.resolve(idx))
	return ok && cls.HasMagic(slot)
}

func (s *State) GetMagicMethod(idx int, slot object.MagicSlot) {
	var out value.Value = value.NilValue
	if cls, ok := classOf(s.resolve(idx)); ok {
		out = cls.Magic(slot)
	}
	s.PushValue(out)
}

func (s *State) SetMagicMethod(idx int, slot object.MagicSlot) {
	v := s.pop1()
	if cls, ok := classOf(s.resolve(idx)); ok {
		cls.SetMethod(slot.Name(), v)
	}
}

// CallMagicMethod calls instIdx's class's slot method with instIdx as the
// receiver and nargs arguments popped off the top of the stack, pushing its
// single result.
func (s *State) CallMagicMethod(instIdx int, slot object.MagicSlot, nargs int) error {
	recv := s.resolve(instIdx)
	inst, ok := recv.(*object.Instance)
	if !ok || !inst.Class.HasMagic(slot) {
		s.Pop(nargs)
		return fmt.Errorf("%s has no %s magic method", recv.Kind(), slot.Name())
	}
	args := append([]value.Value{}, s.stack[len(s.stack)-nargs:]...)
	s.stack = s.stack[:len(s.stack)-nargs]
	results, err := s.VM.CallMethod(s.Fiber, inst, inst.Class.Magic(slot), args)
	if err != nil {
		return err
	}
	s.PushValue(firstOrNil(results))
	return nil
}

func classOf(v value.Value) (*object.Class, bool) {
	cls, ok := v.(*object.Class)
	return cls, ok
}

// NewFiber pops a closure off the top of the stack and pushes a new Fiber
// wrapping it in the NEW state, for a host that
// wants to drive cooperative fibers directly rather than through script's
// Fiber namespace.
func (s *State) NewFiber() error {
	cl, ok := s.pop1().(*object.Closure)
	if !ok {
		return fmt.Errorf("NewFiber: top of stack is not a closure")
	}
	f := object.NewFiber(cl)
	s.VM.Heap.Register(f, 96)
	s.PushValue(f)
	return nil
}

// Resume pops nargs resume arguments and the fiber off the top of the stack
// and drives it forward one suspension point, pushing either
// its yielded value (status StatusYield) or its final results (status
// StatusOK); a fiber that errors reports StatusErrRun with the error value
// pushed in place of results.
func (s *State) Resume(nargs int) Status {
	if len(s.stack) < nargs+1 {
		s.Pop(nargs + 1)
		s.stack = append(s.stack, s.VM.Intern("stack underflow"))
		return StatusErrRun
	}
	fiberIdx := len(s.stack) - nargs - 1
	fiber, ok := s.stack[fiberIdx].(*object.Fiber)
	args := append([]value.Value{}, s.stack[fiberIdx+1:]...)
	s.stack = s.stack[:fiberIdx]
	if !ok {
		s.stack = append(s.stack, s.VM.Intern("Resume: not a fiber"))
		return StatusErrRun
	}

	results, yielded, err := s.VM.Resume(fiber, args)
	if err != nil {
		s.stack = append(s.stack, s.errValue(err))
		return StatusErrRun
	}
	s.stack = append(s.stack, results...)
	if yielded {
		return StatusYield
	}
	return StatusOK
}

// Ref installs the top of the stack into the VM's reference table and pops
// it, returning the stable handle.
func (s *State) Ref() int {
	return s.VM.AddReference(s.pop1())
}

// PushRef pushes the value previously installed under ref by Ref, or Nil if
// ref is unknown (e.g. already released by Unref).
func (s *State) PushRef(ref int) {
	v, ok := s.VM.Reference(ref)
	if !ok {
		v = value.NilValue
	}
	s.PushValue(v)
}

// Unref releases ref, allowing its value to be collected once otherwise
// unreachable.
func (s *State) Unref(ref int) { s.VM.RemoveReference(ref) }

// GetLastError returns the most recent error surfaced through the
// configured error handler outside of any protected call, or nil if none
// has occurred yet on this VM.
func (s *State) GetLastError() error { return s.VM.LastError() }
