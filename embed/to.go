package embed

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// ToBool, ToInt, ToFloat, ToString read idx without removing it from the
// stack, defaulting to the
// zero value for a mismatched or out-of-range index -- use the Is*/Check*
// family first when the distinction between "false" and "not a bool"
// matters.
func (s *State) ToBool(idx int) bool {
	b, _ := s.resolve(idx).(value.Bool)
	return bool(b)
}

func (s *State) ToInt(idx int) int64 {
	i, _ := s.ToIntX(idx)
	return i
}

// ToIntX is to_intx: int64 truncation of either an Int or a Float, with ok
// reporting whether idx held a number at all.
func (s *State) ToIntX(idx int) (int64, bool) {
	switch v := s.resolve(idx).(type) {
	case value.Int:
		return int64(v), true
	case value.Float:
		return int64(v), true
	}
	return 0, false
}

func (s *State) ToFloat(idx int) float64 {
	f, _ := s.ToFloatX(idx)
	return f
}

// ToFloatX is to_floatx: float64 widening of either an Int or a Float.
func (s *State) ToFloatX(idx int) (float64, bool) {
	switch v := s.resolve(idx).(type) {
	case value.Int:
		return float64(v), true
	case value.Float:
		return float64(v), true
	}
	return 0, false
}

// ToString returns idx's string content if it is a *object.String, or its
// String() rendering otherwise (tostring semantics: stringify any type
// rather than fail).
func (s *State) ToString(idx int) string {
	v := s.resolve(idx)
	if str, ok := v.(*object.String); ok {
		return str.Content()
	}
	return v.String()
}

// ToLightUserData returns idx's opaque host pointer, or nil if idx does not
// hold one.
func (s *State) ToLightUserData(idx int) any {
	if lu, ok := s.resolve(idx).(value.LightUserData); ok {
		return lu.Ptr
	}
	return nil
}

// ToCInstance returns idx's *object.NativeInstance and true, or (nil,
// false) if idx does not hold one.
func (s *State) ToCInstance(idx int) (*object.NativeInstance, bool) {
	inst, ok := s.resolve(idx).(*object.NativeInstance)
	return inst, ok
}

// ToFiber returns idx's *object.Fiber and true, or (nil, false) otherwise.
func (s *State) ToFiber(idx int) (*object.Fiber, bool) {
	f, ok := s.resolve(idx).(*object.Fiber)
	return f, ok
}

// ToValue returns idx's raw runtime Value, the escape hatch back into
// package value/object for a host that needs more than the typed
// accessors expose (e.g. to stash it via AddReference).
func (s *State) ToValue(idx int) value.Value { return s.resolve(idx) }

// IsNil, IsBool, IsNumber, IsString, IsList, IsMap, IsObject, IsClosure,
// IsClass, IsFiber, IsCInstance, IsLightUserData are the is_* type
// predicates over the stack.
func (s *State) IsNil(idx int) bool {
	_, ok := s.resolve(idx).(value.Nil)
	return ok
}

func (s *State) IsBool(idx int) bool {
	_, ok := s.resolve(idx).(value.Bool)
	return ok
}

func (s *State) IsNumber(idx int) bool {
	switch s.resolve(idx).(type) {
	case value.Int, value.Float:
		return true
	}
	return false
}

func (s *State) IsString(idx int) bool {
	_, ok := s.resolve(idx).(*object.String)
	return ok
}

func (s *State) IsList(idx int) bool {
	_, ok := s.resolve(idx).(*object.List)
	return ok
}

func (s *State) IsMap(idx int) bool {
	_, ok := s.resolve(idx).(*object.Map)
	return ok
}

func (s *State) IsObject(idx int) bool {
	_, ok := s.resolve(idx).(*object.Instance)
	return ok
}

func (s *State) IsClosure(idx int) bool {
	switch s.resolve(idx).(type) {
	case *object.Closure, *object.NativeFunc:
		return true
	}
	return false
}

func (s *State) IsClass(idx int) bool {
	switch s.resolve(idx).(type) {
	case *object.Class, *object.NativeClass:
		return true
	}
	return false
}

func (s *State) IsFiber(idx int) bool {
	_, ok := s.resolve(idx).(*object.Fiber)
	return ok
}

func (s *State) IsCInstance(idx int) bool {
	_, ok := s.resolve(idx).(*object.NativeInstance)
	return ok
}

func (s *State) IsLightUserData(idx int) bool {
	_, ok := s.resolve(idx).(value.LightUserData)
	return ok
}

// CheckInt, CheckFloat, CheckString, CheckList, CheckMap raise an ArgError
// (caught by the CFunction trampoline) when idx does not hold the expected
// type, in the luaL_check* style of strict accessor used at the top of
// most CFunction implementations.
func (s *State) CheckInt(idx int) int64 {
	if i, ok := s.ToIntX(idx); ok {
		return i
	}
	s.ArgError(idx, "integer expected")
	return 0
}

func (s *State) CheckFloat(idx int) float64 {
	if f, ok := s.ToFloatX(idx); ok {
		return f
	}
	s.ArgError(idx, "number expected")
	return 0
}

func (s *State) CheckString(idx int) string {
	if s.IsString(idx) {
		return s.ToString(idx)
	}
	s.ArgError(idx, "string expected")
	return ""
}

func (s *State) CheckList(idx int) *object.List {
	if l, ok := s.resolve(idx).(*object.List); ok {
		return l
	}
	s.ArgError(idx, "list expected")
	return nil
}

func (s *State) CheckMap(idx int) *object.Map {
	if m, ok := s.resolve(idx).(*object.Map); ok {
		return m
	}
	s.ArgError(idx, "map expected")
	return nil
}
