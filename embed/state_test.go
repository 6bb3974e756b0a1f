package embed_test

import (
	"io"
	"testing"

	"github.com/emberlang/ember/embed"
	"github.com/emberlang/ember/lang/asm"
	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
	"github.com/emberlang/ember/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *embed.State {
	return embed.New(vm.New(vm.Config{Stderr: io.Discard}))
}

func TestPushAndToRoundTrip(t *testing.T) {
	s := newState()
	s.PushNil()
	s.PushBool(true)
	s.PushInt(42)
	s.PushFloat(2.5)
	s.PushString("hi")
	ptr := new(int)
	s.PushLightUserData(ptr)

	require.Equal(t, 6, s.GetTop())
	require.True(t, s.IsNil(1))
	require.True(t, s.IsBool(2))
	require.True(t, s.ToBool(2))
	require.True(t, s.IsNumber(3))
	require.Equal(t, int64(42), s.ToInt(3))
	require.Equal(t, 2.5, s.ToFloat(4))
	require.True(t, s.IsString(5))
	require.Equal(t, "hi", s.ToString(5))
	require.True(t, s.IsLightUserData(6))
	require.Same(t, ptr, s.ToLightUserData(6).(*int))

	// Negative indices address from the top.
	require.Equal(t, "hi", s.ToString(-2))
	require.True(t, s.IsNil(-6))

	// Mismatched conversions fall back to zero values, with X variants
	// reporting the mismatch.
	require.Equal(t, int64(0), s.ToInt(1))
	_, ok := s.ToIntX(1)
	require.False(t, ok)
	_, ok = s.ToFloatX(5)
	require.False(t, ok)

	// ToIntX truncates floats.
	i, ok := s.ToIntX(4)
	require.True(t, ok)
	require.Equal(t, int64(2), i)
}

func TestTypeTags(t *testing.T) {
	s := newState()
	s.PushNil()
	s.PushInt(1)
	s.PushString("x")
	s.NewList(0)
	s.NewMap(0)

	require.Equal(t, embed.TagNil, s.Type(1))
	require.Equal(t, embed.TagInt, s.Type(2))
	require.Equal(t, embed.TagString, s.Type(3))
	require.Equal(t, embed.TagList, s.Type(4))
	require.Equal(t, embed.TagMap, s.Type(5))
	require.Equal(t, embed.TagNone, s.Type(99))
	require.Equal(t, embed.TagNone, s.Type(0))
	require.Equal(t, embed.TagMap, s.Type(embed.RegistryIndex))
}

func TestSetTopAndPop(t *testing.T) {
	s := newState()
	s.PushInt(1)
	s.PushInt(2)
	s.PushInt(3)
	s.Pop(1)
	require.Equal(t, 2, s.GetTop())
	require.Equal(t, int64(2), s.ToInt(-1))

	s.SetTop(4) // grows with nils
	require.Equal(t, 4, s.GetTop())
	require.True(t, s.IsNil(4))

	s.SetTop(-3) // negative counts from the top
	require.Equal(t, 2, s.GetTop())

	s.SetTop(0)
	require.Equal(t, 0, s.GetTop())
}

func TestGlobals(t *testing.T) {
	s := newState()
	s.PushInt(7)
	s.SetGlobal("answer")
	require.Equal(t, 0, s.GetTop())

	s.GetGlobal("answer")
	require.Equal(t, int64(7), s.ToInt(-1))

	s.GetGlobal("missing")
	require.True(t, s.IsNil(-1))
}

func TestCFunctionCall(t *testing.T) {
	s := newState()
	s.PushCFunction("add", func(s *embed.State) int {
		a := s.CheckInt(1)
		b := s.CheckInt(2)
		s.PushInt(a + b)
		return 1
	})
	s.PushInt(2)
	s.PushInt(3)
	require.NoError(t, s.Call(2, 1))
	require.Equal(t, 1, s.GetTop())
	require.Equal(t, int64(5), s.ToInt(-1))
}

func TestCFunctionMultipleResults(t *testing.T) {
	s := newState()
	s.PushCFunction("pair", func(s *embed.State) int {
		s.PushInt(1)
		s.PushInt(2)
		return 2
	})
	// Both results are spread onto the stack, exactly like a script
	// closure returning two values.
	require.NoError(t, s.Call(0, embed.MultRet))
	require.Equal(t, 2, s.GetTop())
	require.Equal(t, int64(1), s.ToInt(-2))
	require.Equal(t, int64(2), s.ToInt(-1))

	// A fixed result count truncates or pads the same spread.
	s.SetTop(0)
	s.PushCFunction("pair", func(s *embed.State) int {
		s.PushInt(1)
		s.PushInt(2)
		return 2
	})
	require.NoError(t, s.Call(0, 3))
	require.Equal(t, 3, s.GetTop())
	require.Equal(t, int64(2), s.ToInt(2))
	require.True(t, s.IsNil(3))
}

func TestCClosureUpvalues(t *testing.T) {
	s := newState()
	s.PushInt(40)
	s.PushCClosure("plus", func(s *embed.State) int {
		base := s.ToInt(embed.UpvalueIndex(1))
		s.PushInt(base + s.CheckInt(1))
		return 1
	}, 1)
	require.Equal(t, 1, s.GetTop()) // the upvalue was consumed

	s.PushInt(2)
	require.NoError(t, s.Call(1, 1))
	require.Equal(t, int64(42), s.ToInt(-1))

	// Outside a native call, upvalue pseudo-indices resolve to nil.
	require.True(t, s.IsNil(embed.UpvalueIndex(1)))
}

func TestCheckFamilyRaisesArgError(t *testing.T) {
	s := newState()
	s.PushCFunction("strict", func(s *embed.State) int {
		s.CheckString(1)
		return 0
	})
	s.PushInt(3)
	err := s.Call(1, 0)
	require.ErrorContains(t, err, "bad argument #1")
	require.ErrorContains(t, err, "string expected")
}

func TestNegativeReturnCountIsError(t *testing.T) {
	s := newState()
	s.PushCFunction("fail", func(s *embed.State) int {
		s.PushString("went wrong")
		return -1
	})
	err := s.Call(0, 0)
	require.ErrorContains(t, err, "went wrong")
}

func TestPCallCapturesErrors(t *testing.T) {
	s := newState()
	s.PushCFunction("boom", func(s *embed.State) int {
		return s.ArgError(1, "always fails")
	})
	status := s.PCall(0, 0, 0)
	require.Equal(t, embed.StatusErrRun, status)
	// The error value replaces the function and arguments.
	require.Equal(t, 1, s.GetTop())
	require.Contains(t, s.ToString(-1), "always fails")
}

func TestPCallErrFunc(t *testing.T) {
	s := newState()
	s.PushCFunction("decorate", func(s *embed.State) int {
		s.PushString("wrapped: " + s.ToString(1))
		return 1
	})
	s.PushCFunction("boom", func(s *embed.State) int {
		return s.ArgError(1, "inner")
	})
	status := s.PCall(0, 0, 1)
	require.Equal(t, embed.StatusErrRun, status)
	require.Contains(t, s.ToString(-1), "wrapped: ")
	require.Contains(t, s.ToString(-1), "inner")
}

func TestPCallSuccess(t *testing.T) {
	s := newState()
	s.PushCFunction("ok", func(s *embed.State) int {
		s.PushInt(9)
		return 1
	})
	status := s.PCall(0, 1, 0)
	require.Equal(t, embed.StatusOK, status)
	require.Equal(t, int64(9), s.ToInt(-1))
	require.NoError(t, s.GetLastError())
}

func TestListAndMapHelpers(t *testing.T) {
	s := newState()
	s.NewList(4)
	l := s.ToValue(-1).(*object.List)
	l.Append(value.Int(1))
	l.Append(value.Int(2))
	s.Len(1)
	require.Equal(t, int64(2), s.ToInt(-1))
	s.Pop(1)

	s.PushString("four")
	s.Len(-1)
	require.Equal(t, int64(4), s.ToInt(-1))
	s.Pop(2)

	s.NewMap(0)
	s.Len(-1) // a map's length operator is always 0
	require.Equal(t, int64(0), s.ToInt(-1))
}

func TestFieldAccess(t *testing.T) {
	s := newState()
	s.NewMap(2)
	s.PushInt(5)
	require.NoError(t, s.SetField(1, "n"))
	require.NoError(t, s.GetField(1, "n"))
	require.Equal(t, int64(5), s.ToInt(-1))
	s.Pop(1)

	// RawGet/RawSet bypass the member surface with explicit keys.
	s.PushString("k")
	s.PushInt(6)
	s.RawSet(1)
	s.PushString("k")
	s.RawGet(1)
	require.Equal(t, int64(6), s.ToInt(-1))
}

func TestRegistryAccess(t *testing.T) {
	s := newState()
	s.PushString("stashed")
	require.NoError(t, s.SetField(embed.RegistryIndex, "key"))
	require.Equal(t, 0, s.GetTop())

	require.NoError(t, s.GetField(embed.RegistryIndex, "key"))
	require.Equal(t, "stashed", s.ToString(-1))
}

func TestReferenceTable(t *testing.T) {
	s := newState()
	s.PushString("held")
	ref := s.Ref()
	require.Equal(t, 0, s.GetTop())

	s.PushRef(ref)
	require.Equal(t, "held", s.ToString(-1))
	s.Pop(1)

	s.Unref(ref)
	s.PushRef(ref)
	require.True(t, s.IsNil(-1))
}

func TestMapNextIteration(t *testing.T) {
	s := newState()
	s.NewMap(4)
	for _, kv := range []struct {
		k string
		v int64
	}{{"a", 1}, {"b", 2}, {"c", 3}} {
		s.PushInt(kv.v)
		require.NoError(t, s.SetField(1, kv.k))
	}

	var keys []string
	var vals []int64
	s.PushNil()
	for s.MapNext(1) {
		keys = append(keys, s.ToString(-2))
		vals = append(vals, s.ToInt(-1))
		s.Pop(1) // pop the value, keep the key for the next call
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
	require.Equal(t, []int64{1, 2, 3}, vals)
	require.Equal(t, 1, s.GetTop()) // only the map remains
}

func TestNewObjectScriptClass(t *testing.T) {
	s := newState()
	cls := object.NewClass("Box")
	s.VM.Heap.Register(cls, 64)

	s.PushValue(cls)
	require.NoError(t, s.NewObject(0))
	require.True(t, s.IsObject(-1))
	inst := s.ToValue(-1).(*object.Instance)
	require.Same(t, cls, inst.Class)
}

func TestRegisterNativeClass(t *testing.T) {
	s := newState()
	cls := object.NewNativeClass("Counter")
	cls.Construct = func(args []value.Value) (any, error) {
		start := int64(0)
		if len(args) > 0 {
			if i, ok := args[0].(value.Int); ok {
				start = int64(i)
			}
		}
		return &start, nil
	}
	cls.Properties = []object.NativePropertyDescriptor{{
		Name: "n",
		Get: func(recv value.Value) (value.Value, error) {
			return value.Int(*recv.(*object.NativeInstance).Data.(*int64)), nil
		},
		IsReadOnly: true,
	}}
	s.RegisterClass("Counter", cls)

	s.GetGlobal("Counter")
	require.True(t, s.IsClass(-1))
	s.PushInt(5)
	require.NoError(t, s.NewObject(1))
	require.True(t, s.IsCInstance(-1))

	inst, ok := s.ToCInstance(-1)
	require.True(t, ok)
	require.Equal(t, int64(5), *inst.Data.(*int64))

	require.NoError(t, s.GetField(-1, "n"))
	require.Equal(t, int64(5), s.ToInt(-1))
}

// addMagicProto assembles __add(self, other) -> self.v + other.
func addMagicProto() *object.Closure {
	add := asm.New("__add").Params(2, false).NeedsReceiver().MaxStack(4)
	kv := add.KString("v")
	add.ABC(bytecode.OpGetField, 2, 0, uint8(kv), false, 1)
	add.ABC(bytecode.OpAdd, 2, 2, 1, false, 1)
	add.ABC(bytecode.OpReturn, 2, 2, 0, false, 1)
	return object.NewScriptClosure(add.Build())
}

func TestMagicMethodSurface(t *testing.T) {
	s := newState()
	cls := object.NewClass("Vec")
	s.VM.Heap.Register(cls, 64)
	addFn := addMagicProto()
	s.VM.Heap.Register(addFn, 48)

	s.PushValue(cls)
	require.False(t, s.HasMagicMethod(1, object.MagicAdd))

	s.PushValue(addFn)
	s.SetMagicMethod(1, object.MagicAdd)
	require.True(t, s.HasMagicMethod(1, object.MagicAdd))

	s.GetMagicMethod(1, object.MagicAdd)
	assert.Same(t, addFn, s.ToValue(-1))
	s.Pop(1)

	inst := object.NewInstance(cls)
	s.VM.Heap.Register(inst, 48)
	inst.SetField("v", value.Int(10))

	s.PushValue(inst)
	s.PushInt(5)
	require.NoError(t, s.CallMagicMethod(2, object.MagicAdd, 1))
	require.Equal(t, int64(15), s.ToInt(-1))
}

func TestCallMagicMethodMissing(t *testing.T) {
	s := newState()
	cls := object.NewClass("Bare")
	s.VM.Heap.Register(cls, 64)
	inst := object.NewInstance(cls)
	s.VM.Heap.Register(inst, 48)

	s.PushValue(inst)
	s.PushInt(1)
	err := s.CallMagicMethod(1, object.MagicAdd, 1)
	require.ErrorContains(t, err, "has no __add magic method")
	// The arguments were consumed either way.
	require.Equal(t, 1, s.GetTop())
}

// yieldingClosure assembles fn(x) { return Fiber.yield(x+1) * 2 }.
func yieldingClosure() *object.Closure {
	fn := asm.New("gen").Params(1, false).MaxStack(8)
	fn.ABC(bytecode.OpAddI, 1, 0, 1, false, 1)
	kFiber := fn.KString("Fiber")
	kYield := fn.KString("yield")
	fn.ABC(bytecode.OpNewMap, 2, 0, 0, false, 1)
	fn.ABC(bytecode.OpGetField, 2, 2, uint8(kFiber), false, 1)
	fn.ABC(bytecode.OpGetField, 2, 2, uint8(kYield), false, 1)
	fn.ABC(bytecode.OpMove, 3, 1, 0, false, 1)
	fn.ABC(bytecode.OpCall, 2, 2, 2, false, 1)
	fn.AsBx(bytecode.OpLoadI, 3, 2, 1)
	fn.ABC(bytecode.OpMul, 2, 2, 3, false, 1)
	fn.ABC(bytecode.OpReturn, 2, 2, 0, false, 1)
	return object.NewScriptClosure(fn.Build())
}

func TestFiberDrivingThroughState(t *testing.T) {
	s := newState()
	cl := yieldingClosure()
	s.VM.Heap.Register(cl, 48)

	s.PushValue(cl)
	require.NoError(t, s.NewFiber())
	require.True(t, s.IsFiber(-1))
	fib, ok := s.ToFiber(-1)
	require.True(t, ok)

	s.PushInt(10)
	status := s.Resume(1)
	require.Equal(t, embed.StatusYield, status)
	require.Equal(t, int64(11), s.ToInt(-1))
	s.Pop(1)

	s.PushValue(fib)
	s.PushInt(7)
	status = s.Resume(1)
	require.Equal(t, embed.StatusOK, status)
	require.Equal(t, int64(14), s.ToInt(-1))
	require.Equal(t, object.FiberDone, fib.State)
}

func TestCallScriptClosureFromState(t *testing.T) {
	double := asm.New("double").Params(1, false).MaxStack(4)
	double.ABC(bytecode.OpAdd, 1, 0, 0, false, 1)
	double.ABC(bytecode.OpReturn, 1, 2, 0, false, 1)

	s := newState()
	cl := object.NewScriptClosure(double.Build())
	s.VM.Heap.Register(cl, 48)

	s.PushValue(cl)
	s.PushInt(21)
	require.NoError(t, s.Call(1, 1))
	require.Equal(t, int64(42), s.ToInt(-1))
}

func TestPushFStringAndLString(t *testing.T) {
	s := newState()
	s.PushFString("%s-%d", "x", 3)
	require.Equal(t, "x-3", s.ToString(-1))
	s.PushLString([]byte{0x68, 0x69})
	require.Equal(t, "hi", s.ToString(-1))
	// Interning holds across the embedding boundary too.
	require.Same(t, s.VM.Intern("hi"), s.ToValue(-1))
}
