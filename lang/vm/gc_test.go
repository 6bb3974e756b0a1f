package vm_test

import (
	"io"
	"testing"

	"github.com/emberlang/ember/lang/asm"
	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
	"github.com/emberlang/ember/lang/vm"
	"github.com/stretchr/testify/require"
)

// TestCollectPreservesRootedState: a full collection leaves
// program-visible state (including interned string identity) unchanged.
func TestCollectPreservesRootedState(t *testing.T) {
	v, _ := newVM()
	keep := v.Intern("keep")
	l := object.NewList(2)
	v.Heap.Register(l, 32)
	l.Append(keep)
	l.Append(value.Int(7))
	v.Globals["l"] = l

	v.Collect()
	v.Collect()

	require.Same(t, keep, v.Intern("keep"))
	require.True(t, v.Strings.Contains("keep"))
	got, ok := l.Get(0)
	require.True(t, ok)
	require.Same(t, value.Value(keep), got)
}

// TestCollectDeinternsDeadStrings: an unrooted string is removed from the
// pool before sweep, so a later intern of the same content re-creates it.
func TestCollectDeinternsDeadStrings(t *testing.T) {
	v, _ := newVM()
	dead := v.Intern("transient")
	require.True(t, v.Strings.Contains("transient"))

	v.Collect()

	require.False(t, v.Strings.Contains("transient"))
	fresh := v.Intern("transient")
	require.NotSame(t, dead, fresh)
}

// TestCollectKeepsReferencedValues: the embedding reference table is a GC
// root; dropping the reference releases the value.
func TestCollectKeepsReferencedValues(t *testing.T) {
	v, _ := newVM()
	s := v.Intern("pinned")
	ref := v.AddReference(s)

	v.Collect()
	require.True(t, v.Strings.Contains("pinned"))

	v.RemoveReference(ref)
	v.Collect()
	require.False(t, v.Strings.Contains("pinned"))
}

// TestCollectKeepsRegistry: the registry map and its contents survive.
func TestCollectKeepsRegistry(t *testing.T) {
	v, _ := newVM()
	reg := v.RegistryTable()
	reg.Set(v.Intern("k"), v.Intern("stashed"))

	v.Collect()
	require.True(t, v.Strings.Contains("stashed"))
	got, ok := reg.Get(v.Intern("k"))
	require.True(t, ok)
	require.Equal(t, "stashed", str(t, got))
}

// TestCollectTracesFiberStacks: values visible only from a suspended
// fiber's stack survive as long as the fiber is reachable, and the fiber
// still resumes correctly after a collection.
func TestCollectTracesFiberStacks(t *testing.T) {
	v, _ := newVM()
	fib := newFiber(t, v, yieldOnceProto())
	v.Globals["fib"] = fib
	_, yielded, err := v.Resume(fib, nil)
	require.NoError(t, err)
	require.True(t, yielded)

	v.Collect()
	require.Equal(t, object.FiberSuspended, fib.State)

	results, _, err := v.Resume(fib, nil)
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.Int(2)}, results)
}

// stressVM builds a VM that forces a collection at every allocation
// point, exercising the protect-before-allocation discipline of every
// allocating opcode handler.
func stressVM() *vm.VM {
	return vm.New(vm.Config{Stderr: io.Discard, GCStress: true})
}

func runStress(t *testing.T, v *vm.VM, p *proto.Prototype, args ...value.Value) []value.Value {
	t.Helper()
	cl := object.NewScriptClosure(p)
	v.Heap.Register(cl, 48)
	results, err := v.Interpret(cl, args)
	require.NoError(t, err)
	return results
}

func TestGCStressCounterClosure(t *testing.T) {
	main := asm.New("main").MaxStack(8)
	mk := main.Nested(counterProtos())
	main.ABx(bytecode.OpClosure, 0, mk, 1)
	main.ABC(bytecode.OpCall, 0, 1, 2, false, 1)
	for i := uint8(1); i <= 3; i++ {
		main.ABC(bytecode.OpMove, i, 0, 0, false, 1)
		main.ABC(bytecode.OpCall, i, 1, 2, false, 1)
	}
	main.ABC(bytecode.OpReturn, 1, 4, 0, false, 1)

	results := runStress(t, stressVM(), main.Build())
	require.Equal(t, []value.Value{value.Int(1), value.Int(2), value.Int(3)}, results)
}

func TestGCStressFiberPingPong(t *testing.T) {
	v := stressVM()
	cl := object.NewScriptClosure(pingPongProto())
	v.Heap.Register(cl, 48)
	fib := object.NewFiber(cl)
	v.Heap.Register(fib, 96)
	v.Globals["fib"] = fib // roots the fiber across the suspension

	results, yielded, err := v.Resume(fib, []value.Value{value.Int(10)})
	require.NoError(t, err)
	require.True(t, yielded)
	require.Equal(t, []value.Value{value.Int(11)}, results)

	results, _, err = v.Resume(fib, []value.Value{value.Int(7)})
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.Int(14)}, results)
}

func TestGCStressStringConcat(t *testing.T) {
	b := asm.New("concat").MaxStack(4)
	kFoo := b.KString("foo")
	kBar := b.KString("bar")
	b.ABx(bytecode.OpLoadK, 0, kFoo, 1)
	b.ABx(bytecode.OpLoadK, 1, kBar, 1)
	b.ABC(bytecode.OpAdd, 0, 0, 1, false, 1)
	b.ABC(bytecode.OpReturn, 0, 2, 0, false, 1)

	v := stressVM()
	results := runStress(t, v, b.Build())
	require.Equal(t, "foobar", str(t, results[0]))
}

func TestGCStressListsAndMaps(t *testing.T) {
	b := asm.New("containers").MaxStack(8)
	kPush := b.KString("push")
	kName := b.KString("name")
	b.ABC(bytecode.OpNewList, 0, 0, 0, false, 1)
	b.ABC(bytecode.OpGetField, 1, 0, uint8(kPush), false, 1)
	b.AsBx(bytecode.OpLoadI, 2, 1, 1)
	b.AsBx(bytecode.OpLoadI, 3, 2, 1)
	b.ABC(bytecode.OpCall, 1, 3, 1, false, 1)
	b.ABC(bytecode.OpNewMap, 1, 0, 0, false, 1)
	b.AsBx(bytecode.OpLoadI, 2, 5, 1)
	b.ABC(bytecode.OpSetField, 1, uint8(kName), 2, false, 1)
	b.ABC(bytecode.OpGetField, 2, 1, uint8(kName), false, 1)
	b.ABC(bytecode.OpGetField, 3, 0, uint8(b.KString("len")), false, 1)
	b.ABC(bytecode.OpReturn, 2, 3, 0, false, 1)

	v := stressVM()
	results := runStress(t, v, b.Build())
	require.Equal(t, []value.Value{value.Int(5), value.Int(2)}, results)
}
