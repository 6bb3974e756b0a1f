package vm

import (
	"fmt"
	"os"
	"strings"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// builtinListMember resolves name against a List's built-in member
// surface: "len" as a live property, "push"/"pop" as bound natives
// closing directly over l rather than going through NativeFunc.Bind, since
// there is no NativeClass descriptor table to drive this dispatch from.
func builtinListMember(vm *VM, l *object.List, name string) (value.Value, bool) {
	switch name {
	case "len":
		return value.Int(l.Len()), true
	case "push":
		return &object.NativeFunc{Name: "push", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
			for _, a := range args {
				l.Append(a)
			}
			return value.NilValue, nil
		}}, true
	case "pop":
		return &object.NativeFunc{Name: "pop", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
			v, ok := l.Pop()
			if !ok {
				return nil, fmt.Errorf("pop from an empty list")
			}
			return v, nil
		}}, true
	}
	return nil, false
}

// builtinMapMember resolves name against a Map's built-in member surface.
// "count" mirrors Map.Count directly; note this is distinct
// from the `#map` length operator, which always reports 0.
func builtinMapMember(vm *VM, m *object.Map, name string) (value.Value, bool) {
	switch name {
	case "count":
		return value.Int(m.Count()), true
	case "keys":
		return &object.NativeFunc{Name: "keys", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
			keys := m.Keys()
			l := object.NewList(len(keys))
			vm.Heap.Register(l, 32)
			for _, k := range keys {
				l.Append(k)
			}
			return l, nil
		}}, true
	case "has":
		return &object.NativeFunc{Name: "has", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
			_, ok := m.Get(args[0])
			return value.Bool(ok), nil
		}}, true
	case "delete":
		return &object.NativeFunc{Name: "delete", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
			return value.Bool(m.Delete(args[0])), nil
		}}, true
	}
	return nil, false
}

// builtinStringMember resolves name against a String's built-in member
// surface. upper/lower re-intern their result, since every *String
// reachable from script must come from the pool.
func builtinStringMember(vm *VM, s *object.String, name string) (value.Value, bool) {
	switch name {
	case "len":
		return value.Int(s.Len()), true
	case "upper":
		return &object.NativeFunc{Name: "upper", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
			return vm.Intern(strings.ToUpper(s.Content())), nil
		}}, true
	case "lower":
		return &object.NativeFunc{Name: "lower", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
			return vm.Intern(strings.ToLower(s.Content())), nil
		}}, true
	}
	return nil, false
}

// builtinFiberMember resolves name against a Fiber's built-in member
// surface: "resume" drives the scheduler, "status"
// reports the current FiberState as an interned string.
func builtinFiberMember(vm *VM, f *object.Fiber, name string) (value.Value, bool) {
	switch name {
	case "resume":
		return &object.NativeFunc{Name: "resume", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
			return vm.resumeNative(f, args)
		}}, true
	case "abort":
		return &object.NativeFunc{Name: "abort", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
			vm.Abort(f, newErrorValue(f, firstOrNil(args)))
			return value.NilValue, nil
		}}, true
	case "status":
		return vm.Intern(f.State.String()), true
	}
	return nil, false
}

// resumeNative implements the script-facing resume convention: it hands
// back the fiber's yielded (or final returned) values directly, spread as
// the call's results, and raises a runtime error if the fiber cannot be
// resumed or dies resuming. Whether the fiber yielded or completed is
// observable through its status member.
func (vm *VM) resumeNative(fiber *object.Fiber, args []value.Value) (value.Value, error) {
	results, _, err := vm.Resume(fiber, args)
	if err != nil {
		return nil, err
	}
	vm.SetNativeMultiReturn(results...)
	return value.NilValue, nil
}

// registerBuiltins seeds the VM's globals map with the small ambient
// library every fiber can reach through the Map-to-globals field lookup
// fallback: print/type/tostring/error/pcall, and the Fiber namespace
// (create/yield/current) backing cooperative fibers.
func (vm *VM) registerBuiltins() {
	fiberNS := object.NewMap(2)
	vm.Heap.Register(fiberNS, 32)
	fiberNS.Set(vm.Intern("create"), &object.NativeFunc{Name: "create", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
		cl, ok := args[0].(*object.Closure)
		if !ok {
			return nil, fmt.Errorf("Fiber.create expects a function")
		}
		f := object.NewFiber(cl)
		vm.Heap.Register(f, 96)
		return f, nil
	}})
	fiberNS.Set(vm.Intern("yield"), &object.NativeFunc{Name: "yield", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
		return nil, &yieldSignal{value: firstOrNil(args)}
	}})
	fiberNS.Set(vm.Intern("current"), &object.NativeFunc{Name: "current", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
		if vm.Current == nil {
			return value.NilValue, nil
		}
		return vm.Current, nil
	}})
	vm.Globals["Fiber"] = fiberNS

	vm.Globals["print"] = &object.NativeFunc{Name: "print", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = toConcatString(a)
		}
		line := strings.Join(parts, "\t")
		if vm.Config.PrintHandler != nil {
			vm.Config.PrintHandler(line)
		} else {
			w := vm.Config.Stdout
			if w == nil {
				w = os.Stdout
			}
			fmt.Fprintln(w, line)
		}
		return value.NilValue, nil
	}}
	vm.Globals["type"] = &object.NativeFunc{Name: "type", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
		return vm.Intern(args[0].Kind().String()), nil
	}}
	vm.Globals["tostring"] = &object.NativeFunc{Name: "tostring", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
		return vm.Intern(args[0].String()), nil
	}}
	vm.Globals["error"] = &object.NativeFunc{Name: "error", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
		return nil, newErrorValue(vm.Current, firstOrNil(args))
	}}
	vm.Globals["pcall"] = &object.NativeFunc{Name: "pcall", Arity: -1, Fn: func(args []value.Value) (value.Value, error) {
		return vm.pcallNative(args)
	}}
}

// pcallNative implements the pcall(fn, ...) convention exposed to script:
// a multi-value return whose first element is a success Bool, followed by
// either fn's results or a single error value, spread across the caller's
// destination registers like any other multi-return.
func (vm *VM) pcallNative(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("pcall expects a function as its first argument")
	}
	results, err := vm.ProtectedCall(vm.Current, args[0], args[1:])
	if err != nil {
		vm.SetNativeMultiReturn(value.Bool(false), errValueOf(vm, err))
		return value.NilValue, nil
	}
	out := make([]value.Value, 0, len(results)+1)
	out = append(out, value.Bool(true))
	out = append(out, results...)
	vm.SetNativeMultiReturn(out...)
	return value.NilValue, nil
}
