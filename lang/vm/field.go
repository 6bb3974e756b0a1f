package vm

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// getField implements the GETFIELD/INVOKE lookup chain for a receiver of
// any kind. forInvoke selects the statics-before-methods order used for
// method invocation on Classes.
func (vm *VM) getField(fiber *object.Fiber, recv value.Value, name string, forInvoke bool) (value.Value, error) {
	switch r := recv.(type) {
	case *object.List:
		if v, ok := builtinListMember(vm, r, name); ok {
			return v, nil
		}
	case *object.Map:
		if v, ok := builtinMapMember(vm, r, name); ok {
			return v, nil
		}
		// Rule 6: fall back to linear search for a string key equal to name,
		// then to globals (legacy behaviour).
		for _, k := range r.Keys() {
			if ks, ok := k.(*object.String); ok && ks.Content() == name {
				v, _ := r.Get(k)
				return v, nil
			}
		}
		if v, ok := vm.Globals[name]; ok {
			return v, nil
		}
		return value.NilValue, nil
	case *object.String:
		if v, ok := builtinStringMember(vm, r, name); ok {
			return v, nil
		}
	case *object.Fiber:
		if v, ok := builtinFiberMember(vm, r, name); ok {
			return v, nil
		}
	case *object.Instance:
		if v, ok := r.Field(name); ok {
			return v, nil
		}
		if v, ok := r.Class.Method(name); ok {
			return v, nil
		}
		return nil, vm.newError(fiber, "instance of %s has no field or method %q", r.Class.Name, name)
	case *object.Class:
		if forInvoke {
			if v, ok := r.Static(name); ok {
				return v, nil
			}
			if v, ok := r.Method(name); ok {
				return v, nil
			}
		} else {
			if v, ok := r.Method(name); ok {
				return v, nil
			}
			if v, ok := r.Static(name); ok {
				return v, nil
			}
		}
		return nil, vm.newError(fiber, "class %s has no field or method %q", r.Name, name)
	case *object.NativeInstance:
		if v, ok := r.Fields[name]; ok {
			return v, nil
		}
		if prop, ok := r.Class.Property(name); ok {
			return prop.Get(r)
		}
		if m, ok := r.Class.Method(name); ok {
			return boundNativeMethod(r, m), nil
		}
		return nil, vm.newError(fiber, "native instance of %s has no field or method %q", r.Class.Name, name)
	case *object.NativeClass:
		if v, ok := r.Static(name); ok {
			return v, nil
		}
		return nil, vm.newError(fiber, "native class %s has no static %q", r.Name, name)
	}
	return nil, vm.newError(fiber, "attempt to index a %s value", recv.Kind())
}

// setField implements SETFIELD's symmetric rules.
func (vm *VM) setField(fiber *object.Fiber, recv value.Value, name string, v value.Value) error {
	switch r := recv.(type) {
	case *object.Instance:
		r.SetField(name, v)
		return nil
	case *object.Class:
		r.SetMethod(name, v)
		return nil
	case *object.NativeInstance:
		if prop, ok := r.Class.Property(name); ok {
			if prop.IsReadOnly || prop.Set == nil {
				return vm.newError(fiber, "property %q of %s is read-only", name, r.Class.Name)
			}
			return prop.Set(r, v)
		}
		r.Fields[name] = v
		return nil
	case *object.Map:
		r.Set(vm.Intern(name), v)
		return nil
	}
	return vm.newError(fiber, "attempt to set field %q on a %s value", name, recv.Kind())
}

// GetField is the embedding API's field reader: the same
// lookup chain a GETFIELD instruction uses, for a host reading recv.name.
func (vm *VM) GetField(fiber *object.Fiber, recv value.Value, name string) (value.Value, error) {
	return vm.getField(fiber, recv, name, false)
}

// SetField is GetField's symmetric writer for the embedding API.
func (vm *VM) SetField(fiber *object.Fiber, recv value.Value, name string, v value.Value) error {
	return vm.setField(fiber, recv, name, v)
}

// boundNativeMethod wraps a method descriptor resolved against a concrete
// receiver. Receiver is set so the calling convention prepends it (and so
// the GC traces it through the bound value); the wrapper strips it back off
// before handing the descriptor's function its user arguments, and the
// declared arity (a user-argument count) is widened by one to match.
func boundNativeMethod(recv *object.NativeInstance, m object.NativeMethodDescriptor) *object.NativeFunc {
	fn := m.Fn
	arity := m.Arity
	if arity >= 0 {
		arity++
	}
	return &object.NativeFunc{
		Name:     m.Name,
		Arity:    arity,
		Receiver: recv,
		Fn: func(args []value.Value) (value.Value, error) {
			return fn(args[0], args[1:])
		},
	}
}

// getIndex implements GETINDEX: list index must be Int in
// [0,len); map key may be any non-nil hashable value.
func (vm *VM) getIndex(fiber *object.Fiber, recv, key value.Value) (value.Value, error) {
	switch r := recv.(type) {
	case *object.List:
		idx, ok := key.(value.Int)
		if !ok {
			return nil, vm.newError(fiber, "list index must be an integer")
		}
		v, ok := r.Get(int(idx))
		if !ok {
			return nil, vm.newError(fiber, "list index %d out of range [0,%d)", int64(idx), r.Len())
		}
		return v, nil
	case *object.Map:
		if _, isNil := key.(value.Nil); isNil {
			return nil, vm.newError(fiber, "map key must not be nil")
		}
		v, ok := r.Get(key)
		if !ok {
			return value.NilValue, nil
		}
		return v, nil
	}
	return nil, vm.newError(fiber, "attempt to index a %s value", recv.Kind())
}

// setIndex implements SETINDEX with the same constraints as getIndex.
func (vm *VM) setIndex(fiber *object.Fiber, recv, key, v value.Value) error {
	switch r := recv.(type) {
	case *object.List:
		idx, ok := key.(value.Int)
		if !ok {
			return vm.newError(fiber, "list index must be an integer")
		}
		if !r.Set(int(idx), v) {
			return vm.newError(fiber, "list index %d out of range [0,%d)", int64(idx), r.Len())
		}
		return nil
	case *object.Map:
		if _, isNil := key.(value.Nil); isNil {
			return vm.newError(fiber, "map key must not be nil")
		}
		r.Set(key, v)
		return nil
	}
	return vm.newError(fiber, "attempt to index a %s value", recv.Kind())
}
