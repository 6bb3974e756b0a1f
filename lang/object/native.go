package object

import (
	"fmt"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// NativeFunc is a host-supplied function callable from script. Arity -1
// means variadic. Fn returns a single Value; a native that produces more
// than one result stores them through the VM's multi-return vector
// (vm.SetNativeMultiReturn) and returns Nil, and the call site spreads the
// vector across destination registers like a script RETURN's values.
// Receiver is set for bound methods (e.g. a NativeClass method descriptor
// resolved against a concrete NativeInstance). Upvalues lets a host close
// over Values at registration time the same way a script closure closes
// over locals.
type NativeFunc struct {
	gc.Header
	Name     string
	Arity    int
	Fn       func(args []value.Value) (value.Value, error)
	Receiver value.Value
	Upvalues []value.Value
}

var (
	_ value.Value = (*NativeFunc)(nil)
	_ gc.Object   = (*NativeFunc)(nil)
)

func (f *NativeFunc) Kind() value.Kind { return value.KindNativeFunc }
func (f *NativeFunc) String() string {
	if f.Name == "" {
		return fmt.Sprintf("<native fn %p>", f)
	}
	return fmt.Sprintf("<native fn %s>", f.Name)
}

// Bind returns a copy of f with receiver bound, used when a NativeClass
// method descriptor is resolved against a concrete receiver at GETFIELD
// time.
func (f *NativeFunc) Bind(receiver value.Value) *NativeFunc {
	bound := *f
	bound.Receiver = receiver
	return &bound
}

func (f *NativeFunc) GCHeader() *gc.Header { return &f.Header }

func (f *NativeFunc) Trace(mark func(value.Value)) {
	if f.Receiver != nil {
		mark(f.Receiver)
	}
	for _, v := range f.Upvalues {
		mark(v)
	}
}

func (f *NativeFunc) Free() {
	f.Receiver = nil
	f.Upvalues = nil
	f.Fn = nil
}

// NativeMethodDescriptor describes one method exposed by a NativeClass:
// name, function pointer, and declared user-argument arity.
type NativeMethodDescriptor struct {
	Name  string
	Arity int
	Fn    func(recv value.Value, args []value.Value) (value.Value, error)
}

// NativePropertyDescriptor describes one host-exposed property: name,
// getter, setter, and the read-only flag.
type NativePropertyDescriptor struct {
	Name       string
	Get        func(recv value.Value) (value.Value, error)
	Set        func(recv value.Value, v value.Value) error
	IsReadOnly bool
}

// NativeClass describes a host-defined type: a constructor, ordered method
// and property descriptor lists (preserved in registration order so that
// reflection/debug dump sees a deterministic order), a parent pointer for
// single inheritance of statics, and the size hint for
// the opaque instance-data payload.
type NativeClass struct {
	gc.Header
	Name         string
	Construct    func(args []value.Value) (any, error)
	Methods      []NativeMethodDescriptor
	Properties   []NativePropertyDescriptor
	Statics      map[string]value.Value
	Parent       *NativeClass
	InstanceSize uintptr
}

var (
	_ value.Value = (*NativeClass)(nil)
	_ gc.Object   = (*NativeClass)(nil)
)

// NewNativeClass creates an empty native class descriptor named name.
func NewNativeClass(name string) *NativeClass {
	return &NativeClass{Name: name, Statics: make(map[string]value.Value)}
}

func (c *NativeClass) Kind() value.Kind { return value.KindNativeClass }
func (c *NativeClass) String() string   { return fmt.Sprintf("<native class %s>", c.Name) }

// Method looks up a method descriptor by name, walking to c first and then
// falling back to Parent, matching the script Class lookup shape.
func (c *NativeClass) Method(name string) (NativeMethodDescriptor, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	if c.Parent != nil {
		return c.Parent.Method(name)
	}
	return NativeMethodDescriptor{}, false
}

// Property looks up a property descriptor by name, with the same
// parent-chain fallback as Method.
func (c *NativeClass) Property(name string) (NativePropertyDescriptor, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	if c.Parent != nil {
		return c.Parent.Property(name)
	}
	return NativePropertyDescriptor{}, false
}

// Static looks up a static member, walking the parent chain.
func (c *NativeClass) Static(name string) (value.Value, bool) {
	if v, ok := c.Statics[name]; ok {
		return v, true
	}
	if c.Parent != nil {
		return c.Parent.Static(name)
	}
	return nil, false
}

func (c *NativeClass) GCHeader() *gc.Header { return &c.Header }

func (c *NativeClass) Trace(mark func(value.Value)) {
	for _, v := range c.Statics {
		mark(v)
	}
	if c.Parent != nil {
		mark(c.Parent)
	}
}

func (c *NativeClass) Free() {
	c.Statics = nil
	c.Parent = nil
	c.Construct = nil
	c.Methods = nil
	c.Properties = nil
}

// NativeInstance is a live object of some NativeClass: a back-reference, a
// host-owned opaque data pointer, a finalized flag guarding double-free,
// and a per-instance field map for script-added fields.
type NativeInstance struct {
	gc.Header
	Class     *NativeClass
	Data      any
	Finalized bool
	Fields    map[string]value.Value
}

var (
	_ value.Value = (*NativeInstance)(nil)
	_ gc.Object   = (*NativeInstance)(nil)
)

// NewNativeInstance creates a NativeInstance of class wrapping data.
func NewNativeInstance(class *NativeClass, data any) *NativeInstance {
	return &NativeInstance{Class: class, Data: data, Fields: make(map[string]value.Value)}
}

func (n *NativeInstance) Kind() value.Kind { return value.KindNativeObject }
func (n *NativeInstance) String() string   { return fmt.Sprintf("<native %s at %p>", n.Class.Name, n) }

func (n *NativeInstance) GCHeader() *gc.Header { return &n.Header }

func (n *NativeInstance) Trace(mark func(value.Value)) {
	mark(n.Class)
	for _, v := range n.Fields {
		mark(v)
	}
}

// Free runs the class's __gc magic-method-equivalent finalizer contract:
// it only marks the instance finalized here; actual finalizer invocation
// (which may call back into script) is the collector's responsibility via
// package vm, since it requires a live VM to run a call.
func (n *NativeInstance) Free() {
	n.Finalized = true
	n.Fields = nil
}
