package object

import (
	"fmt"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// Class owns a display name, the script-level method and static tables, and
// the magic-method fast path: a bitmask of which of the 23
// well-known slots are populated plus a direct-indexed vtable, so dispatch
// never needs a name lookup for operators or lifecycle hooks.
type Class struct {
	gc.Header
	Name    string
	Methods map[string]value.Value
	Statics map[string]value.Value

	magicMask uint32
	magic     [numMagicSlots]value.Value
}

var (
	_ value.Value = (*Class)(nil)
	_ gc.Object   = (*Class)(nil)
)

// NewClass creates an empty class named name.
func NewClass(name string) *Class {
	return &Class{
		Name:    name,
		Methods: make(map[string]value.Value),
		Statics: make(map[string]value.Value),
	}
}

func (c *Class) Kind() value.Kind { return value.KindClass }
func (c *Class) String() string   { return fmt.Sprintf("<class %s>", c.Name) }

// SetMethod installs fn under name, additionally populating the magic-method
// vtable when name names one of the 23 well-known slots.
func (c *Class) SetMethod(name string, fn value.Value) {
	c.Methods[name] = fn
	if slot, ok := MagicSlotByName(name); ok {
		c.magic[slot] = fn
		c.magicMask |= 1 << uint(slot)
	}
}

// Method looks up a method by name (methods resolve before statics for
// GETFIELD).
func (c *Class) Method(name string) (value.Value, bool) {
	v, ok := c.Methods[name]
	return v, ok
}

// Static looks up a static member by name.
func (c *Class) Static(name string) (value.Value, bool) {
	v, ok := c.Statics[name]
	return v, ok
}

// HasMagic reports whether slot is populated, consulting the bitmask rather
// than the vtable so the check is branch-cheap on the hot arithmetic path.
func (c *Class) HasMagic(slot MagicSlot) bool {
	return c.magicMask&(1<<uint(slot)) != 0
}

// Magic returns the value installed at slot, or nil if HasMagic is false.
func (c *Class) Magic(slot MagicSlot) value.Value {
	return c.magic[slot]
}

// ResetMethods clears the method and magic tables, used by module hot
// reload to make a live Class pick up a freshly reloaded
// module's redefinitions without changing its identity (existing Instances
// keep their back-reference to the same *Class).
func (c *Class) ResetMethods() {
	c.Methods = make(map[string]value.Value)
	c.magic = [numMagicSlots]value.Value{}
	c.magicMask = 0
}

func (c *Class) GCHeader() *gc.Header { return &c.Header }

func (c *Class) Trace(mark func(value.Value)) {
	for _, v := range c.Methods {
		mark(v)
	}
	for _, v := range c.Statics {
		mark(v)
	}
}

func (c *Class) Free() {
	c.Methods = nil
	c.Statics = nil
	c.magic = [numMagicSlots]value.Value{}
}

// Instance is a live object of some Class: a back-reference plus a field
// map.
type Instance struct {
	gc.Header
	Class  *Class
	Fields map[string]value.Value
}

var (
	_ value.Value = (*Instance)(nil)
	_ gc.Object   = (*Instance)(nil)
)

// NewInstance creates an Instance of class with an empty field map.
func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: make(map[string]value.Value)}
}

func (i *Instance) Kind() value.Kind { return value.KindInstance }
func (i *Instance) String() string   { return fmt.Sprintf("<%s instance at %p>", i.Class.Name, i) }

// Field reads a field by name without falling back to the class's method
// table (that fallback is dispatch logic, handled in package vm).
func (i *Instance) Field(name string) (value.Value, bool) {
	v, ok := i.Fields[name]
	return v, ok
}

// SetField writes a field by name.
func (i *Instance) SetField(name string, v value.Value) {
	i.Fields[name] = v
}

func (i *Instance) GCHeader() *gc.Header { return &i.Header }

func (i *Instance) Trace(mark func(value.Value)) {
	mark(i.Class)
	for _, v := range i.Fields {
		mark(v)
	}
}

func (i *Instance) Free() {
	i.Class = nil
	i.Fields = nil
}
