package object

import (
	"fmt"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// Closure is the runtime binding of a Prototype (or a native function) to
// concrete upvalues. A script closure
// borrows an immutable *proto.Prototype and owns an array of *Upvalue
// references; Proto is nil for a native closure wrapping a *NativeFunc
// instead.
type Closure struct {
	gc.Header
	Proto    *proto.Prototype
	Upvalues []*Upvalue
	Native   *NativeFunc
}

var (
	_ value.Value = (*Closure)(nil)
	_ gc.Object   = (*Closure)(nil)
)

// NewScriptClosure wraps p with numUpvalues empty upvalue slots, populated
// by the VM's CLOSURE handler.
func NewScriptClosure(p *proto.Prototype) *Closure {
	return &Closure{Proto: p, Upvalues: make([]*Upvalue, p.NumUpvalues)}
}

// NewNativeClosure wraps a host function.
func NewNativeClosure(fn *NativeFunc) *Closure {
	return &Closure{Native: fn}
}

func (c *Closure) Kind() value.Kind { return value.KindClosure }

func (c *Closure) String() string {
	if c.Proto != nil {
		name := c.Proto.Name
		if name == "" {
			name = "anonymous"
		}
		return fmt.Sprintf("<function %s>", name)
	}
	return c.Native.String()
}

// IsNative reports whether this is a native (host) closure rather than a
// script one.
func (c *Closure) IsNative() bool { return c.Proto == nil }

func (c *Closure) GCHeader() *gc.Header { return &c.Header }

func (c *Closure) Trace(mark func(value.Value)) {
	for _, uv := range c.Upvalues {
		if uv != nil {
			mark(uv)
		}
	}
	if c.Native != nil {
		mark(c.Native)
	}
	// Proto itself is not heap-traced: Prototypes are owned and kept alive by
	// their Chunk / the module cache, not by the GC heap.
}

func (c *Closure) Free() {
	c.Upvalues = nil
	c.Native = nil
}
