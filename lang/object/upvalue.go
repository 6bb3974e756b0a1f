package object

import (
	"fmt"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// Upvalue is the indirection cell a closure uses to reference a variable
// from an outer frame. While open, it points at a live slot in some
// fiber's value stack via a stack-relative offset (never a raw pointer,
// since the stack may be reallocated); once closed, the value is copied
// into Closed and the Upvalue no longer depends on the fiber.
type Upvalue struct {
	gc.Header

	open   bool
	stack  *[]value.Value
	offset int

	closed value.Value

	// next links open upvalues in a fiber's open list, kept sorted by
	// descending stack offset.
	next *Upvalue
}

var (
	_ value.Value = (*Upvalue)(nil)
	_ gc.Object   = (*Upvalue)(nil)
)

// NewOpenUpvalue creates an upvalue pointing at offset within stack.
func NewOpenUpvalue(stack *[]value.Value, offset int) *Upvalue {
	return &Upvalue{open: true, stack: stack, offset: offset}
}

func (u *Upvalue) Kind() value.Kind { return value.KindUpvalue }
func (u *Upvalue) String() string   { return fmt.Sprintf("<upvalue %p>", u) }

// IsOpen reports whether this upvalue still points into a live fiber stack.
func (u *Upvalue) IsOpen() bool { return u.open }

// Offset returns the stack-relative offset this upvalue targets while open;
// only meaningful when IsOpen is true. Used to keep the open list sorted
// and to relocate on stack growth.
func (u *Upvalue) Offset() int { return u.offset }

// SetOffset relocates an open upvalue after its backing stack has been
// reallocated or shifted; every reallocation path must fix every open
// upvalue's offset.
func (u *Upvalue) SetOffset(offset int) { u.offset = offset }

// Get reads the current value: from the live stack slot while open, or from
// closed storage once closed.
func (u *Upvalue) Get() value.Value {
	if u.open {
		return (*u.stack)[u.offset]
	}
	return u.closed
}

// Set writes the current value, symmetric with Get.
func (u *Upvalue) Set(v value.Value) {
	if u.open {
		(*u.stack)[u.offset] = v
		return
	}
	u.closed = v
}

// Close copies the current stack value into closed storage and severs the
// dependency on the fiber's stack.
func (u *Upvalue) Close() {
	if !u.open {
		return
	}
	u.closed = (*u.stack)[u.offset]
	u.open = false
	u.stack = nil
	u.next = nil
}

// Next returns the next upvalue in the fiber's open list.
func (u *Upvalue) Next() *Upvalue { return u.next }

// SetNext links u to next in the fiber's open list.
func (u *Upvalue) SetNext(next *Upvalue) { u.next = next }

func (u *Upvalue) GCHeader() *gc.Header { return &u.Header }

func (u *Upvalue) Trace(mark func(value.Value)) {
	if !u.open {
		mark(u.closed)
	}
	// While open the target slot is itself a stack root, already marked by
	// the fiber's own Trace; marking it again here would be redundant but
	// harmless. We skip it since the fiber owns that responsibility.
}

func (u *Upvalue) Free() {
	u.stack = nil
	u.closed = nil
	u.next = nil
}
