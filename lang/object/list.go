package object

import (
	"fmt"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// List is a dense ordered sequence of values. Len is logical
// length; cap is physical capacity. Slots in [len, cap) are never observable
// from script code.
type List struct {
	gc.Header
	items []value.Value
}

var (
	_ value.Value = (*List)(nil)
	_ gc.Object   = (*List)(nil)
)

// NewList creates an empty list with capacity for at least capHint elements.
func NewList(capHint int) *List {
	if capHint < 0 {
		capHint = 0
	}
	return &List{items: make([]value.Value, 0, capHint)}
}

func (l *List) Kind() value.Kind { return value.KindList }
func (l *List) String() string   { return fmt.Sprintf("list(%p)", l) }

// Len returns the logical length (#list in script syntax).
func (l *List) Len() int { return len(l.items) }

// Get returns the value at i, which must satisfy 0 <= i < Len().
func (l *List) Get(i int) (value.Value, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}

// Set overwrites the value at i, which must satisfy 0 <= i < Len().
func (l *List) Set(i int, v value.Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	return true
}

// Append grows the list by one element, amortising growth the way append()
// does for the backing slice.
func (l *List) Append(v value.Value) {
	l.items = append(l.items, v)
}

// Pop removes and returns the last element, or (nil, false) if empty.
func (l *List) Pop() (value.Value, bool) {
	n := len(l.items)
	if n == 0 {
		return nil, false
	}
	v := l.items[n-1]
	l.items[n-1] = nil
	l.items = l.items[:n-1]
	return v, true
}

// Items exposes the backing slice for iteration. Callers must not retain it
// across a mutation of the list.
func (l *List) Items() []value.Value { return l.items }

func (l *List) GCHeader() *gc.Header { return &l.Header }

func (l *List) Trace(mark func(value.Value)) {
	for _, v := range l.items {
		mark(v)
	}
}

func (l *List) Free() { l.items = nil }
