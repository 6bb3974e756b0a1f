package object

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// Map is an insertion-preserving mapping from Value to Value.
// Nil is not a legal key. It is backed directly by swiss.Map: Go interface
// equality over comparable dynamic types already gives the NaN-distinct,
// pointer-identity semantics the machine needs for float and reference keys,
// so no custom hashing/equality shim is needed on top of the pool's own
// value.Hash/value.Equal.
type Map struct {
	gc.Header
	m     *swiss.Map[value.Value, value.Value]
	order []value.Value
}

var (
	_ value.Value = (*Map)(nil)
	_ gc.Object   = (*Map)(nil)
)

// NewMap creates a map with initial capacity for at least size entries.
func NewMap(size int) *Map {
	if size < 0 {
		size = 0
	}
	return &Map{m: swiss.NewMap[value.Value, value.Value](uint32(size))}
}

func (m *Map) Kind() value.Kind { return value.KindMap }
func (m *Map) String() string   { return fmt.Sprintf("map(%p)", m) }

// Get returns the value for k, or (nil, false) if absent. It is a runtime
// error upstream (not here) to query with a Nil key.
func (m *Map) Get(k value.Value) (value.Value, bool) {
	return m.m.Get(k)
}

// Set installs k -> v, appending k to the insertion order the first time it
// is seen.
func (m *Map) Set(k, v value.Value) {
	if _, existed := m.m.Get(k); !existed {
		m.order = append(m.order, k)
	}
	m.m.Put(k, v)
}

// Delete removes k, if present, fixing up the insertion-order slice.
func (m *Map) Delete(k value.Value) bool {
	if _, ok := m.m.Get(k); !ok {
		return false
	}
	m.m.Delete(k)
	for i, ok := range m.order {
		if ok == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Count returns the number of entries. Note that the language-level `#map`
// operator returns 0 regardless; Count backs iteration and
// testing, not the length operator.
func (m *Map) Count() int { return m.m.Count() }

// Keys returns the keys in insertion order. The caller must not mutate the
// returned slice.
func (m *Map) Keys() []value.Value { return m.order }

func (m *Map) GCHeader() *gc.Header { return &m.Header }

func (m *Map) Trace(mark func(value.Value)) {
	for _, k := range m.order {
		mark(k)
		if v, ok := m.m.Get(k); ok {
			mark(v)
		}
	}
}

func (m *Map) Free() {
	m.m = nil
	m.order = nil
}
