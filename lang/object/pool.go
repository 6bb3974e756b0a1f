package object

import (
	"github.com/dolthub/swiss"
	"github.com/emberlang/ember/lang/gc"
)

// StringPool is the interning hash set that guarantees content-equal
// strings share one heap object. It is backed by dolthub/swiss: an
// open-addressed map with transparent lookup-or-insert and no allocation
// on a hit.
type StringPool struct {
	heap    *gc.Heap
	strings *swiss.Map[string, *String]
}

// NewStringPool creates an empty pool backed by heap for GC accounting.
func NewStringPool(heap *gc.Heap) *StringPool {
	return &StringPool{heap: heap, strings: swiss.NewMap[string, *String](256)}
}

// Intern returns the canonical *String for s, allocating and registering a
// new one with the heap only on the first occurrence of that content.
func (p *StringPool) Intern(s string) *String {
	if existing, ok := p.strings.Get(s); ok {
		return existing
	}
	str := &String{s: s, hash: fnv1a(s)}
	p.strings.Put(s, str)
	p.heap.Register(str, uint64(24+len(s)))
	return str
}

// Find returns the interned *String for s without creating one, or nil.
func (p *StringPool) Find(s string) *String {
	if existing, ok := p.strings.Get(s); ok {
		return existing
	}
	return nil
}

// Contains reports whether s is currently interned.
func (p *StringPool) Contains(s string) bool {
	_, ok := p.strings.Get(s)
	return ok
}

// Size returns the number of currently interned strings.
func (p *StringPool) Size() int { return p.strings.Count() }

// RemoveWhite removes every string whose mark bit is clear from the pool.
// It must run before the collector's sweep frees the underlying *String
// objects, so no dangling pool entry can survive.
func (p *StringPool) RemoveWhite() {
	var dead []string
	p.strings.Iter(func(k string, v *String) bool {
		if !v.GCHeader().Marked() {
			dead = append(dead, k)
		}
		return false
	})
	for _, k := range dead {
		p.strings.Delete(k)
	}
}

// Remove evicts str from the pool directly, used by tests and by hosts that
// manage interning outside of a collection cycle.
func (p *StringPool) Remove(str *String) {
	p.strings.Delete(str.s)
}
