// Package gc implements the runtime's tracing mark-sweep garbage
// collector: an explicit gray worklist, string-pool de-interning before
// sweep, and a survived-bytes growth heuristic for the next threshold. It
// is non-moving, which is what lets the interpreter cache raw Go pointers
// into constant pools and register windows across instructions.
//
// Objects register themselves on allocation, the collector walks an
// intrusive singly-linked list for sweep, and a gray worklist (a plain
// slice used as a stack) drives marking.
package gc

import "github.com/emberlang/ember/lang/value"

// Header is embedded by value in every heap-allocated object in package
// object. It carries the intrusive heap-list link and the single mark bit.
type Header struct {
	next   Object
	marked bool
}

// Marked reports whether the object carrying this header survived the last
// mark phase.
func (h *Header) Marked() bool { return h.marked }

// Object is implemented by every heap-allocated value kind. Trace calls
// mark for every value.Value directly reachable from this object (mark
// itself ignores anything that isn't heap-backed, so callees need not
// filter primitives out).
type Object interface {
	GCHeader() *Header
	Trace(mark func(value.Value))
	// Free releases any non-GC-managed resources (e.g. a NativeInstance's
	// finalizer) and is called once, during sweep, for every unmarked object.
	Free()
}

// Heap owns the intrusive list of every live (or not-yet-swept) heap object
// and the byte-accounting used to decide when to collect.
type Heap struct {
	head      Object
	count     int
	allocated uint64
	threshold uint64

	growthFactor float64
	minThreshold uint64
}

// NewHeap creates a heap whose first collection triggers once roughly
// initialThreshold bytes have been allocated.
func NewHeap(initialThreshold uint64, growthFactor float64) *Heap {
	if growthFactor <= 1 {
		growthFactor = 2
	}
	if initialThreshold == 0 {
		initialThreshold = 1 << 20
	}
	return &Heap{threshold: initialThreshold, minThreshold: initialThreshold, growthFactor: growthFactor}
}

// Register links a freshly allocated object into the heap's intrusive list
// and accounts for its approximate size. Every constructor in package
// object must call this exactly once.
func (h *Heap) Register(o Object, approxSize uint64) {
	hdr := o.GCHeader()
	hdr.next = h.head
	h.head = o
	h.count++
	h.allocated += approxSize
}

// ShouldCollect reports whether the allocation total has crossed the
// current threshold.
func (h *Heap) ShouldCollect() bool { return h.allocated > h.threshold }

// Allocated returns the running total of bytes accounted for via Register
// since the last collection reset.
func (h *Heap) Allocated() uint64 { return h.allocated }

// Count returns the number of live objects currently linked into the heap
// (valid only between collections; sweep updates it).
func (h *Heap) Count() int { return h.count }
