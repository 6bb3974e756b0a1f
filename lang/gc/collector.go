package gc

import "github.com/emberlang/ember/lang/value"

// StringPool is the subset of object.StringPool the collector needs: a
// hook to de-intern strings whose mark bit is clear before they are
// swept.
type StringPool interface {
	RemoveWhite()
}

// Collector drives one mark-sweep cycle over a Heap. It holds the gray
// worklist as a reusable slice to avoid reallocating it every collection.
type Collector struct {
	heap *Heap
	gray []Object

	// marked records every object whose mark bit this cycle set, so the bits
	// can all be cleared at the end of the cycle. Sweep only visits objects
	// linked into the heap list; an object reachable through marking but
	// never registered there (a captured upvalue, a bound method wrapper)
	// would otherwise keep a stale mark bit and be skipped, with its
	// referents left untraced, on every later cycle.
	marked []Object

	Marked int
	Freed  int
}

// NewCollector creates a collector bound to heap.
func NewCollector(heap *Heap) *Collector {
	return &Collector{heap: heap}
}

// Mark marks v's backing heap object (if any) gray and pushes it onto the
// worklist; it is a no-op for inline primitives and already-marked objects.
// This is the function roots and Trace implementations call for each value
// they expose.
func (c *Collector) Mark(v value.Value) {
	o, ok := v.(Object)
	if !ok || o == nil {
		return
	}
	hdr := o.GCHeader()
	if hdr.marked {
		return
	}
	hdr.marked = true
	c.gray = append(c.gray, o)
	c.marked = append(c.marked, o)
}

// MarkObject is Mark's counterpart for callers that already hold a concrete
// Object (e.g. a CallFrame's closure, or an open upvalue not itself exposed
// as a Value at the root-enumeration site).
func (c *Collector) MarkObject(o Object) {
	if o == nil {
		return
	}
	hdr := o.GCHeader()
	if hdr.marked {
		return
	}
	hdr.marked = true
	c.gray = append(c.gray, o)
	c.marked = append(c.marked, o)
}

// process drains the gray worklist, tracing each object's children until
// the worklist is empty (the collector is "done" when every reachable
// object is black, i.e. marked with no remaining gray entries).
func (c *Collector) process() {
	for len(c.gray) > 0 {
		o := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		c.Marked++
		o.Trace(c.Mark)
	}
}

// Collect runs one full cycle: markRoots is called once to seed the gray
// worklist from every GC root; pool, if non-nil, is
// de-interned of unmarked strings before the sweep frees them. Collect
// returns nothing: it records the number of objects marked and freed this
// cycle in c.Marked and c.Freed.
func (c *Collector) Collect(markRoots func(mark func(value.Value)), pool StringPool) {
	c.gray = c.gray[:0]
	c.marked = c.marked[:0]
	c.Marked = 0
	c.Freed = 0

	markRoots(c.Mark)
	c.process()

	if pool != nil {
		pool.RemoveWhite()
	}

	c.sweep()

	// Clear every mark set this cycle, including on objects sweep never saw.
	for _, o := range c.marked {
		o.GCHeader().marked = false
	}

	survived := uint64(c.heap.count)
	next := uint64(float64(survived) * c.heap.growthFactor * 64) // approximate bytes/object
	if next < c.heap.minThreshold {
		next = c.heap.minThreshold
	}
	c.heap.threshold = next
	c.heap.allocated = 0
}

// sweep walks the intrusive heap list, freeing every unmarked object and
// clearing the mark bit on survivors.
func (c *Collector) sweep() {
	survivors := make([]Object, 0, c.heap.count)
	cur := c.heap.head
	for cur != nil {
		hdr := cur.GCHeader()
		next := hdr.next
		if hdr.marked {
			hdr.marked = false
			survivors = append(survivors, cur)
		} else {
			cur.Free()
			c.Freed++
		}
		cur = next
	}

	// Re-thread survivors in their original relative order.
	var head Object
	for i := len(survivors) - 1; i >= 0; i-- {
		survivors[i].GCHeader().next = head
		head = survivors[i]
	}
	c.heap.head = head
	c.heap.count = len(survivors)
}
