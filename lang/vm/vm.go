// Package vm implements the register-based dispatch loop, calling
// convention, protected calls, fiber scheduling, and GC root marking.
package vm

import (
	"fmt"
	"os"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/module"
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// VM owns every process-wide-per-instance shared resource: the heap,
// string pool, globals map, module cache, and reference table used by the
// embedding API. Only one fiber may run at a time (Current), switching
// only at resume/yield/abort/completion.
type VM struct {
	Config Config

	Heap      *gc.Heap
	Collector *gc.Collector
	Strings   *object.StringPool
	Globals   map[string]value.Value
	Modules   *module.Manager

	// References backs the embedding API's reference table: stable integer
	// handles to Values a host wants to keep beyond the current call. The
	// table is a GC root.
	References map[int]value.Value
	nextRef    int

	Main    *object.Fiber
	Current *object.Fiber

	maxCallFrames int

	// protected is a scratch stack of Values that must survive a collection
	// triggered between their allocation and the moment they are written into
	// a register; rooted by markRoots.
	protected []value.Value

	// pendingExports accumulates OP_EXPORT writes while runChunkAsModule
	// drives a module's root closure to completion; nil outside that call,
	// so an EXPORT reached from ordinary top-level interpretation (outside
	// any module load) is simply discarded.
	pendingExports map[string]value.Value

	// registry backs REGISTRY_INDEX: a Map only the
	// embedding API can reach, used by hosts to stash Values (e.g. cached
	// metatables, callback tables) outside the reference table's integer
	// handles. Created lazily by RegistryTable.
	registry *object.Map

	// nativeMultiRet carries a native function's multi-value return vector
	// out of the call: the native stores it via SetNativeMultiReturn and
	// returns Nil, and callNative consumes it in place of the single return
	// slot. hasNativeMultiRet distinguishes an empty vector from "not set".
	nativeMultiRet    []value.Value
	hasNativeMultiRet bool

	// lastErr holds the most recent error reportError ran the handler for,
	// backing the embedding API's getlasterror.
	lastErr error
}

// New creates a VM configured by cfg.
func New(cfg Config) *VM {
	heap := gc.NewHeap(cfg.heapThreshold(), cfg.heapGrowth())
	vm := &VM{
		Config:        cfg,
		Heap:          heap,
		Collector:     gc.NewCollector(heap),
		Strings:       object.NewStringPool(heap),
		Globals:       make(map[string]value.Value),
		References:    make(map[int]value.Value),
		maxCallFrames: cfg.maxCallFrames(object.MaxCallFrames),
	}
	vm.Modules = module.NewManager(defaultLoader, vm.runChunkAsModule, func(s string) value.Value {
		return vm.Strings.Intern(s)
	})
	vm.registerBuiltins()
	return vm
}

func defaultLoader(name string) (*proto.Chunk, error) {
	return nil, fmt.Errorf("module %q: no loader configured", name)
}

// SetLoader replaces the module loader used to resolve IMPORT targets. A
// host must call this before the first IMPORT executes; the zero-value
// loader always fails. The loader itself, being filesystem-specific, is
// host-supplied rather than built in.
func (vm *VM) SetLoader(load module.Loader) {
	vm.Modules = module.NewManager(load, vm.runChunkAsModule, func(s string) value.Value {
		return vm.Strings.Intern(s)
	})
}

// Intern is a convenience forward to the string pool, used throughout
// package vm's opcode handlers (LOADK on a string constant, map string
// keys, etc).
func (vm *VM) Intern(s string) *object.String { return vm.Strings.Intern(s) }

// reportError runs the configured error handler (default: print to
// Stderr).
func (vm *VM) reportError(err error) {
	vm.lastErr = err
	if vm.Config.ErrorHandler != nil {
		vm.Config.ErrorHandler(err)
		return
	}
	w := vm.Config.Stderr
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "ember: %v\n", err)
}

// SetNativeMultiReturn stores values as the multi-value result of the
// native function currently executing; the call site spreads them across
// destination registers the same way a script RETURN's values are spread,
// and the native's ordinary return value is ignored. Only meaningful while
// a native function is on the stack.
func (vm *VM) SetNativeMultiReturn(values ...value.Value) {
	vm.nativeMultiRet = values
	vm.hasNativeMultiRet = true
}

// LastError returns the most recent error surfaced through the configured
// error handler, or nil if none has occurred yet.
func (vm *VM) LastError() error { return vm.lastErr }

// AddReference installs v into the reference table and returns its stable
// handle, per the embedding API's reference table.
func (vm *VM) AddReference(v value.Value) int {
	vm.nextRef++
	vm.References[vm.nextRef] = v
	return vm.nextRef
}

// Reference looks up a previously added reference.
func (vm *VM) Reference(ref int) (value.Value, bool) {
	v, ok := vm.References[ref]
	return v, ok
}

// RemoveReference drops ref from the table, allowing its value to be
// collected if otherwise unreachable.
func (vm *VM) RemoveReference(ref int) {
	delete(vm.References, ref)
}

// RegistryTable returns the VM's registry Map, creating it on first use:
// a process-wide map only the embedding API can reach.
func (vm *VM) RegistryTable() *object.Map {
	if vm.registry == nil {
		vm.registry = object.NewMap(8)
		vm.Heap.Register(vm.registry, 32)
	}
	return vm.registry
}

// ShouldCollect is checked by every allocating opcode handler before it
// materialises a new heap object.
func (vm *VM) ShouldCollect() bool {
	return vm.Config.GCStress || vm.Heap.ShouldCollect()
}

// Collect runs one full mark-sweep cycle, rooted at every live fiber's
// stack/frames/upvalues, the globals map, the module cache's exports, and
// the reference table (roots.go implements markRoots).
func (vm *VM) Collect() {
	vm.Collector.Collect(vm.markRoots, vm.Strings)
}

// HotReload re-runs name's chunk under newChunk and resets the method table
// of every Class in name's previous exports whose export the reload replaced
// with a different Class, so existing Instances pick up the redefinitions without
// losing their identity. It is a thin wrapper around
// module.Manager.HotReload, which owns the cache swap itself; this method
// only adds the Class-table reset module.Manager cannot perform without
// importing package vm.
func (vm *VM) HotReload(name string, newChunk *proto.Chunk) error {
	previous := vm.Modules.Resolve(name)
	exports, err := vm.Modules.HotReload(name, newChunk)
	if err != nil {
		return err
	}
	for exportName, old := range previous {
		oldClass, ok := old.(*object.Class)
		if !ok {
			continue
		}
		if fresh, ok := exports[exportName].(*object.Class); ok && fresh != oldClass {
			oldClass.ResetMethods()
			for name, fn := range fresh.Methods {
				oldClass.SetMethod(name, fn)
			}
			oldClass.Statics = fresh.Statics
		}
	}
	return nil
}
