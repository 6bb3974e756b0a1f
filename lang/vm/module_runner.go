package vm

import (
	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// runChunkAsModule is the module.Runner a Manager drives on first Resolve
// (and on HotReload) of a module name: it runs chunk's root
// prototype as a fresh fiber's entry call, collecting every OP_EXPORT it
// executes into that name's exports map. A name listed in chunk.Exports
// that the run never actually exported is reported as Nil rather than
// omitted, so a host's lookup never has to distinguish "never ran" from
// "exported as nil".
func (vm *VM) runChunkAsModule(chunk *proto.Chunk) (map[string]value.Value, error) {
	closure := object.NewScriptClosure(chunk.Root)
	vm.Heap.Register(closure, 48)

	prevExports := vm.pendingExports
	vm.pendingExports = make(map[string]value.Value, len(chunk.Exports))
	defer func() { vm.pendingExports = prevExports }()

	if _, err := vm.runClosure(closure, nil); err != nil {
		return nil, err
	}

	exports := make(map[string]value.Value, len(chunk.Exports))
	for _, name := range chunk.Exports {
		if v, ok := vm.pendingExports[name]; ok {
			exports[name] = v
		} else {
			exports[name] = value.NilValue
		}
	}
	return exports, nil
}
