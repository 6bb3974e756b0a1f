package embed

import (
	"fmt"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

var errUnderflow = fmt.Errorf("stack underflow")

// NewObject pops ctorArgs arguments and the class off the top of the stack
// (class below its constructor arguments, the same order Call expects) and
// pushes a freshly instantiated Instance/NativeInstance, running __init or
// Construct as NEWOBJ would.
func (s *State) NewObject(ctorArgs int) error {
	if len(s.stack) < ctorArgs+1 {
		return errUnderflow
	}
	classIdx := len(s.stack) - ctorArgs - 1
	cls := s.stack[classIdx]
	args := append([]value.Value{}, s.stack[classIdx+1:]...)
	s.stack = s.stack[:classIdx]

	inst, err := s.VM.Instantiate(s.Fiber, cls, args)
	if err != nil {
		return err
	}
	s.PushValue(inst)
	return nil
}

// RegisterClass installs class as global name, exposing a host-defined
// NativeClass to script the same way a host installs a bare native
// function.
func (s *State) RegisterClass(name string, class *object.NativeClass) {
	s.VM.Heap.Register(class, 48)
	s.VM.Globals[name] = class
}
