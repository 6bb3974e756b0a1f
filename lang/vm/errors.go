package vm

import (
	"fmt"

	"github.com/emberlang/ember/lang/object"
	"github.com/emberlang/ember/lang/value"
)

// RuntimeError is returned by every VM entry point on failure. It carries
// the offending value.Value (so pcall can surface the exact error value to
// script code, not just its string form) alongside a Go error chain and
// the fiber's call stack at the point of failure.
type RuntimeError struct {
	Value value.Value
	Cause error
	Frame []string // one description per active CallFrame, innermost first
}

func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Value != nil {
		return e.Value.String()
	}
	return "runtime error"
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// newError builds a RuntimeError whose Value is an interned error string,
// capturing fiber's current frame stack for diagnostics.
func (vm *VM) newError(fiber *object.Fiber, format string, args ...any) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	return &RuntimeError{
		Value: vm.Intern(msg),
		Cause: fmt.Errorf("%s", msg),
		Frame: frameTrace(fiber),
	}
}

// newErrorValue wraps an arbitrary script-raised value.Value (e.g. from a
// native `error(v)` call) as a RuntimeError without forcing it through a
// string.
func newErrorValue(fiber *object.Fiber, v value.Value) *RuntimeError {
	return &RuntimeError{Value: v, Frame: frameTrace(fiber)}
}

func frameTrace(fiber *object.Fiber) []string {
	if fiber == nil {
		return nil
	}
	trace := make([]string, 0, len(fiber.Frames))
	for i := len(fiber.Frames) - 1; i >= 0; i-- {
		fr := fiber.Frames[i]
		name := "?"
		if p := fr.Proto(); p != nil {
			name = p.Name
			if name == "" {
				name = "anonymous"
			}
		} else if fr.Closure != nil && fr.Closure.Native != nil {
			name = fr.Closure.Native.Name
		}
		trace = append(trace, fmt.Sprintf("in %s", name))
	}
	return trace
}
