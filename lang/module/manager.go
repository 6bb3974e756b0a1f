// Package module implements the name-to-chunk cache, sentinel error
// propagation, and hot-reload bookkeeping of the module system. It is
// deliberately decoupled from package vm: a Manager is handed a Loader (to
// obtain a compiled *proto.Chunk for a module name; parsing/compiling
// source lives outside this repository) and a Runner (to execute a Chunk's
// root closure and collect its exports) at construction time, rather than
// importing vm directly, so vm can own a Manager without a package
// cycle.
package module

import (
	"fmt"

	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
)

// Loader resolves a module name (as written in an IMPORT instruction, e.g.
// "std:debug" or "./foo") to a compiled Chunk.
type Loader func(name string) (*proto.Chunk, error)

// Runner executes chunk's root prototype as the top-level call of a fresh
// invocation and returns the set of names it exported.
type Runner func(chunk *proto.Chunk) (exports map[string]value.Value, err error)

// ErrorSentinelKey and ErrorSentinelMessage name the two fields of the
// sentinel map returned in place of a module's exports on load failure:
// { error: true, message: "<reason>" }.
const (
	ErrorSentinelKey     = "error"
	ErrorSentinelMessage = "message"
)

type entry struct {
	chunk   *proto.Chunk
	exports map[string]value.Value
	failed  bool
	message string
}

// Manager caches modules by name and supports hot reload.
type Manager struct {
	load   Loader
	run    Runner
	intern func(string) value.Value

	cache map[string]*entry
}

// NewManager creates a Manager that resolves modules via load and executes
// them via run. intern is used to produce the sentinel map's string values
// (the VM's own interned *object.String, so a sentinel map behaves exactly
// like any other script-visible Map); a manager used only for tests may
// pass a trivial identity wrapper.
func NewManager(load Loader, run Runner, intern func(string) value.Value) *Manager {
	return &Manager{load: load, run: run, intern: intern, cache: make(map[string]*entry)}
}

// Resolve returns the exports map for name, loading and running it on
// first reference. On failure it returns a sentinel exports map carrying
// {error: true, message: "<reason>"} rather than an error;
// IMPORT/IMPORT_FROM are responsible for inspecting the sentinel and
// raising a runtime error.
func (m *Manager) Resolve(name string) map[string]value.Value {
	if e, ok := m.cache[name]; ok {
		if e.failed {
			return m.sentinel(e.message)
		}
		return e.exports
	}

	chunk, err := m.load(name)
	if err != nil {
		e := &entry{failed: true, message: err.Error()}
		m.cache[name] = e
		return m.sentinel(e.message)
	}

	exports, err := m.run(chunk)
	if err != nil {
		e := &entry{failed: true, message: err.Error()}
		m.cache[name] = e
		return m.sentinel(e.message)
	}

	m.cache[name] = &entry{chunk: chunk, exports: exports}
	return exports
}

// IsErrorSentinel reports whether exports is a load-failure sentinel, and
// if so returns its message.
func IsErrorSentinel(exports map[string]value.Value) (string, bool) {
	errv, ok := exports[ErrorSentinelKey]
	if !ok {
		return "", false
	}
	if b, ok := errv.(value.Bool); !ok || !bool(b) {
		return "", false
	}
	msg := ""
	if m, ok := exports[ErrorSentinelMessage]; ok {
		msg = m.String()
	}
	return msg, true
}

func (m *Manager) sentinel(message string) map[string]value.Value {
	return map[string]value.Value{
		ErrorSentinelKey:     value.Bool(true),
		ErrorSentinelMessage: m.intern(message),
	}
}

// HotReload installs newChunk under name and re-runs it, replacing the
// cached exports. It does not by itself reset method tables on live
// classes exported from the module; that step is performed by
// vm.HotReload, which calls this and then resets the method tables of the
// Classes found in the module's previous exports.
func (m *Manager) HotReload(name string, newChunk *proto.Chunk) (map[string]value.Value, error) {
	exports, err := m.run(newChunk)
	if err != nil {
		return nil, fmt.Errorf("hot reload %q: %w", name, err)
	}
	m.cache[name] = &entry{chunk: newChunk, exports: exports}
	return exports, nil
}

// Invalidate drops name from the cache, forcing the next Resolve to reload
// it from scratch.
func (m *Manager) Invalidate(name string) {
	delete(m.cache, name)
}

// Tick gives the loader a chance to detect source changes for every
// currently cached module and trigger a reload.
// detect is called once per cached name; when it reports true as its second
// result, HotReload installs the chunk it returned.
func (m *Manager) Tick(detect func(name string) (*proto.Chunk, bool)) error {
	for name := range m.cache {
		newChunk, changed := detect(name)
		if !changed {
			continue
		}
		if _, err := m.HotReload(name, newChunk); err != nil {
			return err
		}
	}
	return nil
}
