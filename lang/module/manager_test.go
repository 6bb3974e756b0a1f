package module_test

import (
	"fmt"
	"testing"

	"github.com/emberlang/ember/lang/module"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/value"
	"github.com/stretchr/testify/require"
)

type fakeString string

func (s fakeString) Kind() value.Kind { return value.KindString }
func (s fakeString) String() string   { return string(s) }

func intern(s string) value.Value { return fakeString(s) }

func chunkNamed(name string) *proto.Chunk {
	return &proto.Chunk{Root: &proto.Prototype{Name: name}}
}

func TestResolveCachesChunks(t *testing.T) {
	loads, runs := 0, 0
	m := module.NewManager(
		func(name string) (*proto.Chunk, error) {
			loads++
			return chunkNamed(name), nil
		},
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			runs++
			return map[string]value.Value{"f": value.Int(1)}, nil
		},
		intern,
	)

	first := m.Resolve("m")
	second := m.Resolve("m")
	require.Equal(t, 1, loads)
	require.Equal(t, 1, runs)
	require.Equal(t, value.Int(1), first["f"])

	// The cached exports map is returned as-is on a hit.
	require.Equal(t, fmt.Sprintf("%p", first), fmt.Sprintf("%p", second))
}

func TestResolveLoaderFailureSentinel(t *testing.T) {
	m := module.NewManager(
		func(name string) (*proto.Chunk, error) {
			return nil, fmt.Errorf("no such module %s", name)
		},
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			t.Fatal("runner must not be invoked when the loader fails")
			return nil, nil
		},
		intern,
	)

	exports := m.Resolve("missing")
	msg, failed := module.IsErrorSentinel(exports)
	require.True(t, failed)
	require.Contains(t, msg, "no such module missing")

	// Failures are cached too: a second resolve reports the same sentinel.
	msg2, failed2 := module.IsErrorSentinel(m.Resolve("missing"))
	require.True(t, failed2)
	require.Equal(t, msg, msg2)
}

func TestResolveRunnerFailureSentinel(t *testing.T) {
	m := module.NewManager(
		func(name string) (*proto.Chunk, error) { return chunkNamed(name), nil },
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			return nil, fmt.Errorf("boom at runtime")
		},
		intern,
	)
	_, failed := module.IsErrorSentinel(m.Resolve("m"))
	require.True(t, failed)
}

func TestIsErrorSentinelOnOrdinaryExports(t *testing.T) {
	_, failed := module.IsErrorSentinel(map[string]value.Value{"f": value.Int(1)})
	require.False(t, failed)

	// An export literally named "error" is only a sentinel when it is true.
	_, failed = module.IsErrorSentinel(map[string]value.Value{"error": value.Bool(false)})
	require.False(t, failed)
	_, failed = module.IsErrorSentinel(map[string]value.Value{"error": value.Int(1)})
	require.False(t, failed)
}

func TestHotReloadReplacesExports(t *testing.T) {
	versions := map[*proto.Chunk]string{}
	v1, v2 := chunkNamed("m"), chunkNamed("m")
	versions[v1] = "v1"
	versions[v2] = "v2"

	m := module.NewManager(
		func(name string) (*proto.Chunk, error) { return v1, nil },
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			return map[string]value.Value{"f": intern(versions[chunk])}, nil
		},
		intern,
	)

	require.Equal(t, "v1", m.Resolve("m")["f"].String())

	exports, err := m.HotReload("m", v2)
	require.NoError(t, err)
	require.Equal(t, "v2", exports["f"].String())
	require.Equal(t, "v2", m.Resolve("m")["f"].String())
}

func TestHotReloadFailureKeepsOldExports(t *testing.T) {
	v1 := chunkNamed("m")
	bad := chunkNamed("bad")
	m := module.NewManager(
		func(name string) (*proto.Chunk, error) { return v1, nil },
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			if chunk == bad {
				return nil, fmt.Errorf("broken chunk")
			}
			return map[string]value.Value{"f": value.Int(1)}, nil
		},
		intern,
	)

	require.Equal(t, value.Int(1), m.Resolve("m")["f"])
	_, err := m.HotReload("m", bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), `hot reload "m"`)
	// The previous version stays installed.
	require.Equal(t, value.Int(1), m.Resolve("m")["f"])
}

func TestInvalidateForcesReload(t *testing.T) {
	loads := 0
	m := module.NewManager(
		func(name string) (*proto.Chunk, error) {
			loads++
			return chunkNamed(name), nil
		},
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			return map[string]value.Value{}, nil
		},
		intern,
	)
	m.Resolve("m")
	m.Invalidate("m")
	m.Resolve("m")
	require.Equal(t, 2, loads)
}

func TestTickReloadsChangedModules(t *testing.T) {
	v1, v2 := chunkNamed("m"), chunkNamed("m")
	current := v1
	m := module.NewManager(
		func(name string) (*proto.Chunk, error) { return v1, nil },
		func(chunk *proto.Chunk) (map[string]value.Value, error) {
			if chunk == v2 {
				return map[string]value.Value{"v": value.Int(2)}, nil
			}
			return map[string]value.Value{"v": value.Int(1)}, nil
		},
		intern,
	)

	require.Equal(t, value.Int(1), m.Resolve("m")["v"])

	// No change detected: nothing reloads.
	require.NoError(t, m.Tick(func(name string) (*proto.Chunk, bool) { return nil, false }))
	require.Equal(t, value.Int(1), m.Resolve("m")["v"])

	current = v2
	require.NoError(t, m.Tick(func(name string) (*proto.Chunk, bool) { return current, true }))
	require.Equal(t, value.Int(2), m.Resolve("m")["v"])
}
