package value

import (
	"math"
	"reflect"
)

// nanHashPattern is the fixed bit pattern every NaN hashes to, so that NaN
// keys in a Map are at least mutually consistent for bucketing purposes
// (they still never compare equal to anything, including each other).
const nanHashPattern uint64 = 0x7ff8000000000001

// Hasher is implemented by reference kinds that cache their own hash (the
// string pool in particular, whose hash is computed once at intern time).
type Hasher interface {
	ValueHash() uint64
}

// Hash computes the hash of v: primitives hash by value (NaN collapses to
// a fixed pattern), strings by their precomputed pool hash, everything
// else by pointer identity.
func Hash(v Value) uint64 {
	switch x := v.(type) {
	case Nil:
		return 0
	case Bool:
		if x {
			return 1
		}
		return 0
	case Int:
		return uint64(x)
	case Float:
		f := float64(x)
		if math.IsNaN(f) {
			return nanHashPattern
		}
		return math.Float64bits(f)
	case Hasher:
		return x.ValueHash()
	default:
		return pointerHash(v)
	}
}

// pointerHash hashes a reference value by the address of its underlying
// pointer, used for any reference kind that does not cache its own hash.
func pointerHash(v Value) uint64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func:
		return uint64(rv.Pointer())
	default:
		// Value-shaped reference kind (e.g. LightUserData wrapping a non-pointer):
		// fall back to a best-effort hash of its string form so Map lookups at
		// least remain internally consistent.
		return fnv1a(v.String())
	}
}

func fnv1a(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
