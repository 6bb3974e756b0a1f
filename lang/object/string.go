package object

import (
	"strconv"

	"github.com/emberlang/ember/lang/gc"
	"github.com/emberlang/ember/lang/value"
)

// String is an immutable, interned byte sequence. Content equality implies
// pointer identity: the only way to obtain
// a *String is through a StringPool, which guarantees a single instance per
// distinct content.
type String struct {
	gc.Header
	s    string
	hash uint64
}

var (
	_ value.Value  = (*String)(nil)
	_ gc.Object    = (*String)(nil)
	_ value.Hasher = (*String)(nil)
)

func (s *String) Kind() value.Kind { return value.KindString }
func (s *String) String() string   { return strconv.Quote(s.s) }

// Content returns the raw byte content of the string (without quoting),
// used by concatenation, printing, and map-key comparisons.
func (s *String) Content() string         { return s.s }
func (s *String) Len() int                { return len(s.s) }
func (s *String) ValueHash() uint64       { return s.hash }
func (s *String) GCHeader() *gc.Header    { return &s.Header }
func (s *String) Trace(func(value.Value)) {}
func (s *String) Free()                   {}

// fnv1a is the hash used both to key the string pool and as the value
// returned from ValueHash.
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
