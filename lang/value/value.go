// Package value defines the tagged runtime value that flows through every
// register, upvalue, constant slot and native-call argument in the machine.
//
// A Value is a discriminated union: Nil, Bool, Int, Float are held inline
// (no heap allocation, no GC header); every other kind is a pointer to a
// heap object living in package object, which is traced and swept by
// package gc. The union is modelled as a Go interface rather than a raw
// tagged struct with a manually managed pointer-or-bits payload: Go's type
// switch plays the role of a discriminant match, and interface equality on
// comparable dynamic types already gives the NaN-distinct,
// pointer-identity comparisons the machine requires, so no unsafe
// bit-packing is needed to get there.
package value

import "fmt"

// Kind identifies the dynamic type of a Value. It matches the Value tag set
// from the data model one for one.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindInstance
	KindClass
	KindClosure
	KindNativeFunc
	KindUpvalue
	KindFiber
	KindNativeClass
	KindNativeObject
	KindLightUserData
)

var kindNames = [...]string{
	KindNil:           "nil",
	KindBool:          "bool",
	KindInt:           "int",
	KindFloat:         "float",
	KindString:        "string",
	KindList:          "list",
	KindMap:           "map",
	KindInstance:      "instance",
	KindClass:         "class",
	KindClosure:       "closure",
	KindNativeFunc:    "native function",
	KindUpvalue:       "upvalue",
	KindFiber:         "fiber",
	KindNativeClass:   "native class",
	KindNativeObject:  "native object",
	KindLightUserData: "lightuserdata",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is implemented by every value the machine can hold in a register, a
// constant slot, an upvalue or pass across the embedding boundary.
type Value interface {
	Kind() Kind
	String() string
}

// Nil is the unique nil value.
type Nil struct{}

func (Nil) Kind() Kind     { return KindNil }
func (Nil) String() string { return "nil" }

// NilValue is the canonical Nil instance; since Nil carries no state, every
// nil Value can share it.
var NilValue Value = Nil{}

// Bool is a boolean value.
type Bool bool

func (b Bool) Kind() Kind { return KindBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int is a 64-bit signed integer value.
type Int int64

func (i Int) Kind() Kind     { return KindInt }
func (i Int) String() string { return fmt.Sprintf("%d", int64(i)) }

// Float is a 64-bit floating point value.
type Float float64

func (f Float) Kind() Kind     { return KindFloat }
func (f Float) String() string { return formatFloat(float64(f)) }

// LightUserData is a raw host pointer carried opaquely by the machine,
// compared and hashed by pointer identity only.
type LightUserData struct {
	Ptr any
}

func (LightUserData) Kind() Kind       { return KindLightUserData }
func (u LightUserData) String() string { return fmt.Sprintf("lightuserdata(%p)", u.Ptr) }
