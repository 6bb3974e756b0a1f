package value

// Equal implements the machine's equality relation. Two values of
// different dynamic types are never equal: Int(3) and Float(3.0) are
// distinct, exactly as they are as map keys. Within a type, numbers
// compare by value (NaN is never equal to anything, including itself),
// strings compare by interned identity, and every other reference kind
// compares by Go pointer identity, which for this value model coincides
// with object identity.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y // Go's == on float64 already yields NaN != NaN
	default:
		// Strings (interned) and all other reference kinds compare by Go
		// equality, which for pointer-shaped concrete types is identity.
		return a == b
	}
}
