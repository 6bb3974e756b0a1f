package value

// Truthy reports whether v is considered true by the machine. Only Nil and
// the boolean false are false; every other value -- including Int(0),
// Float(0.0), and the empty string -- is true.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case Nil:
		return false
	case Bool:
		return bool(x)
	default:
		return true
	}
}
