package value

import (
	"math"
	"strconv"
)

// formatFloat renders a float for printing: %.14g precision, so integral
// floats print bare and large magnitudes collapse to scientific notation
// (`9.2233720368548e+18`).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	// %.14g mirrors Lua's LUAI_NUMFFORMAT and keeps round-trip precision
	// while collapsing to scientific notation for large magnitudes.
	s := strconv.FormatFloat(f, 'g', 14, 64)
	return s
}
