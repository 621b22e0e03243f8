package mathhelp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Exp2 is 2^n for a (possibly fractional or negative) zoom difference
func Exp2(n float64) float64 {
	return math.Exp2(n)
}

// FloorDiv divides rounding towards negative infinity, which is what world wrapping needs
func FloorDiv(d, m int) int {
	q := d / m
	if (d%m != 0) && ((d < 0) != (m < 0)) {
		q--
	}
	return q
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
