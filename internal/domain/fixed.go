package domain

import (
	"math"
	"math/bits"
)

// Fixed-point scales. Scores and percentages are x100, weights and points
// are x1000, rates are basis points and token amounts are micro-units.
const (
	ScoreScale  = 100
	WeightScale = 1000
	BPSScale    = 10_000

	TokenDecimals = 6
	Token         = int64(1_000_000)

	MaxScore = 1000

	Second = int64(1000)
	Minute = 60 * Second
	Hour   = 60 * Minute
	Day    = 24 * Hour
)

func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ISqrt returns floor(sqrt(n)) for n >= 0.
func ISqrt(n int64) int64 {
	if n < 2 {
		if n < 0 {
			return 0
		}
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// MulDiv computes a*b/c with a 128-bit intermediate, truncating toward zero
// and saturating at the int64 range.
func MulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	neg := false
	ua, ub, uc := abs(a, &neg), abs(b, &neg), abs(c, &neg)
	hi, lo := bits.Mul64(ua, ub)
	if hi >= uc {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		return saturate(neg)
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func abs(v int64, neg *bool) uint64 {
	if v < 0 {
		*neg = !*neg
		return uint64(-v)
	}
	return uint64(v)
}

func saturate(neg bool) int64 {
	if neg {
		return math.MinInt64
	}
	return math.MaxInt64
}
