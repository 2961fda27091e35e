package utils

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// ParseDuration safely parses duration string like "5m"
func ParseDuration(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return fallback
	}
	return duration
}

// Milliseconds converts a millisecond count from config into a duration.
func Milliseconds(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// RoundSigFigs rounds v to p significant figures, half away from zero.
func RoundSigFigs(v float64, p int) float64 {
	if p <= 0 || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	rounded, err := strconv.ParseFloat(FormatPrecision(v, p), 64)
	if err != nil {
		return v
	}
	return rounded
}

// FormatPrecision renders v with p significant figures the way JavaScript's
// Number.prototype.toPrecision does: exact ties round up, trailing zeros are
// kept, and exponent notation is used when the exponent is below -6 or at
// least p.
func FormatPrecision(v float64, p int) string {
	if p <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v == 0 {
		if p == 1 {
			return "0"
		}
		return "0." + strings.Repeat("0", p-1)
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits, exp := significantDigits(v, p)

	if exp < -6 || exp >= p {
		mantissa := digits[:1]
		if p > 1 {
			mantissa += "." + digits[1:]
		}
		expSign := "+"
		if exp < 0 {
			expSign = "-"
			exp = -exp
		}
		return sign + mantissa + "e" + expSign + strconv.Itoa(exp)
	}
	if exp >= 0 {
		out := digits[:exp+1]
		if frac := digits[exp+1:]; frac != "" {
			out += "." + frac
		}
		return sign + out
	}
	return sign + "0." + strings.Repeat("0", -exp-1) + digits
}

// significantDigits returns the first p decimal digits of the exact binary
// value of v (v > 0), rounded half up, and the decimal exponent of the first digit.
func significantDigits(v float64, p int) (string, int) {
	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])

	shift := p - 1 - exp
	pow := shift
	if pow < 0 {
		pow = -pow
	}
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(pow)), nil))

	r := new(big.Rat).SetFloat64(v)
	if shift >= 0 {
		r.Mul(r, scale)
	} else {
		r.Quo(r, scale)
	}
	r.Add(r, big.NewRat(1, 2))
	digits := new(big.Int).Quo(r.Num(), r.Denom()).String()

	// 9.99… rounded up to 10^p gains a digit.
	if len(digits) > p {
		digits = digits[:p]
		exp++
	}
	return digits, exp
}
