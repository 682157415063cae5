package chain

import (
	"math"
	"strconv"
	"strings"
)

// Fractional digits kept in the hash pre-image
const (
	AccuracyDigits   = 1
	CoordinateDigits = 6
)

// FormatDouble renders v the way the JVM's Double.toString does: plain
// decimal with at least one fractional digit for 1e-3 <= |v| < 1e7, computer
// scientific notation ("1.0E-4") otherwise.
func FormatDouble(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(v)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(v, 'E', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	sign := ""
	if strings.HasPrefix(exp, "-") {
		sign = "-"
	}
	exp = strings.TrimLeft(exp, "+-")
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "E" + sign + exp
}

// Truncate cuts the JVM text of v after the given number of fractional
// digits. Digits are dropped, never rounded.
func Truncate(v float64, digits int) string {
	s := FormatDouble(v)
	dot := strings.Index(s, ".")
	if dot < 0 {
		return s
	}
	if len(s) > dot+1+digits {
		return s[:dot+1+digits]
	}
	return s
}
