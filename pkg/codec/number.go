package codec

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// numberScale quantizes cached numbers to hundredths, which covers the
	// usual strikes, multipliers and price increments.
	numberScale     = 100
	numberCacheSize = 1 << 16

	minPlainMagnitude = 1e-9
	maxPlainMagnitude = 1e12
)

var (
	numberStrings = newStringCache(numberCacheSize)
	numberValues  = newParseCache[float64](parseCacheLimit)
)

// ParseError reports text that is not a valid number or date.
type ParseError struct {
	Kind string // "number" or "date"
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.Text, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FormatNumber returns the canonical text of v. Zero formats as "".
func FormatNumber(v float64) string {
	if v == 0 {
		return ""
	}
	if i, ok := numberSlot(v); ok && caching() {
		if s, ok := numberStrings.load(i); ok {
			hit()
			return s
		}
		miss()
		s := formatNumber(v)
		numberStrings.store(i, s)
		return s
	}
	return formatNumber(v)
}

// ParseNumber parses canonical or non-canonical decimal text. The empty
// string is 0. Besides plain decimals with an optional exponent only the
// forms FormatNumber produces for non-finite values are accepted: "NaN",
// "+Inf" and "-Inf". Go literal extensions such as "1_000" or "0x1p4" are
// errors.
func ParseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if caching() {
		if v, ok := numberValues.get(s); ok {
			hit()
			return v, nil
		}
		miss()
	}
	if !isDecimal(s) && !isNonFinite(s) {
		return 0, &ParseError{Kind: "number", Text: s}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Kind: "number", Text: s, Err: err}
	}
	if caching() {
		numberValues.put(s, v)
	}
	return v, nil
}

// isDecimal reports whether s matches [+-]digits[.digits][(e|E)[+-]digits],
// where the mantissa may also be ".digits" or "digits.".
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(s) && isDigit(s[i]); i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNonFinite(s string) bool {
	return s == "NaN" || s == "+Inf" || s == "-Inf"
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if v == math.Trunc(v) && math.Abs(v) < maxPlainMagnitude {
		return strconv.FormatInt(int64(v), 10)
	}
	if a := math.Abs(v); a > minPlainMagnitude && a < maxPlainMagnitude {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// numberSlot maps v to its cache index when v is a non-negative multiple of
// 1/numberScale small enough to fit the table.
func numberSlot(v float64) (int, bool) {
	if v <= 0 || v >= float64(numberCacheSize)/numberScale {
		return 0, false
	}
	scaled := math.Round(v * numberScale)
	if scaled/numberScale != v {
		return 0, false
	}
	return int(scaled), true
}
