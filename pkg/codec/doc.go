// Package codec provides the canonical text forms of numeric and date values
// used by the instrument profile format.
//
// Every numeric and date cell in a profile file goes through this package in
// both directions, so a value composed and parsed again comes back unchanged.
//
// # Numbers
//
// Numbers are float64 values. The rules are:
//
//	0                      -> ""            (absence sentinel)
//	integral values        -> "5", "-12"    (no decimal point)
//	1e-9 < |v| < 1e12      -> "0.25"        (plain decimal, shortest digits)
//	anything else          -> "1e+12"       (shortest exponent form)
//
// Parsing accepts anything strconv.ParseFloat accepts and maps "" to 0, so
// "5.0" parses to 5 and formats back as "5".
//
// # Dates
//
// Dates are day ids: the number of days since 1970-01-01 UTC. Day id 0 is the
// empty string; every other day id is formatted as yyyy-MM-dd.
//
// # Caches
//
// Formatting small non-negative numbers (in hundredths) and day ids in the
// usual calendar window is served from fixed arrays of atomically published
// strings. Parsing is memoized in capped concurrent maps that are dropped
// wholesale once they grow past their limit. The caches are shared by every
// parser and composer in the process, never block, and can be switched off
// with SetCaching; results are identical either way.
//
// # Errors
//
// Malformed text fails with a *ParseError carrying the raw text. Callers that
// know which field the text belongs to wrap it with that context.
package codec
