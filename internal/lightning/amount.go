package lightning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// msatPattern matches the two accepted spellings of a millisatoshi amount
// field from the Lightning node: a bare integer, or an
// integer suffixed with "msat" (case-insensitive).
var msatPattern = regexp.MustCompile(`(?i)^(\d+)(msat)?$`)

// ParseMsat normalizes a dynamically-typed JSON field into a millisatoshi
// integer. The Lightning node reports these fields as either a JSON number
// or a string like "21000msat"; this is the single named parsing function
// this package needs so the shape ambiguity never leaks past it.
func ParseMsat(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("lightning: missing amount field")
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if m := msatPattern.FindStringSubmatch(s); m != nil {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("lightning: invalid amount %q: %w", v, err)
			}
			return n, nil
		}
		// Digits-only fallback for any trailing unit not covered above.
		digits := strings.TrimFunc(s, func(r rune) bool { return r < '0' || r > '9' })
		if digits == "" {
			return 0, fmt.Errorf("lightning: unparseable amount %q", v)
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("lightning: invalid amount %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("lightning: unsupported amount type %T", raw)
	}
}

// MsatToSats converts a millisatoshi amount to satoshis, requiring exact
// divisibility — fractional sats are a protocol error.
func MsatToSats(msat int64) (int64, error) {
	if msat%1000 != 0 {
		return 0, fmt.Errorf("lightning: %d msat is not a whole number of satoshis", msat)
	}
	return msat / 1000, nil
}
