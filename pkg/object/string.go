package object

import (
	"bytes"
	"strconv"
)

// ParseCanonicalInt reports whether b is the exact canonical decimal form of
// an int64 (no leading zeros, no "+", "-0" rejected except for the literal
// value 0), the condition under which a STRING may be INT-encoded (§4.2).
func ParseCanonicalInt(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	if string(FormatInt(n)) != string(b) {
		return 0, false
	}
	return n, true
}

// FormatInt renders n in canonical decimal form.
func FormatInt(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

// CompareStringObjects performs a binary-safe ordering comparison between two
// STRING values, decoding INT encodings only when needed.
func CompareStringObjects(a, b *Value) int {
	return bytes.Compare(a.Str.Bytes(), b.Str.Bytes())
}

// EqualStringObjects reports binary-safe equality, fast-pathing the case
// where both operands are INT-encoded (§4.2).
func EqualStringObjects(a, b *Value) bool {
	if a.Encoding == EncInt && b.Encoding == EncInt {
		ai, _ := a.Str.Int()
		bi, _ := b.Str.Int()
		return ai == bi
	}
	return bytes.Equal(a.Str.Bytes(), b.Str.Bytes())
}
