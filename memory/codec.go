package memory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Vector stores only accept flat string metadata, so every Value is
// flattened to a string on write and recovered on read:
//
//   - sequences and mappings are written as canonical JSON and read back
//     with their structure intact;
//   - scalars are written in their plain form (strings verbatim, integers in
//     decimal, floats always with a '.' or exponent, True/False, None) and
//     read back with a literal parse.
//
// The literal parse is applied to every stored string, including values
// that were strings to begin with. A string that happens to read as a
// literal comes back as that literal: "42" is returned as the integer 42,
// "3.14" as a float, "True" as a boolean and "None" as null. Strings that
// are not literals ("hello", "02134", " 42") are returned unchanged.
// This is a known lossy conversion kept for compatibility with data written
// by earlier versions; callers that need exact text should not store
// numeric-looking strings.

// EncodeMetadata flattens metadata into the string map stored with a
// document. It fails with ErrSerialization when a value cannot be encoded.
func EncodeMetadata(md Metadata) (map[string]string, error) {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("%w: metadata key %q is not valid UTF-8", ErrSerialization, k)
		}
		s, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

// DecodeMetadata restores metadata read from the store. It never fails.
func DecodeMetadata(stored map[string]string) Metadata {
	md := make(Metadata, len(stored))
	for k, s := range stored {
		md[k] = DecodeValue(s)
	}
	return md
}

// EncodeValue returns the stored string form of a single value.
func EncodeValue(v Value) (string, error) {
	switch v.kind {
	case KindSequence, KindMapping:
		b, err := v.MarshalJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return "", fmt.Errorf("%w: non-finite float %v", ErrSerialization, v.f)
		}
		return formatFloat(v.f), nil
	case KindString:
		if !utf8.ValidString(v.s) {
			return "", fmt.Errorf("%w: string is not valid UTF-8", ErrSerialization)
		}
		return v.s, nil
	case KindNull, KindInteger, KindBoolean:
		return encodeScalar(v), nil
	default:
		return "", fmt.Errorf("%w: unknown kind %d", ErrSerialization, int(v.kind))
	}
}

// DecodeValue applies the literal parse to a stored string.
func DecodeValue(s string) Value {
	switch s {
	case "True":
		return Bool(true)
	case "False":
		return Bool(false)
	case "None":
		return Null()
	}

	if isIntegerLiteral(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
		return String(s)
	}

	if isFloatLiteral(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
		return String(s)
	}

	if len(s) > 0 && (s[0] == '[' || s[0] == '{') {
		var v Value
		if err := v.UnmarshalJSON([]byte(s)); err == nil {
			return v
		}
	}

	return String(s)
}

func encodeScalar(v Value) string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return formatInt(v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindBoolean:
		if v.b {
			return "True"
		}
		return "False"
	default:
		return "None"
	}
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// formatFloat writes the shortest representation that parses back to the
// same float64 and always reads as a float, never as an integer.
func formatFloat(f float64) string {
	var s string
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".eE") && !math.IsNaN(f) && !math.IsInf(f, 0) {
		s += ".0"
	}
	return s
}

// isIntegerLiteral accepts an optional sign followed by decimal digits.
// Leading zeros are only allowed when every digit is zero.
func isIntegerLiteral(s string) bool {
	s = trimSign(s)
	if s == "" {
		return false
	}
	allZero := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		if c != '0' {
			allZero = false
		}
	}
	return len(s) == 1 || s[0] != '0' || allZero
}

// isFloatLiteral accepts decimal floats such as 3.14, -2., .5 and 1e+20.
// A '.' or an exponent is required; inf, nan and hex forms are rejected.
func isFloatLiteral(s string) bool {
	s = trimSign(s)
	i, digits := 0, 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	dot := false
	if i < len(s) && s[i] == '.' {
		dot = true
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	exp := false
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		exp = true
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		expDigits := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			expDigits++
		}
		if expDigits == 0 {
			return false
		}
	}
	return i == len(s) && (dot || exp)
}

func trimSign(s string) string {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		return s[1:]
	}
	return s
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
