package value

import (
	"math"
	"strconv"
	"unicode/utf8"
)

// Canonical returns the deterministic JSON encoding of v. Object keys keep
// their stored order, numbers use the shortest representation that round
// trips, and non-finite numbers encode as null.
func Canonical(v Value) string {
	return string(AppendCanonical(nil, v))
}

// Key returns an identity key for v: the canonical encoding, except that
// NaN and ±Inf are written as the bare tokens NaN, Infinity and -Infinity.
// Distinct values never share a key, unlike Canonical where non-finite
// numbers collide with null.
func Key(v Value) string {
	return string(appendEncoded(nil, v, true))
}

// AppendCanonical appends the canonical encoding of v to dst.
func AppendCanonical(dst []byte, v Value) []byte {
	return appendEncoded(dst, v, false)
}

func appendEncoded(dst []byte, v Value, tagNonFinite bool) []byte {
	switch v.kind {
	case KindBool:
		return strconv.AppendBool(dst, v.b)
	case KindNumber:
		if tagNonFinite && !isFinite(v.n) {
			switch {
			case math.IsNaN(v.n):
				return append(dst, "NaN"...)
			case v.n > 0:
				return append(dst, "Infinity"...)
			}
			return append(dst, "-Infinity"...)
		}
		return appendNumber(dst, v.n)
	case KindString:
		return appendString(dst, v.s)
	case KindArray:
		dst = append(dst, '[')
		for i, e := range v.arr {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendEncoded(dst, e, tagNonFinite)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, k := range v.obj.keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, k)
			dst = append(dst, ':')
			dst = appendEncoded(dst, v.obj.values[i], tagNonFinite)
		}
		return append(dst, '}')
	default:
		return append(dst, "null"...)
	}
}

func appendNumber(dst []byte, n float64) []byte {
	if !isFinite(n) {
		return append(dst, "null"...)
	}
	if n == 0 {
		// -0 and 0 share one encoding.
		return append(dst, '0')
	}
	abs := math.Abs(n)
	format := byte('f')
	if abs < 1e-6 || abs >= 1e21 {
		format = 'e'
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, n, format, -1, 64)
	if format == 'e' {
		// 1e-07 -> 1e-7
		end := len(dst)
		if end-start >= 4 && dst[end-4] == 'e' && dst[end-3] == '-' && dst[end-2] == '0' {
			dst[end-2] = dst[end-1]
			dst = dst[:end-1]
		}
	}
	return dst
}

const hexDigits = "0123456789abcdef"

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			dst = append(dst, s[start:i]...)
			switch c {
			case '"', '\\':
				dst = append(dst, '\\', c)
			case '\n':
				dst = append(dst, '\\', 'n')
			case '\r':
				dst = append(dst, '\\', 'r')
			case '\t':
				dst = append(dst, '\\', 't')
			case '\b':
				dst = append(dst, '\\', 'b')
			case '\f':
				dst = append(dst, '\\', 'f')
			default:
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, s[start:i]...)
			dst = append(dst, "\ufffd"...)
			i += size
			start = i
			continue
		}
		i += size
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
