package ir

import (
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as RFC 8785 canonical JSON, the input to
// every fingerprint. Keys are sorted by UTF-16 code units, strings are
// NFC normalised and only quote, backslash and control characters are
// escaped. Floats are rejected.
//
// Accepted values: IRValue, string, int, int64, bool, []string, []any and
// map[string]any, nested freely.
func MarshalCanonical(v any) ([]byte, error) {
	var e canonicalEncoder
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

type canonicalEncoder struct {
	buf []byte
}

func (e *canonicalEncoder) value(v any) error {
	switch val := v.(type) {
	case nil, IRNull:
		e.buf = append(e.buf, "null"...)
	case IRString:
		e.string(string(val))
	case string:
		e.string(val)
	case IRInt:
		e.buf = strconv.AppendInt(e.buf, int64(val), 10)
	case int64:
		e.buf = strconv.AppendInt(e.buf, val, 10)
	case int:
		e.buf = strconv.AppendInt(e.buf, int64(val), 10)
	case bool:
		e.buf = strconv.AppendBool(e.buf, val)
	case []string:
		e.buf = append(e.buf, '[')
		for i, s := range val {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			e.string(s)
		}
		e.buf = append(e.buf, ']')
	case []any:
		e.buf = append(e.buf, '[')
		for i, elem := range val {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			if err := e.value(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		e.buf = append(e.buf, ']')
	case IRObject:
		return e.object(val.SortedKeys(), func(k string) any { return val[k] })
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)
		return e.object(keys, func(k string) any { return val[k] })
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// object writes the members in the given key order.
func (e *canonicalEncoder) object(keys []string, get func(string) any) error {
	e.buf = append(e.buf, '{')
	for i, k := range keys {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		e.string(k)
		e.buf = append(e.buf, ':')
		if err := e.value(get(k)); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	e.buf = append(e.buf, '}')
	return nil
}

const hexDigits = "0123456789abcdef"

// string writes s in NFC. Invalid UTF-8 becomes U+FFFD.
func (e *canonicalEncoder) string(s string) {
	e.buf = append(e.buf, '"')
	for _, r := range norm.NFC.String(s) {
		switch {
		case r == '"':
			e.buf = append(e.buf, `\"`...)
		case r == '\\':
			e.buf = append(e.buf, `\\`...)
		case r == '\b':
			e.buf = append(e.buf, `\b`...)
		case r == '\f':
			e.buf = append(e.buf, `\f`...)
		case r == '\n':
			e.buf = append(e.buf, `\n`...)
		case r == '\r':
			e.buf = append(e.buf, `\r`...)
		case r == '\t':
			e.buf = append(e.buf, `\t`...)
		case r < 0x20:
			e.buf = append(e.buf, '\\', 'u', '0', '0', hexDigits[r>>4], hexDigits[r&0xf])
		default:
			e.buf = utf8.AppendRune(e.buf, r)
		}
	}
	e.buf = append(e.buf, '"')
}
