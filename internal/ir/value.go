package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface representing the field value types an
// entity can hold. Only IRNull, IRString, IRInt and IRObject implement it.
// There is no float type: entity fields are strings or integers.
type IRValue interface {
	irValue()
}

// IRNull represents an absent value (a dangling or unset reference).
type IRNull struct{}

func (IRNull) irValue() {}

func (IRNull) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// IRString represents a string field value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer field value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRObject maps field names to values. Used for filter sets and
// fingerprints; never stored as an entity field. Iterate with
// SortedKeys for a stable order.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Key returns a type-tagged string identifying v for hashing and equality.
// IRInt(1) and IRString("1") produce different keys, so a numeric
// reference never matches a string label by accident.
func Key(v IRValue) string {
	switch val := v.(type) {
	case IRString:
		return "s:" + string(val)
	case IRInt:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case nil, IRNull:
		return "n:"
	default:
		return fmt.Sprintf("?:%T", v)
	}
}

// Equal reports whether a and b hold the same type and value.
func Equal(a, b IRValue) bool {
	return Key(a) == Key(b)
}

// rank orders value types: null < int < string.
func rank(v IRValue) int {
	switch v.(type) {
	case nil, IRNull:
		return 0
	case IRInt:
		return 1
	case IRString:
		return 2
	default:
		return 3
	}
}

// Compare orders values the way SQLite orders mixed columns:
// NULL first, then integers numerically, then strings bytewise.
func Compare(a, b IRValue) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case IRInt:
		bv := b.(IRInt)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case IRString:
		return strings.Compare(string(av), string(b.(IRString)))
	}
	return 0
}

// Format renders v for diagnostics: strings unquoted, null as "null".
func Format(v IRValue) string {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case nil, IRNull:
		return "null"
	case IRObject:
		parts := make([]string, 0, len(val))
		for _, k := range val.SortedKeys() {
			parts = append(parts, k+"="+Format(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FromAny converts a decoded Go value (YAML, JSON with UseNumber, flags)
// into an IRValue. Integral numbers become IRInt; fractional numbers and
// booleans are rejected since no entity field can hold them.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an integer", val)
		}
		return IRInt(n), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("number %v is not an integer", val)
		}
		return IRInt(int64(val)), nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ToAny converts an IRValue to the Go native type used for SQL parameters
// and JSON encoding.
func ToAny(v IRValue) any {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRObject:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = ToAny(elem)
		}
		return m
	default:
		return nil
	}
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj IRObject) SortedKeys() []string {
	keys := slices.Collect(maps.Keys(obj))
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 orders by UTF-16 code units. Byte order differs from
// it for supplementary-plane characters.
func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON writes obj with keys in SortedKeys order. Strings are not
// normalised; fingerprints go through MarshalCanonical instead.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		v, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf = append(append(append(buf, key...), ':'), v...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes a JSON object of field values.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	out := make(IRObject, len(fields))
	for k, raw := range fields {
		v, err := UnmarshalIRValue(raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = v
	}
	*obj = out
	return nil
}

// MarshalIRValue encodes a single value.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRObject:
		return val.MarshalJSON()
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case nil, IRNull:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("unknown IRValue type: %T", v)
}

// UnmarshalIRValue decodes a JSON string, integer, null or object.
// Floats and booleans are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if n, ok := raw.(json.Number); ok && strings.ContainsAny(n.String(), ".eE") {
		return nil, fmt.Errorf("floats are not valid field values: %s", n)
	}
	return FromAny(raw)
}
