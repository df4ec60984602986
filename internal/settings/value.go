package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the coerced type of a configuration value.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
	KindArray
)

// Data type names as stored in config entries.
const (
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeString  = "string"
)

// Value is a configuration value coerced once at the storage boundary.
// The zero Value is an empty text value.
type Value struct {
	kind Kind
	num  float64
	b    bool
	arr  []Value
	text string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Array returns an array Value.
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Float64 returns the numeric value and whether the value is a number.
func (v Value) Float64() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// BoolVal returns the boolean value and whether the value is a boolean.
func (v Value) BoolVal() (bool, bool) {
	return v.b, v.kind == KindBool
}

// ArrayVal returns the element values and whether the value is an array.
func (v Value) ArrayVal() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

// TextVal returns the raw string and whether the value is text.
func (v Value) TextVal() (string, bool) {
	return v.text, v.kind == KindText
}

// Equal reports whether two values are identical in kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	default:
		return v.text == o.text
	}
}

// Serialize renders the value back to its stored string form.
// ParseValue(v.Serialize(), dataTypeOf(v)) returns a value equal to v.
func (v Value) Serialize() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindArray:
		raw := make([]json.RawMessage, len(v.arr))
		for i, e := range v.arr {
			raw[i] = json.RawMessage(e.Serialize())
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return "[]"
		}
		return string(b)
	default:
		return v.text
	}
}

// DataType returns the stored data_type name for the value's kind.
func (v Value) DataType() string {
	switch v.kind {
	case KindNumber:
		return TypeNumber
	case KindBool:
		return TypeBoolean
	case KindArray:
		return TypeArray
	default:
		return TypeString
	}
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Serialize() }

// ParseValue coerces a raw stored string according to the declared data type.
// A parse failure returns an error; callers decide the fallback (the resolver
// logs and falls back to the raw text so a config typo cannot crash a caller).
func ParseValue(raw, dataType string) (Value, error) {
	switch dataType {
	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as number: %w", raw, err)
		}
		return Number(f), nil
	case TypeBoolean:
		// Exact "true"/"false" only; "1"/"yes" are typos, not booleans.
		switch raw {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("parsing %q as boolean: not \"true\" or \"false\"", raw)
	case TypeArray:
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &elems); err != nil {
			return Value{}, fmt.Errorf("parsing %q as array: %w", raw, err)
		}
		vs := make([]Value, 0, len(elems))
		for _, e := range elems {
			vs = append(vs, parseJSONElement(e))
		}
		return Array(vs...), nil
	default:
		return Text(raw), nil
	}
}

// parseJSONElement coerces a JSON array element to the closest Value kind.
func parseJSONElement(raw json.RawMessage) Value {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return Number(f)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return Bool(b)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Text(s)
	}
	var nested []json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		vs := make([]Value, 0, len(nested))
		for _, e := range nested {
			vs = append(vs, parseJSONElement(e))
		}
		return Array(vs...)
	}
	return Text(string(raw))
}

// NumberConstraints bounds a numeric value for ValidateValue.
type NumberConstraints struct {
	Min *float64
	Max *float64
}

// ValidateValue reports whether a runtime value conforms to the declared data
// type. The check is strict: a string "true" is not a valid boolean. It never
// returns an error, only pass/fail.
func ValidateValue(value any, dataType string, constraints *NumberConstraints) bool {
	switch dataType {
	case TypeNumber:
		f, ok := asFloat64(value)
		if !ok {
			return false
		}
		if constraints != nil {
			if constraints.Min != nil && f < *constraints.Min {
				return false
			}
			if constraints.Max != nil && f > *constraints.Max {
				return false
			}
		}
		return true
	case TypeBoolean:
		_, ok := value.(bool)
		if !ok {
			if v, isVal := value.(Value); isVal {
				_, ok = v.BoolVal()
			}
		}
		return ok
	case TypeArray:
		switch v := value.(type) {
		case []any, []float64, []string, []Value:
			return true
		case Value:
			_, ok := v.ArrayVal()
			return ok
		default:
			return false
		}
	case TypeString:
		switch v := value.(type) {
		case string:
			return true
		case Value:
			_, ok := v.TextVal()
			return ok
		default:
			return false
		}
	default:
		return false
	}
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case Value:
		return v.Float64()
	default:
		return 0, false
	}
}
