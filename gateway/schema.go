package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// FieldType is the JSON type a response field must carry.
type FieldType int

const (
	String FieldType = iota
	Number
	Bool
	Array
	Object
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Field describes one column of a row schema.
type Field struct {
	Name     string
	Type     FieldType
	Optional bool
}

// Required declares a field that must be present and non-null.
func Required(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// Optional declares a field that may be absent or null.
func Optional(name string, t FieldType) Field {
	return Field{Name: name, Type: t, Optional: true}
}

// Decode validates row against fields and unmarshals it into dst. Any
// violation is reported as ErrMalformed so callers treat it like any other
// gateway failure.
func Decode(row Row, dst any, fields ...Field) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: encode row: %v", ErrMalformed, err)
	}
	if err := Validate(raw, fields...); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Validate checks a raw JSON object against fields.
func Validate(raw []byte, fields ...Field) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return fmt.Errorf("%w: expected object", ErrMalformed)
	}
	for _, f := range fields {
		v := doc.Get(gjsonEscape(f.Name))
		if !v.Exists() || v.Type == gjson.Null {
			if f.Optional {
				continue
			}
			return fmt.Errorf("%w: missing field %q", ErrMalformed, f.Name)
		}
		if !matches(v, f.Type) {
			return fmt.Errorf("%w: field %q is not a %s", ErrMalformed, f.Name, f.Type)
		}
	}
	return nil
}

func matches(v gjson.Result, t FieldType) bool {
	switch t {
	case String:
		return v.Type == gjson.String
	case Number:
		return v.Type == gjson.Number
	case Bool:
		return v.Type == gjson.True || v.Type == gjson.False
	case Array:
		return v.IsArray()
	case Object:
		return v.IsObject()
	default:
		return false
	}
}

func gjsonEscape(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, name[i])
	}
	return string(out)
}
