package entity

import (
	"fmt"
	"strings"

	"github.com/kemiz/fsgrid/internal/ir"
)

// Type is the declared type of an entity field.
type Type int

const (
	// TypeString fields hold IRString values.
	TypeString Type = iota
	// TypeInt fields hold IRInt values.
	TypeInt
	// TypeRef fields hold an opaque reference to another entity: either a
	// numeric id (IRInt) or a label (IRString). Joins compare them by
	// type-tagged key and never resolve them eagerly.
	TypeRef
)

// String returns the lower-case type name used in diagnostics and DDL.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeRef:
		return "ref"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{TypeString, TypeInt, TypeRef} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// Accepts reports whether v may be stored in a field of type t.
// IRNull is accepted by every type (an unset field).
func (t Type) Accepts(v ir.IRValue) bool {
	switch v.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRString:
		return t == TypeString || t == TypeRef
	case ir.IRInt:
		return t == TypeInt || t == TypeRef
	default:
		return false
	}
}

// KeyField is the name of the identifier field every schema declares.
const KeyField = "id"

// Field describes one named, typed field of a schema.
type Field struct {
	Name    string
	Type    Type
	Indexed bool
}

// Schema is the explicit descriptor a Store is constructed with. Indexed
// fields get an equality index maintained during load.
type Schema struct {
	Name    string
	Version int
	Fields  []Field
}

// Lookup finds a field by name, ignoring case.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Indexed returns the indexed fields in declaration order.
func (s Schema) Indexed() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Indexed {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames returns all field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks the descriptor itself: a name, unique field names and
// an integer id field.
func (s Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field name is required", s.Name)
		}
		lower := strings.ToLower(f.Name)
		if seen[lower] {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[lower] = true
	}
	key, ok := s.Lookup(KeyField)
	if !ok {
		return fmt.Errorf("schema %s: missing %q field", s.Name, KeyField)
	}
	if key.Type != TypeInt {
		return fmt.Errorf("schema %s: %q field must be int, got %s", s.Name, KeyField, key.Type)
	}
	return nil
}

// Check verifies that every field e exposes satisfies its declared type.
// Field contents are never validated: empty strings and dangling
// references are fine.
func (s Schema) Check(e Entity) error {
	if e == nil {
		return fmt.Errorf("%s: nil entity", s.Name)
	}
	for _, f := range s.Fields {
		v, ok := e.Get(f.Name)
		if !ok {
			return fmt.Errorf("%s %d: missing field %q", s.Name, e.ID(), f.Name)
		}
		if !f.Type.Accepts(v) {
			return fmt.Errorf("%s %d: field %q is %s, got %T", s.Name, e.ID(), f.Name, f.Type, v)
		}
	}
	return nil
}

// Built-in schemas for the financial-entity workload.
var (
	// FSEntitySchema stores the sector as a numeric Sector id.
	FSEntitySchema = Schema{
		Name:    "fsentity",
		Version: 2,
		Fields: []Field{
			{Name: "id", Type: TypeInt, Indexed: true},
			{Name: "batch", Type: TypeString},
			{Name: "issue_country", Type: TypeString, Indexed: true},
			{Name: "sector", Type: TypeRef, Indexed: true},
			{Name: "billing_code", Type: TypeString},
			{Name: "currency_code", Type: TypeString, Indexed: true},
			{Name: "prepayment_type", Type: TypeString},
			{Name: "liquidity_score", Type: TypeInt},
		},
	}

	// FSEntitySchemaV1 is the older layout where the sector is a label.
	FSEntitySchemaV1 = Schema{
		Name:    "fsentity",
		Version: 1,
		Fields: []Field{
			{Name: "id", Type: TypeInt, Indexed: true},
			{Name: "batch", Type: TypeString},
			{Name: "issue_country", Type: TypeString, Indexed: true},
			{Name: "sector", Type: TypeString, Indexed: true},
			{Name: "billing_code", Type: TypeString},
			{Name: "currency_code", Type: TypeString, Indexed: true},
			{Name: "prepayment_type", Type: TypeString},
			{Name: "liquidity_score", Type: TypeInt},
		},
	}

	SectorSchema = Schema{
		Name:    "sector",
		Version: 1,
		Fields: []Field{
			{Name: "id", Type: TypeInt, Indexed: true},
			{Name: "sector_name", Type: TypeString, Indexed: true},
		},
	}

	CurrencySchema = Schema{
		Name:    "currency",
		Version: 1,
		Fields: []Field{
			{Name: "id", Type: TypeInt, Indexed: true},
			{Name: "currency_code", Type: TypeString, Indexed: true},
		},
	}
)
