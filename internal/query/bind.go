package query

import (
	"strings"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
)

// Column is a request field resolved to a schema field.
type Column struct {
	// Label is the output column name: the canonical field name, or
	// "store.field" for a joined field whose name also exists locally.
	Label string

	// Foreign is true for fields of the joined (reference) store.
	Foreign bool

	Field entity.Field
}

// Filter is an equality filter resolved to a local field.
type Filter struct {
	Field entity.Field
	Value ir.IRValue
}

// Bound is a Request resolved against the schemas of the stores it
// touches. Every backend executes the same Bound shape, so field
// resolution is identical across them.
type Bound struct {
	Request Request

	// Filters are in canonical filter-name order.
	Filters []Filter

	// JoinLocal and JoinForeign are set for join kinds.
	JoinLocal   *entity.Field
	JoinForeign *entity.Field

	// Group is set for group kinds; Columns otherwise.
	Group   *Column
	Columns []Column
}

// Labels returns the output column names.
func (b *Bound) Labels() []string {
	if b.Group != nil {
		return []string{b.Group.Label, CountColumn}
	}
	out := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		out[i] = c.Label
	}
	return out
}

// Bind validates req and resolves its field names.
//
// Unqualified names resolve to the local store first, then to the joined
// store. A name may be qualified with either store name
// ("sectors.sector_name"). Filters must resolve to the local store and
// their values must fit the field's declared type. Without an explicit
// projection, non-group requests return every local field followed by
// every joined field except the join key.
//
// foreign must be non-nil for join kinds and is ignored otherwise.
func Bind(req Request, local entity.Schema, foreign *entity.Schema) (*Bound, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.Kind.IsJoin() {
		foreign = nil
	} else if foreign == nil {
		return nil, Invalid("join", "%s needs a reference store", req.Kind)
	}

	r := resolver{req: req, local: local, foreign: foreign}
	b := &Bound{Request: req}

	for _, name := range req.FilterFields() {
		c, err := r.resolve(name)
		if err != nil {
			return nil, err
		}
		if c.Foreign {
			return nil, Invalid(name, "filters apply to store %q only", req.Store)
		}
		v := req.Filters[name]
		if !c.Field.Type.Accepts(v) {
			return nil, Invalid(name, "value %s does not match field type %s", ir.Format(v), c.Field.Type)
		}
		b.Filters = append(b.Filters, Filter{Field: c.Field, Value: v})
	}

	if req.Kind.IsJoin() {
		lc, err := r.resolveOn(req.Join.LocalField, false)
		if err != nil {
			return nil, err
		}
		fc, err := r.resolveOn(req.Join.ForeignField, true)
		if err != nil {
			return nil, err
		}
		b.JoinLocal, b.JoinForeign = &lc.Field, &fc.Field
	}

	if req.Kind.IsGroup() {
		c, err := r.resolve(req.GroupBy)
		if err != nil {
			return nil, err
		}
		b.Group = &c
		return b, nil
	}

	if len(req.Project) > 0 {
		for _, name := range req.Project {
			c, err := r.resolve(name)
			if err != nil {
				return nil, err
			}
			b.Columns = append(b.Columns, c)
		}
	} else {
		for _, f := range local.Fields {
			b.Columns = append(b.Columns, Column{Label: f.Name, Field: f})
		}
		if foreign != nil {
			for _, f := range foreign.Fields {
				if f.Name == b.JoinForeign.Name {
					continue
				}
				c, _ := r.lookup(f.Name, f.Name, true)
				b.Columns = append(b.Columns, c)
			}
		}
	}

	seen := make(map[string]bool, len(b.Columns))
	for _, c := range b.Columns {
		if seen[c.Label] {
			return nil, Invalid(c.Label, "column projected twice")
		}
		seen[c.Label] = true
	}
	return b, nil
}

type resolver struct {
	req     Request
	local   entity.Schema
	foreign *entity.Schema
}

func (r resolver) resolve(name string) (Column, error) {
	if qual, field, ok := strings.Cut(name, "."); ok {
		switch {
		case strings.EqualFold(qual, r.req.Store):
			return r.lookup(name, field, false)
		case r.foreign != nil && strings.EqualFold(qual, r.req.Join.Store):
			return r.lookup(name, field, true)
		default:
			return Column{}, Invalid(name, "unknown store qualifier %q", qual)
		}
	}
	if c, err := r.lookup(name, name, false); err == nil {
		return c, nil
	}
	if r.foreign != nil {
		return r.lookup(name, name, true)
	}
	return Column{}, Invalid(name, "unknown field %q", name)
}

// resolveOn resolves name on one side only. A qualifier, if present,
// must name that side's store.
func (r resolver) resolveOn(name string, foreign bool) (Column, error) {
	field := name
	if qual, rest, ok := strings.Cut(name, "."); ok {
		want := r.req.Store
		if foreign {
			want = r.req.Join.Store
		}
		if !strings.EqualFold(qual, want) {
			return Column{}, Invalid(name, "join field must belong to store %q", want)
		}
		field = rest
	}
	return r.lookup(name, field, foreign)
}

func (r resolver) lookup(orig, name string, foreign bool) (Column, error) {
	schema := r.local
	if foreign {
		schema = *r.foreign
	}
	f, ok := schema.Lookup(name)
	if !ok {
		return Column{}, Invalid(orig, "unknown field %q", orig)
	}
	label := f.Name
	if foreign {
		if _, clash := r.local.Lookup(f.Name); clash {
			label = r.req.Join.Store + "." + f.Name
		}
	}
	return Column{Label: label, Foreign: foreign, Field: f}, nil
}
