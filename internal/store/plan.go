package store

import (
	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

// term is one equality filter keyed for index lookup.
type term struct {
	field entity.Field
	key   string
}

// plan is a bound request plus the index keys of its filters.
type plan struct {
	*query.Bound
	terms []term
}

func compile(req query.Request, local entity.Schema, foreign *entity.Schema) (*plan, error) {
	b, err := query.Bind(req, local, foreign)
	if err != nil {
		return nil, err
	}
	p := &plan{Bound: b}
	for _, f := range b.Filters {
		p.terms = append(p.terms, term{field: f.Field, key: ir.Key(f.Value)})
	}
	return p, nil
}

// columnValue reads c from the local or joined entity of a row.
func columnValue(c query.Column, local, foreign entity.Entity) ir.IRValue {
	e := local
	if c.Foreign {
		e = foreign
	}
	if e == nil {
		return ir.IRNull{}
	}
	v, ok := e.Get(c.Field.Name)
	if !ok || v == nil {
		return ir.IRNull{}
	}
	return v
}
