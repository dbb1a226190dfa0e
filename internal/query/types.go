package query

import (
	"fmt"
	"strings"

	"github.com/kemiz/fsgrid/internal/ir"
)

// DefaultPageSize bounds the rows a query runner materialises when the
// request leaves PageSize unset.
const DefaultPageSize = 50

// Kind tags the execution path of a Request.
type Kind string

const (
	// KindScan walks every entity of a store.
	KindScan Kind = "SCAN"

	// KindFilter returns entities matching all equality filters.
	KindFilter Kind = "FILTER"

	// KindFilterAndGroup counts filtered entities per value of GroupBy.
	KindFilterAndGroup Kind = "FILTER_AND_GROUP"

	// KindJoinGroup joins against a reference store and counts per value
	// of GroupBy, which may name a field of either side.
	KindJoinGroup Kind = "JOIN_GROUP"

	// KindJoin joins against a reference store and projects columns from
	// both sides.
	KindJoin Kind = "JOIN"
)

// Kinds lists every supported kind in documentation order.
var Kinds = []Kind{KindScan, KindFilter, KindFilterAndGroup, KindJoinGroup, KindJoin}

// ParseKind resolves a kind name, ignoring case.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown query kind %q", s)
}

// IsGroup reports whether the kind produces (key, count) rows.
func (k Kind) IsGroup() bool {
	return k == KindFilterAndGroup || k == KindJoinGroup
}

// IsJoin reports whether the kind requires a Join.
func (k Kind) IsJoin() bool {
	return k == KindJoinGroup || k == KindJoin
}

// Join describes an inner equi-join against a reference store:
// local.LocalField = Store.ForeignField.
type Join struct {
	Store        string `json:"store" yaml:"store"`
	LocalField   string `json:"local_field" yaml:"local_field"`
	ForeignField string `json:"foreign_field" yaml:"foreign_field"`
}

// Request is the tagged query description dispatched by a store.
//
// Field names are resolved against the store's schema when the request
// is executed, so Validate only checks shape. In join requests a field
// may be qualified with the reference store name ("sectors.sector_name");
// an unqualified name resolves to the local store first.
//
// Filters always apply to the local store.
type Request struct {
	Kind     Kind        `json:"kind"`
	Store    string      `json:"store"`
	Filters  ir.IRObject `json:"filters,omitempty"`
	GroupBy  string      `json:"group_by,omitempty"`
	Join     *Join       `json:"join,omitempty"`
	Project  []string    `json:"project,omitempty"`
	PageSize int         `json:"page_size,omitempty"`
}

// Limit returns the effective page size.
func (r Request) Limit() int {
	if r.PageSize > 0 {
		return r.PageSize
	}
	return DefaultPageSize
}

// Fingerprint identifies the request content independent of filter map
// order. Two requests with the same fingerprint always produce the same
// result set against an unchanged store.
func (r Request) Fingerprint() (string, error) {
	doc := map[string]any{
		"kind":      string(r.Kind),
		"store":     r.Store,
		"filters":   r.Filters,
		"group_by":  r.GroupBy,
		"page_size": r.Limit(),
	}
	if r.Join != nil {
		doc["join"] = map[string]any{
			"store":         r.Join.Store,
			"local_field":   r.Join.LocalField,
			"foreign_field": r.Join.ForeignField,
		}
	}
	if len(r.Project) > 0 {
		doc["project"] = r.Project
	}
	return ir.Fingerprint(ir.DomainQuery, doc)
}

// FilterFields returns the filter field names in canonical order.
func (r Request) FilterFields() []string {
	return r.Filters.SortedKeys()
}

// Named pairs a request with the label it is reported under.
type Named struct {
	Name    string  `json:"name"`
	Request Request `json:"request"`
}
