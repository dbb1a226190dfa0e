package query

import (
	"github.com/kemiz/fsgrid/internal/ir"
)

// Validate checks that the request is well formed for its kind:
//
//   - SCAN takes no filters, grouping or join
//   - FILTER needs at least one filter
//   - FILTER_AND_GROUP needs GroupBy and no join
//   - JOIN_GROUP needs GroupBy and a join
//   - JOIN needs a join and no GroupBy
//
// Filter values must be strings or integers. Field names are not checked
// here; the executing store resolves them against its schema.
//
// Validate is a pure function. Errors are *Error with ErrCodeInvalidQuery.
func (r Request) Validate() error {
	switch r.Kind {
	case KindScan, KindFilter, KindFilterAndGroup, KindJoinGroup, KindJoin:
	case "":
		return Invalid("kind", "kind is required")
	default:
		return Invalid("kind", "unknown kind %q", r.Kind)
	}

	if r.Store == "" {
		return Invalid("store", "store is required")
	}
	if r.PageSize < 0 {
		return Invalid("page_size", "page size must not be negative, got %d", r.PageSize)
	}

	if r.Kind == KindScan && len(r.Filters) > 0 {
		return Invalid("filters", "SCAN does not take filters")
	}
	if r.Kind == KindFilter && len(r.Filters) == 0 {
		return Invalid("filters", "FILTER needs at least one filter")
	}
	for _, field := range r.Filters.SortedKeys() {
		if field == "" {
			return Invalid("filters", "filter field name is empty")
		}
		switch r.Filters[field].(type) {
		case ir.IRString, ir.IRInt:
		default:
			return Invalid(field, "filter value must be a string or integer, got %T", r.Filters[field])
		}
	}

	if r.Kind.IsGroup() {
		if r.GroupBy == "" {
			return Invalid("group_by", "%s needs group_by", r.Kind)
		}
		if len(r.Project) > 0 {
			return Invalid("project", "%s rows are (key, count); project is not allowed", r.Kind)
		}
	} else if r.GroupBy != "" {
		return Invalid("group_by", "%s does not take group_by", r.Kind)
	}

	if r.Kind.IsJoin() {
		if r.Join == nil {
			return Invalid("join", "%s needs a join", r.Kind)
		}
		if r.Join.Store == "" {
			return Invalid("join.store", "join store is required")
		}
		if r.Join.LocalField == "" || r.Join.ForeignField == "" {
			return Invalid("join", "join needs local_field and foreign_field")
		}
	} else if r.Join != nil {
		return Invalid("join", "%s does not take a join", r.Kind)
	}

	seen := make(map[string]bool, len(r.Project))
	for _, col := range r.Project {
		if col == "" {
			return Invalid("project", "projected column name is empty")
		}
		if seen[col] {
			return Invalid(col, "column projected twice")
		}
		seen[col] = true
	}
	return nil
}
