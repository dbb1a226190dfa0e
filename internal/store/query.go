package store

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

// Query executes a non-join request. Join kinds need the reference store
// and go through QueryJoin (or a Catalog, which resolves it by name).
//
// The request is validated and resolved before anything runs; an unknown
// field or a filter value of the wrong type yields an INVALID_QUERY
// error. Matching is evaluated per partition in parallel against the
// current snapshot; rows are produced lazily in partition order, ids
// ascending. Group rows are sorted by key.
func (s *Store) Query(ctx context.Context, req query.Request) (iter.Seq[query.Row], error) {
	if req.Kind.IsJoin() {
		return nil, query.Invalid("join", "%s needs a reference store", req.Kind)
	}
	return s.QueryJoin(ctx, req, nil)
}

// QueryJoin executes req, joining against ref for join kinds. Entities
// whose join field has no match in ref are dropped, never reported as
// errors.
func (s *Store) QueryJoin(ctx context.Context, req query.Request, ref *Store) (iter.Seq[query.Row], error) {
	var foreign *entity.Schema
	if ref != nil && req.Kind.IsJoin() {
		fs := ref.schema
		foreign = &fs
	}
	p, err := compile(req, s.schema, foreign)
	if err != nil {
		return nil, err
	}
	s.stats.queries.Add(1)

	snap := s.current.Load()

	var table joinTable
	if p.JoinForeign != nil {
		table = buildJoinTable(ref.current.Load(), p.JoinForeign.Name)
	}

	ids, err := p.match(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Store, err)
	}

	if p.Group != nil {
		rows, err := p.countGroups(ctx, snap, ids, table)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", req.Store, err)
		}
		return slices.Values(rows), nil
	}

	labels := p.Labels()
	return func(yield func(query.Row) bool) {
		for i, part := range snap.parts {
			for _, id := range ids[i] {
				e := part.entities[id]
				if table == nil {
					if !yield(p.row(labels, e, nil)) {
						return
					}
					continue
				}
				for _, f := range table.probe(e, p.JoinLocal.Name) {
					if !yield(p.row(labels, e, f)) {
						return
					}
				}
			}
		}
	}, nil
}

// match returns, per partition, the ascending ids satisfying every filter.
func (p *plan) match(ctx context.Context, snap *snapshot) ([][]int64, error) {
	ids := make([][]int64, len(snap.parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, part := range snap.parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ids[i] = p.candidates(part)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// candidates intersects the posting lists of indexed filters, smallest
// first, and checks the remaining filters against each entity. Without
// indexed filters every entity of the partition is checked.
func (p *plan) candidates(part *partition) []int64 {
	var sets []map[int64]struct{}
	var residual []term
	for _, t := range p.terms {
		if !t.field.Indexed {
			residual = append(residual, t)
			continue
		}
		set := part.lookup(t.field.Name, t.key)
		if len(set) == 0 {
			return nil
		}
		sets = append(sets, set)
	}

	if len(sets) == 0 {
		if len(residual) == 0 {
			return part.ids
		}
		var out []int64
		for _, id := range part.ids {
			if matches(part.entities[id], residual) {
				out = append(out, id)
			}
		}
		return out
	}

	slices.SortFunc(sets, func(a, b map[int64]struct{}) int {
		return cmp.Compare(len(a), len(b))
	})
	var out []int64
	for id := range sets[0] {
		if inAll(id, sets[1:]) && matches(part.entities[id], residual) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func inAll(id int64, sets []map[int64]struct{}) bool {
	for _, set := range sets {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func matches(e entity.Entity, terms []term) bool {
	for _, t := range terms {
		if fieldKey(e, t.field.Name) != t.key {
			return false
		}
	}
	return true
}

func (p *plan) row(labels []string, local, foreign entity.Entity) query.Row {
	values := make([]ir.IRValue, len(p.Columns))
	for i, c := range p.Columns {
		values[i] = columnValue(c, local, foreign)
	}
	return query.Row{Columns: labels, Values: values}
}

type groupCount struct {
	value ir.IRValue
	count int64
}

// countGroups counts matched rows per group value. Partitions are counted
// in parallel and merged; the result is sorted by group value.
func (p *plan) countGroups(ctx context.Context, snap *snapshot, ids [][]int64, table joinTable) ([]query.Row, error) {
	partial := make([]map[string]*groupCount, len(snap.parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, part := range snap.parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts := make(map[string]*groupCount)
			add := func(local, foreign entity.Entity) {
				v := columnValue(*p.Group, local, foreign)
				k := ir.Key(v)
				gc, ok := counts[k]
				if !ok {
					gc = &groupCount{value: v}
					counts[k] = gc
				}
				gc.count++
			}
			for _, id := range ids[i] {
				e := part.entities[id]
				if table == nil {
					add(e, nil)
					continue
				}
				for _, f := range table.probe(e, p.JoinLocal.Name) {
					add(e, f)
				}
			}
			partial[i] = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]*groupCount)
	for _, counts := range partial {
		for k, gc := range counts {
			if m, ok := merged[k]; ok {
				m.count += gc.count
				continue
			}
			merged[k] = &groupCount{value: gc.value, count: gc.count}
		}
	}

	groups := make([]*groupCount, 0, len(merged))
	for _, gc := range merged {
		groups = append(groups, gc)
	}
	slices.SortFunc(groups, func(a, b *groupCount) int {
		return ir.Compare(a.value, b.value)
	})

	labels := p.Labels()
	rows := make([]query.Row, len(groups))
	for i, gc := range groups {
		rows[i] = query.Row{
			Columns: labels,
			Values:  []ir.IRValue{gc.value, ir.IRInt(gc.count)},
		}
	}
	return rows, nil
}

// joinTable is the build side of a hash join: reference entities keyed
// by the type-tagged value of their join field, each bucket in id order.
type joinTable map[string][]entity.Entity

func buildJoinTable(snap *snapshot, field string) joinTable {
	t := make(joinTable)
	for _, part := range snap.parts {
		for _, id := range part.ids {
			e := part.entities[id]
			v, ok := e.Get(field)
			if !ok {
				continue
			}
			if _, null := v.(ir.IRNull); null || v == nil {
				continue
			}
			k := ir.Key(v)
			t[k] = append(t[k], e)
		}
	}
	for _, bucket := range t {
		slices.SortFunc(bucket, func(a, b entity.Entity) int {
			return cmp.Compare(a.ID(), b.ID())
		})
	}
	return t
}

// probe returns the reference entities matching e's join field. A
// dangling or null reference matches nothing.
func (t joinTable) probe(e entity.Entity, field string) []entity.Entity {
	v, ok := e.Get(field)
	if !ok || v == nil {
		return nil
	}
	if _, null := v.(ir.IRNull); null {
		return nil
	}
	return t[ir.Key(v)]
}
