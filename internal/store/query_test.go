package store

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

func TestScanYieldsEveryIDOnce(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema, WithPartitions(5))
	loadAll(t, s, syntheticEntities(257, 7)...)

	for _, pageSize := range []int{0, 1, 3, 50, 1000} {
		seen := make(map[int64]int)
		for e := range s.Scan(pageSize) {
			seen[e.ID()]++
		}
		require.Len(t, seen, 257, "page size %d", pageSize)
		for id, n := range seen {
			assert.Equal(t, 1, n, "id %d seen %d times", id, n)
		}
	}
}

func TestScanIsRestartableAndStable(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, syntheticEntities(100, 7)...)

	var first, second []int64
	seq := s.Scan(10)
	for e := range seq {
		first = append(first, e.ID())
		if len(first) == 5 {
			break
		}
	}
	for e := range seq {
		second = append(second, e.ID())
	}
	assert.Len(t, second, 100)
	assert.Equal(t, first, second[:5], "a fresh scan starts at the beginning")

	var again []int64
	for e := range s.Scan(7) {
		again = append(again, e.ID())
	}
	assert.Equal(t, second, again, "order is stable across calls")
}

func TestPages(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, syntheticEntities(23, 7)...)

	var sizes []int
	for page := range s.Pages(10) {
		sizes = append(sizes, len(page))
	}
	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestEmptyStore(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)

	assert.Empty(t, slices.Collect(s.Scan(10)))

	rows := collect(t)(s.Query(context.Background(), query.Request{
		Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"currency_code": ir.IRString("USD")},
	}))
	assert.Empty(t, rows)

	groups := collect(t)(s.Query(context.Background(), query.Request{
		Kind: query.KindFilterAndGroup, Store: "fsentity", GroupBy: "currency_code",
	}))
	assert.Empty(t, groups)
}

func TestFilterCountryScenario(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	var es []entity.Entity
	for i := range 100 {
		country := "US"
		if i >= 50 {
			country = "FR"
		}
		es = append(es, entity.NewFSEntity(int64(i), country, "USD", ir.IRInt(0)))
	}
	loadAll(t, s, es...)

	rows := collect(t)(s.Query(context.Background(), query.Request{
		Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"issue_country": ir.IRString("US")},
	}))

	got := ids(t, rows)
	slices.Sort(got)
	want := make([]int64, 50)
	for i := range want {
		want[i] = int64(i)
	}
	assert.Equal(t, want, got)
}

func TestFilterMatchesLinearScan(t *testing.T) {
	es := syntheticEntities(1000, 11)
	s := newTestStore(t, entity.FSEntitySchema, WithBufferSize(37))
	loadAll(t, s, es...)

	cases := []ir.IRObject{
		{"issue_country": ir.IRString("FR")},
		{"currency_code": ir.IRString("GBP")},
		{"sector": ir.IRInt(4)},
		{"issue_country": ir.IRString("US"), "currency_code": ir.IRString("USD")},
		{"issue_country": ir.IRString("DE"), "sector": ir.IRInt(2), "currency_code": ir.IRString("EUR")},
		{"id": ir.IRInt(500)},
		{"issue_country": ir.IRString("nowhere")},
		// Non-indexed fields fall back to a predicate scan.
		{"batch": ir.IRString("batch17")},
		{"liquidity_score": ir.IRInt(3), "currency_code": ir.IRString("USD")},
	}

	for _, filters := range cases {
		t.Run(ir.Format(filters), func(t *testing.T) {
			rows := collect(t)(s.Query(context.Background(), query.Request{
				Kind: query.KindFilter, Store: "fsentity", Filters: filters,
			}))
			got := ids(t, rows)
			slices.Sort(got)

			want := linearFilter(es, filters)
			if want == nil {
				want = []int64{}
			}
			if got == nil {
				got = []int64{}
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, syntheticEntities(300, 5)...)

	req := query.Request{Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"currency_code": ir.IRString("JPY")}}
	a := ids(t, collect(t)(s.Query(context.Background(), req)))
	b := ids(t, collect(t)(s.Query(context.Background(), req)))
	assert.ElementsMatch(t, a, b)
	assert.NotEmpty(t, a)
}

func TestFilterCaseInsensitiveField(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, entity.NewFSEntity(1, "US", "USD", ir.IRInt(0)))

	rows := collect(t)(s.Query(context.Background(), query.Request{
		Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"ISSUE_COUNTRY": ir.IRString("US")},
	}))
	assert.Equal(t, []int64{1}, ids(t, rows))
}

func TestGroupCountsSumToFilteredSize(t *testing.T) {
	es := syntheticEntities(1000, 13)
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, es...)

	tests := []struct {
		name    string
		filters ir.IRObject
		groupBy string
	}{
		{"all by currency", nil, "currency_code"},
		{"US by sector", ir.IRObject{"issue_country": ir.IRString("US")}, "sector"},
		{"EUR by country", ir.IRObject{"currency_code": ir.IRString("EUR")}, "issue_country"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := collect(t)(s.Query(context.Background(), query.Request{
				Kind: query.KindFilterAndGroup, Store: "fsentity",
				Filters: tt.filters, GroupBy: tt.groupBy,
			}))
			assert.Equal(t, int64(len(linearFilter(es, tt.filters))), sumCounts(t, rows))

			require.NotEmpty(t, rows)
			assert.Equal(t, []string{tt.groupBy, query.CountColumn}, rows[0].Columns)
			for i := 1; i < len(rows); i++ {
				assert.Negative(t, ir.Compare(rows[i-1].Values[0], rows[i].Values[0]), "groups sorted by key")
			}
		})
	}
}

func TestJoinGroupBySectorName(t *testing.T) {
	c := newTestCatalog(t, 1000)

	rows := collect(t)(c.Query(context.Background(), query.Request{
		Kind:    query.KindJoinGroup,
		Store:   "fsentity",
		Filters: ir.IRObject{"currency_code": ir.IRString("USD")},
		Join:    &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "id"},
		GroupBy: "sector_name",
	}))

	filtered := collect(t)(c.Query(context.Background(), query.Request{
		Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"currency_code": ir.IRString("USD")},
	}))

	assert.Equal(t, int64(len(filtered)), sumCounts(t, rows))
	assert.LessOrEqual(t, len(rows), len(testSectors))
	for _, r := range rows {
		assert.Contains(t, testSectors, ir.Format(r.Values[0]))
	}
}

func TestJoinDropsDanglingReferences(t *testing.T) {
	c := NewCatalog()
	fs := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, fs,
		entity.NewFSEntity(1, "US", "USD", ir.IRInt(0)),
		entity.NewFSEntity(2, "US", "USD", ir.IRInt(99)),
		entity.NewFSEntity(3, "US", "USD", ir.IRString("Energy")),
		entity.FromFields(4, entity.FSEntityFields{IssueCountry: "US"}),
	)
	sectors := newTestStore(t, entity.SectorSchema)
	loadAll(t, sectors, entity.NewSector(0, "Energy"))
	require.NoError(t, c.Register("fsentity", fs))
	require.NoError(t, c.Register("sectors", sectors))

	rows := collect(t)(c.Query(context.Background(), query.Request{
		Kind:    query.KindJoin,
		Store:   "fsentity",
		Join:    &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "id"},
		Project: []string{"id", "sector_name"},
	}))

	// Only id 1 references an existing sector id; the label "Energy" is a
	// string and never equals the integer key.
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"id", "sector_name"}, rows[0].Columns)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRString("Energy")}, rows[0].Values)
}

func TestJoinOnLabelForV1Schema(t *testing.T) {
	c := NewCatalog()
	fs := newTestStore(t, entity.FSEntitySchemaV1, WithPartitions(1))
	loadAll(t, fs,
		entity.NewFSEntity(1, "US", "USD", ir.IRString("Energy")),
		entity.NewFSEntity(2, "FR", "EUR", ir.IRString("Utilities")),
	)
	sectors := newTestStore(t, entity.SectorSchema)
	loadAll(t, sectors, entity.NewSector(0, "Energy"), entity.NewSector(1, "Utilities"))
	require.NoError(t, c.Register("w6", fs))
	require.NoError(t, c.Register("sectors", sectors))

	rows := collect(t)(c.Query(context.Background(), query.Request{
		Kind:    query.KindJoin,
		Store:   "w6",
		Join:    &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "sector_name"},
		Project: []string{"id", "sectors.id"},
	}))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "sectors.id"}, rows[0].Columns)
	assert.Equal(t, ir.IRInt(0), rows[0].Values[1])
	assert.Equal(t, ir.IRInt(1), rows[1].Values[1])
}

func TestJoinDefaultProjection(t *testing.T) {
	c := newTestCatalog(t, 20)

	rows := collect(t)(c.Query(context.Background(), query.Request{
		Kind:  query.KindJoin,
		Store: "fsentity",
		Join:  &query.Join{Store: "currencies", LocalField: "currency_code", ForeignField: "currency_code"},
	}))
	require.Len(t, rows, 20)
	assert.Equal(t, []string{
		"id", "batch", "issue_country", "sector", "billing_code",
		"currency_code", "prepayment_type", "liquidity_score",
		"currencies.id",
	}, rows[0].Columns)
}

func TestQueryStopsEarly(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, syntheticEntities(500, 1)...)

	seq, err := s.Query(context.Background(), query.Request{Kind: query.KindScan, Store: "fsentity"})
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		if n == 50 {
			break
		}
	}
	assert.Equal(t, 50, n)
}

func TestInvalidQueries(t *testing.T) {
	c := newTestCatalog(t, 10)
	sectorJoin := &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "id"}

	tests := []struct {
		name string
		req  query.Request
	}{
		{"unknown filter field", query.Request{Kind: query.KindFilter, Store: "fsentity",
			Filters: ir.IRObject{"country": ir.IRString("US")}}},
		{"wrong value type", query.Request{Kind: query.KindFilter, Store: "fsentity",
			Filters: ir.IRObject{"issue_country": ir.IRInt(1)}}},
		{"unknown group field", query.Request{Kind: query.KindFilterAndGroup, Store: "fsentity",
			GroupBy: "region"}},
		{"filter on joined store", query.Request{Kind: query.KindJoinGroup, Store: "fsentity",
			Filters: ir.IRObject{"sector_name": ir.IRString("Energy")}, Join: sectorJoin, GroupBy: "sector_name"}},
		{"unknown projection", query.Request{Kind: query.KindScan, Store: "fsentity",
			Project: []string{"id", "rating"}}},
		{"unknown qualifier", query.Request{Kind: query.KindScan, Store: "fsentity",
			Project: []string{"other.id"}}},
		{"join field on wrong side", query.Request{Kind: query.KindJoin, Store: "fsentity",
			Join: &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "fsentity.id"}}},
		{"duplicate label", query.Request{Kind: query.KindScan, Store: "fsentity",
			Project: []string{"id", "fsentity.id"}}},
		{"malformed shape", query.Request{Kind: query.KindFilter, Store: "fsentity"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Query(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, query.IsInvalidQuery(err), "got %v", err)
		})
	}
}

func TestStoreQueryRejectsJoinWithoutReference(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	_, err := s.Query(context.Background(), query.Request{
		Kind: query.KindJoin, Store: "fsentity",
		Join: &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "id"},
	})
	assert.True(t, query.IsInvalidQuery(err))
}

func TestQueryCancelledContext(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s, syntheticEntities(10, 1)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Query(ctx, query.Request{Kind: query.KindScan, Store: "fsentity"})
	assert.ErrorIs(t, err, context.Canceled)
}
