package sqlstore

import (
	"context"
	"iter"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/store"
)

var (
	testCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CHF"}
	testSectors    = []string{
		"Energy", "Materials", "Industrials", "Utilities", "Healthcare",
		"Financials", "Consumer Discretionary", "Consumer Staples",
		"Information Technology", "Real Estate",
	}
	testCountries = []string{"US", "FR", "GB", "DE", "JP"}
)

type fixture struct {
	entities   []entity.Entity
	sectors    []entity.Entity
	currencies []entity.Entity
}

func newFixture(n int, seed uint64) fixture {
	r := rand.New(rand.NewPCG(seed, seed+1))
	var f fixture
	for i := range n {
		f.entities = append(f.entities, entity.NewFSEntity(int64(i),
			testCountries[r.IntN(len(testCountries))],
			testCurrencies[r.IntN(len(testCurrencies))],
			ir.IRInt(r.IntN(len(testSectors)))))
	}
	for i, name := range testSectors {
		f.sectors = append(f.sectors, entity.NewSector(int64(i), name))
	}
	for i, code := range testCurrencies {
		f.currencies = append(f.currencies, entity.NewCurrency(int64(i), code))
	}
	return f
}

func (f fixture) sqlite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := openTestStore(t, WithBatchSize(100))
	for name, load := range map[string]struct {
		schema entity.Schema
		rows   []entity.Entity
	}{
		"fsentity":   {entity.FSEntitySchema, f.entities},
		"sectors":    {entity.SectorSchema, f.sectors},
		"currencies": {entity.CurrencySchema, f.currencies},
	} {
		require.NoError(t, s.Register(ctx, name, load.schema))
		_, err := s.Load(ctx, name, slices.Values(load.rows))
		require.NoError(t, err)
	}
	return s
}

// memory builds single-partition stores so row order is id order, as it
// is in SQL.
func (f fixture) memory(t *testing.T) *store.Catalog {
	t.Helper()
	ctx := context.Background()
	c := store.NewCatalog()
	for name, load := range map[string]struct {
		schema entity.Schema
		rows   []entity.Entity
	}{
		"fsentity":   {entity.FSEntitySchema, f.entities},
		"sectors":    {entity.SectorSchema, f.sectors},
		"currencies": {entity.CurrencySchema, f.currencies},
	} {
		s, err := store.New(load.schema, store.WithPartitions(1))
		require.NoError(t, err)
		_, err = s.Load(ctx, slices.Values(load.rows))
		require.NoError(t, err)
		require.NoError(t, c.Register(name, s))
	}
	return c
}

var sectorJoin = &query.Join{Store: "sectors", LocalField: "sector", ForeignField: "id"}

func cannedRequests() map[string]query.Request {
	return map[string]query.Request{
		"scan": {Kind: query.KindScan, Store: "fsentity"},
		"filter_country": {Kind: query.KindFilter, Store: "fsentity",
			Filters: ir.IRObject{"issue_country": ir.IRString("US")}},
		"filter_country_currency": {Kind: query.KindFilter, Store: "fsentity",
			Filters: ir.IRObject{"issue_country": ir.IRString("GB"), "currency_code": ir.IRString("GBP")}},
		"filter_unindexed": {Kind: query.KindFilter, Store: "fsentity",
			Filters: ir.IRObject{"liquidity_score": ir.IRInt(7)}},
		"country_currency_counts": {Kind: query.KindFilterAndGroup, Store: "fsentity",
			Filters: ir.IRObject{"issue_country": ir.IRString("FR")}, GroupBy: "currency_code"},
		"sector_counts": {Kind: query.KindJoinGroup, Store: "fsentity",
			Join: sectorJoin, GroupBy: "sector_name"},
		"currency_sector_counts": {Kind: query.KindJoinGroup, Store: "fsentity",
			Filters: ir.IRObject{"currency_code": ir.IRString("USD")}, Join: sectorJoin, GroupBy: "sector_name"},
		"entity_sectors": {Kind: query.KindJoin, Store: "fsentity", Join: sectorJoin,
			Project: []string{"id", "issue_country", "sector_name", "currency_code"}},
		"currency_join": {Kind: query.KindJoin, Store: "fsentity",
			Join:    &query.Join{Store: "currencies", LocalField: "currency_code", ForeignField: "currency_code"},
			Filters: ir.IRObject{"issue_country": ir.IRString("DE")}},
	}
}

func drain(t *testing.T) func(iter.Seq[query.Row], error) []query.Row {
	return func(seq iter.Seq[query.Row], err error) []query.Row {
		t.Helper()
		require.NoError(t, err)
		return slices.Collect(seq)
	}
}

func TestQuery_AgreesWithMemoryStore(t *testing.T) {
	f := newFixture(500, 7)
	sqlite := f.sqlite(t)
	memory := f.memory(t)
	ctx := context.Background()

	for name, req := range cannedRequests() {
		t.Run(name, func(t *testing.T) {
			want := drain(t)(memory.Query(ctx, req))
			got := drain(t)(sqlite.Query(ctx, req))

			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Columns, got[i].Columns, "row %d", i)
				assert.Equal(t, want[i].Values, got[i].Values, "row %d", i)
			}
		})
	}
}

func TestQuery_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "fsentity", entity.FSEntitySchema))

	rows := drain(t)(s.Query(ctx, query.Request{Kind: query.KindScan, Store: "fsentity"}))
	assert.Empty(t, rows)

	rows = drain(t)(s.Query(ctx, query.Request{Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"issue_country": ir.IRString("US")}}))
	assert.Empty(t, rows)
}

func TestQuery_TypedReferenceFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "fsentity", entity.FSEntitySchema))
	_, err := s.Load(ctx, "fsentity", slices.Values([]entity.Entity{
		entity.NewFSEntity(1, "US", "USD", ir.IRInt(4)),
		entity.NewFSEntity(2, "US", "USD", ir.IRString("4")),
	}))
	require.NoError(t, err)

	rows := drain(t)(s.Query(ctx, query.Request{Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"sector": ir.IRInt(4)}, Project: []string{"id", "sector"}}))
	require.Len(t, rows, 1)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(4)}, rows[0].Values)
}

func TestQuery_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "fsentity", entity.FSEntitySchema))

	_, err := s.Query(ctx, query.Request{Kind: query.KindScan, Store: "ghost"})
	assert.True(t, query.IsUnknownStore(err))

	_, err = s.Query(ctx, query.Request{Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"rating": ir.IRInt(1)}})
	assert.True(t, query.IsInvalidQuery(err))
}

func TestCompile_UsesRegisteredSchemas(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Register(context.Background(), "sectors", entity.SectorSchema))

	sql, params, err := s.Compile(query.Request{Kind: query.KindScan, Store: "sectors"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "sector_name" FROM "sectors" ORDER BY "id" ASC COLLATE BINARY`, sql)
	assert.Empty(t, params)
}

func TestFromColumn(t *testing.T) {
	tests := []struct {
		in   any
		want ir.IRValue
	}{
		{nil, ir.IRNull{}},
		{int64(3), ir.IRInt(3)},
		{"x", ir.IRString("x")},
		{[]byte("y"), ir.IRString("y")},
	}
	for _, tt := range tests {
		got, err := fromColumn(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := fromColumn(1.5)
	assert.Error(t, err)
}
