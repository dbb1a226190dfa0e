package store

import (
	"context"
	"iter"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

var (
	testCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CHF"}
	testSectors    = []string{
		"Energy", "Materials", "Industrials", "Utilities", "Healthcare",
		"Financials", "Consumer Discretionary", "Consumer Staples",
		"Information Technology", "Real Estate",
	}
	testCountries = []string{"US", "FR", "GB", "DE", "JP", "CH", "IT"}
)

// newTestStore creates a store with the given schema and fails the test
// on error.
func newTestStore(t *testing.T, schema entity.Schema, opts ...Option) *Store {
	t.Helper()
	s, err := New(schema, opts...)
	require.NoError(t, err)
	return s
}

// loadAll loads entities and fails the test on error.
func loadAll(t *testing.T, s *Store, es ...entity.Entity) LoadStats {
	t.Helper()
	stats, err := s.Load(context.Background(), slices.Values(es))
	require.NoError(t, err)
	return stats
}

// syntheticEntities builds n FSEntities with ids 0..n-1 and attributes
// picked by a seeded source.
func syntheticEntities(n int, seed uint64) []entity.Entity {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]entity.Entity, n)
	for i := range n {
		out[i] = entity.NewFSEntity(int64(i),
			testCountries[r.IntN(len(testCountries))],
			testCurrencies[r.IntN(len(testCurrencies))],
			ir.IRInt(r.IntN(len(testSectors))))
	}
	return out
}

// newTestCatalog builds a catalog with an fsentity store of n synthetic
// entities plus fully loaded sectors and currencies stores.
func newTestCatalog(t *testing.T, n int) *Catalog {
	t.Helper()
	c := NewCatalog()

	fs := newTestStore(t, entity.FSEntitySchema, WithBufferSize(64))
	loadAll(t, fs, syntheticEntities(n, 42)...)
	require.NoError(t, c.Register("fsentity", fs))

	sectors := newTestStore(t, entity.SectorSchema, WithPartitions(1))
	var ss []entity.Entity
	for i, name := range testSectors {
		ss = append(ss, entity.NewSector(int64(i), name))
	}
	loadAll(t, sectors, ss...)
	require.NoError(t, c.Register("sectors", sectors))

	currencies := newTestStore(t, entity.CurrencySchema, WithPartitions(1))
	var cs []entity.Entity
	for i, code := range testCurrencies {
		cs = append(cs, entity.NewCurrency(int64(i), code))
	}
	loadAll(t, currencies, cs...)
	require.NoError(t, c.Register("currencies", currencies))

	return c
}

// collect drains a row sequence.
func collect(t *testing.T) func(iter.Seq[query.Row], error) []query.Row {
	return func(seq iter.Seq[query.Row], err error) []query.Row {
		t.Helper()
		require.NoError(t, err)
		return slices.Collect(seq)
	}
}

// ids extracts the "id" column of rows.
func ids(t *testing.T, rows []query.Row) []int64 {
	t.Helper()
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Get("id")
		require.True(t, ok, "row has no id column: %v", r)
		out = append(out, int64(v.(ir.IRInt)))
	}
	return out
}

// linearFilter is the reference implementation filter results are
// checked against.
func linearFilter(es []entity.Entity, filters map[string]ir.IRValue) []int64 {
	var out []int64
	for _, e := range es {
		ok := true
		for field, want := range filters {
			got, _ := e.Get(field)
			if !ir.Equal(got, want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, e.ID())
		}
	}
	return out
}

func sumCounts(t *testing.T, rows []query.Row) int64 {
	t.Helper()
	var total int64
	for _, r := range rows {
		v, ok := r.Get(query.CountColumn)
		require.True(t, ok)
		total += int64(v.(ir.IRInt))
	}
	return total
}
