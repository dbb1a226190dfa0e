package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/loader"
	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/server"
	"github.com/kemiz/fsgrid/internal/testutil"
	"github.com/kemiz/fsgrid/internal/workload"
)

func startServer(t *testing.T, n int) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := loader.NewCatalog(loader.Stores(false))
	require.NoError(t, err)

	pools := loader.Pools{
		Countries:  []string{"US", "FR"},
		Currencies: []string{"USD", "EUR"},
		Sectors:    []string{"Energy", "Utilities", "Financials"},
	}
	ld := loader.New(c, loader.NewGenerator(pools, testutil.Source(testutil.Seed)))
	require.NoError(t, ld.LoadReference(ctx))
	_, err = ld.LoadEntities(ctx, n)
	require.NoError(t, err)

	ts := httptest.NewServer(server.New(c, ":0").Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL + "/")
}

func TestHealthAndStores(t *testing.T) {
	c := startServer(t, 40)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 40+2+3, h.Size)

	stores, err := c.Stores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 3)
	assert.Equal(t, loader.StoreEntities, stores[1].Name)
	assert.Equal(t, 40, stores[1].Size)
}

func TestQueryDefaultWorkload(t *testing.T) {
	c := startServer(t, 300)
	reqs, err := workload.Default().Requests(workload.Params{
		"country":  ir.IRString("US"),
		"currency": ir.IRString("USD"),
	})
	require.NoError(t, err)

	for _, n := range reqs {
		res, rtt, err := c.Query(context.Background(), n)
		require.NoError(t, err, n.Name)
		assert.Equal(t, n.Name, res.Name)
		assert.Equal(t, n.Request.Kind, res.Request.Kind)
		assert.LessOrEqual(t, len(res.Rows), n.Request.Limit())
		assert.GreaterOrEqual(t, rtt, res.Elapsed)
	}
}

func TestQueryErrorsKeepTheirCode(t *testing.T) {
	c := startServer(t, 5)
	ctx := context.Background()

	_, _, err := c.Query(ctx, query.Named{Name: "ghost", Request: query.Request{Kind: query.KindScan, Store: "ghost"}})
	assert.True(t, query.IsUnknownStore(err))

	_, _, err = c.Query(ctx, query.Named{Name: "bad", Request: query.Request{
		Kind: query.KindFilter, Store: loader.StoreEntities,
		Filters: ir.IRObject{"rating": ir.IRInt(3)},
	}})
	assert.True(t, query.IsInvalidQuery(err))
	var qe *query.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "rating", qe.Field)
}

func TestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL).Stores(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "upstream gone", se.Message)
}

func TestUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url).Health(context.Background())
	assert.Error(t, err)
}
