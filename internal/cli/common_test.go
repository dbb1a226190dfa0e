package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/loader"
	"github.com/kemiz/fsgrid/internal/workload"
)

func noFill(string) (ir.IRValue, bool) { return nil, false }

func TestBindParamsUsesFieldTypes(t *testing.T) {
	w, err := workload.Parse([]byte(`
name: typed
queries:
  - {name: by_sector, kind: FILTER, store: fsentity, filters: {sector: $sector}}
  - {name: by_score, kind: FILTER, store: fsentity, filters: {liquidity_score: $score}}
  - {name: by_batch, kind: FILTER, store: fsentity, filters: {batch: $batch}}
`))
	require.NoError(t, err)

	tests := []struct {
		name   string
		labels bool
		params map[string]string
		want   workload.Params
	}{
		{
			name:   "sector ids",
			params: map[string]string{"sector": "42", "score": "7", "batch": "12"},
			want:   workload.Params{"sector": ir.IRInt(42), "score": ir.IRInt(7), "batch": ir.IRString("12")},
		},
		{
			name:   "sector labels",
			labels: true,
			params: map[string]string{"sector": "42", "score": "7", "batch": "batch3"},
			want:   workload.Params{"sector": ir.IRString("42"), "score": ir.IRInt(7), "batch": ir.IRString("batch3")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bindParams(w, specSchemas(loader.Stores(tt.labels)), tt.params, noFill)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = bindParams(w, specSchemas(loader.Stores(false)),
		map[string]string{"sector": "1", "score": "high", "batch": "b"}, noFill)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--param score")
}

func TestUnbound(t *testing.T) {
	w := workload.Default()
	assert.True(t, unbound(w, nil))
	assert.True(t, unbound(w, map[string]string{"a": "1", "b": "2"}))
	assert.True(t, unbound(w, map[string]string{"country": "US"}))
	assert.False(t, unbound(w, map[string]string{"country": "US", "currency": "USD", "extra": "x"}))
}

func TestFitWorkload(t *testing.T) {
	w := workload.Default()
	fitWorkload(w, specSchemas(loader.Stores(false)))
	assert.Equal(t, entity.KeyField, w.Queries[3].Join.ForeignField)

	fitWorkload(w, specSchemas(loader.Stores(true)))
	for _, q := range w.Queries {
		if q.Join != nil {
			assert.Equal(t, "sector_name", q.Join.ForeignField, q.Name)
		}
	}
}
