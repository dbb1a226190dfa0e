package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/ir"
)

func TestRowJSONKeepsColumnOrder(t *testing.T) {
	row := Row{
		Columns: []string{"sector_name", "count"},
		Values:  []ir.IRValue{ir.IRString("Energy"), ir.IRInt(12)},
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"sector_name":"Energy","count":12}`, string(data))

	var decoded Row
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, row, decoded)
}

func TestRowUnmarshalRejectsNonObject(t *testing.T) {
	var r Row
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"score":1.5}`), &r))
}

func TestRowGetAndString(t *testing.T) {
	row := Row{
		Columns: []string{"id", "sector"},
		Values:  []ir.IRValue{ir.IRInt(1), ir.IRNull{}},
	}

	v, ok := row.Get("id")
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(1), v)

	_, ok = row.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, "id=1, sector=null", row.String())
}
