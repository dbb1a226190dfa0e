package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsTypeTagged(t *testing.T) {
	assert.NotEqual(t, Key(IRInt(1)), Key(IRString("1")))
	assert.Equal(t, Key(IRNull{}), Key(nil))
	assert.Equal(t, "s:US", Key(IRString("US")))
	assert.Equal(t, "i:-7", Key(IRInt(-7)))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(IRString("a"), IRString("a")))
	assert.False(t, Equal(IRString("a"), IRString("b")))
	assert.False(t, Equal(IRInt(3), IRString("3")))
	assert.True(t, Equal(IRNull{}, nil))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want int
	}{
		{"null before int", IRNull{}, IRInt(-100), -1},
		{"int before string", IRInt(999), IRString(""), -1},
		{"ints numeric", IRInt(2), IRInt(10), -1},
		{"strings bytewise", IRString("b"), IRString("a"), 1},
		{"equal", IRString("x"), IRString("x"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    IRValue
		wantErr bool
	}{
		{"string", "GBP", IRString("GBP"), false},
		{"int", 5, IRInt(5), false},
		{"int64", int64(-5), IRInt(-5), false},
		{"integral float", float64(12), IRInt(12), false},
		{"fractional float", 1.5, nil, true},
		{"json number", json.Number("42"), IRInt(42), false},
		{"json float", json.Number("4.2"), nil, true},
		{"nil", nil, IRNull{}, false},
		{"bool", true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToAny(t *testing.T) {
	assert.Equal(t, "x", ToAny(IRString("x")))
	assert.Equal(t, int64(3), ToAny(IRInt(3)))
	assert.Nil(t, ToAny(IRNull{}))
	assert.Equal(t, map[string]any{"a": int64(1)}, ToAny(IRObject{"a": IRInt(1)}))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "US", Format(IRString("US")))
	assert.Equal(t, "7", Format(IRInt(7)))
	assert.Equal(t, "null", Format(IRNull{}))
	assert.Equal(t, "{a=1, b=x}", Format(IRObject{"b": IRString("x"), "a": IRInt(1)}))
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{
		"issue_country": IRString("FR"),
		"sector":        IRInt(3),
		"missing":       IRNull{},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"issue_country":"FR","missing":null,"sector":3}`, string(data))

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, obj, decoded)
}

func TestUnmarshalIRValueRejectsFloats(t *testing.T) {
	_, err := UnmarshalIRValue([]byte("1.0"))
	require.Error(t, err)

	v, err := UnmarshalIRValue([]byte("10"))
	require.NoError(t, err)
	assert.Equal(t, IRInt(10), v)
}
