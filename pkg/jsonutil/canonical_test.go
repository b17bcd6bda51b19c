package jsonutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibepruner/vibepruner/pkg/jsonutil"
)

func TestCanonicalMarshal_SortsKeys(t *testing.T) {
	data, err := jsonutil.CanonicalMarshal(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mango": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mango":3,"zebra":1}`, string(data))
}

func TestCanonicalMarshal_NestedAndArrays(t *testing.T) {
	data, err := jsonutil.CanonicalMarshal(map[string]any{
		"b": map[string]any{"y": nil, "x": true},
		"a": []any{1, "two", 3.5},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,"two",3.5],"b":{"x":true,"y":null}}`, string(data))
}

func TestCanonicalMarshal_StructFieldOrderIrrelevant(t *testing.T) {
	type first struct {
		A string `json:"a"`
		B int    `json:"b"`
	}
	type second struct {
		B int    `json:"b"`
		A string `json:"a"`
	}

	d1, err := jsonutil.CanonicalMarshal(first{A: "x", B: 7})
	require.NoError(t, err)
	d2, err := jsonutil.CanonicalMarshal(second{A: "x", B: 7})
	require.NoError(t, err)
	assert.Equal(t, string(d1), string(d2))
}

func TestCanonicalSHA256_Deterministic(t *testing.T) {
	v := map[string]any{"op": "move", "source": "/a", "dest": "/b"}

	h1, err := jsonutil.CanonicalSHA256(v)
	require.NoError(t, err)
	h2, err := jsonutil.CanonicalSHA256(v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestCanonicalSHA256_SensitiveToValues(t *testing.T) {
	h1, err := jsonutil.CanonicalSHA256(map[string]any{"n": 1})
	require.NoError(t, err)
	h2, err := jsonutil.CanonicalSHA256(map[string]any{"n": 2})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
