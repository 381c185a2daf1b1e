package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	out, err := Marshal(map[string]any{
		"zeta":  1,
		"alpha": 2,
		"mid":   3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(out))
}

func TestMarshal_NestedStructures(t *testing.T) {
	out, err := Marshal(map[string]any{
		"b": map[string]any{"y": "2", "x": "1"},
		"a": []any{"first", map[string]any{"k": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["first",{"k":true}],"b":{"x":"1","y":"2"}}`, string(out))
}

// Integral values must hash identically however they arrive: int,
// float64 from a JSON decode, or json.Number.
func TestMarshal_NumberNormalization(t *testing.T) {
	a, err := Marshal(map[string]any{"n": 2})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"n": float64(2)})
	require.NoError(t, err)
	c, err := Marshal(map[string]any{"n": json.Number("2")})
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, string(a), string(c))
	assert.Equal(t, `{"n":2}`, string(a))
}

func TestMarshal_DeterministicAcrossRuns(t *testing.T) {
	payload := map[string]any{
		"title":   "Annual meeting",
		"present": []any{"alice", "bob"},
		"votes":   map[string]any{"for": 3, "against": 0},
	}

	first, err := Marshal(payload)
	require.NoError(t, err)
	for range 20 {
		again, err := Marshal(payload)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshal_RejectsUnsupportedTypes(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}

func TestNormalize_CollapsesTypedValues(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
		Count int    `json:"count"`
	}

	normalized, err := Normalize(payload{Title: "minutes", Count: 2})
	require.NoError(t, err)

	out, err := Marshal(normalized)
	require.NoError(t, err)
	assert.Equal(t, `{"count":2,"title":"minutes"}`, string(out))
}
