package types

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionScores_MarshalOrder(t *testing.T) {
	dims := DimensionScores{}
	for _, d := range AllDimensions {
		dims[d] = Score(0.5)
	}
	dims[DimLanguages] = NA()

	raw, err := json.Marshal(dims)
	require.NoError(t, err)

	// 键顺序与 AllDimensions 一致，报告逐字节可复现
	var ordered []string
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)
	for dec.More() {
		key, err := dec.Token()
		require.NoError(t, err)
		ordered = append(ordered, key.(string))
		var ds DimensionScore
		require.NoError(t, dec.Decode(&ds))
	}
	require.Len(t, ordered, len(AllDimensions))
	for i, d := range AllDimensions {
		assert.Equal(t, string(d), ordered[i])
	}

	// 往返解码还原同一内容
	var restored DimensionScores
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, dims, restored)
}

func TestDimensionScores_MarshalNil(t *testing.T) {
	var dims DimensionScores
	raw, err := json.Marshal(dims)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestScore_Clamps(t *testing.T) {
	assert.Equal(t, 0.0, Score(-0.3).Value)
	assert.Equal(t, 1.0, Score(1.7).Value)
	assert.True(t, Score(0.4).Applicable)
	assert.False(t, NA().Applicable)
}
