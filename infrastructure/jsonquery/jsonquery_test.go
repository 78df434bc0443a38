package jsonquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
	Tags     []string `json:"tags"`
}

func TestFilter_FieldMatch(t *testing.T) {
	ok, err := Filter(row{Category: "49", Amount: 100}, `$.category`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Filter(row{Amount: 100}, `$.category`)
	require.NoError(t, err)
	assert.False(t, ok, "empty string is falsy")
}

func TestFilter_NumericTruthiness(t *testing.T) {
	ok, err := Filter(row{Amount: 100}, `$.amount`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Filter(row{Amount: 0}, `$.amount`)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilter_ArrayTruthiness(t *testing.T) {
	ok, err := Filter(row{Tags: []string{"a"}}, `$.tags`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Filter(row{}, `$.tags`)
	require.NoError(t, err)
	assert.False(t, ok, "nil array is falsy")
}

func TestFilter_InvalidExpressionErrors(t *testing.T) {
	_, err := Filter(row{}, `$[`)
	require.Error(t, err)
}

func TestEval_ReturnsRawValue(t *testing.T) {
	v, err := Eval(row{Category: "49"}, `$.category`)
	require.NoError(t, err)
	assert.Equal(t, "49", v)
}
