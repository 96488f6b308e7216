package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounterCounts(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)

	assert.Equal(t, 0, counter.Count(""))
	assert.Greater(t, counter.Count("hello world"), 0)

	long := strings.Repeat("some words here ", 100)
	assert.Greater(t, counter.Count(long), counter.Count("some words here"))
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	counter, err := NewTokenCounter("mistralai/Mixtral-8x7B-Instruct-v0.1")
	require.NoError(t, err)
	assert.Greater(t, counter.Count("hello"), 0)
	assert.Equal(t, "mistralai/Mixtral-8x7B-Instruct-v0.1", counter.GetModel())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("abc"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}
