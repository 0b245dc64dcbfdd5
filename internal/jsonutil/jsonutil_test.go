package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepCopy(t *testing.T) {
	orig := map[string]any{
		"a": float64(1),
		"b": []any{float64(1), float64(2)},
		"c": map[string]any{"nested": "x"},
	}

	cp, err := DeepCopy(orig)
	require.NoError(t, err)
	assert.Equal(t, orig, cp)

	cp.(map[string]any)["c"].(map[string]any)["nested"] = "mutated"
	assert.Equal(t, "x", orig["c"].(map[string]any)["nested"])
}

func TestCanonicalEqual(t *testing.T) {
	a := map[string]any{"x": float64(1), "y": "s"}
	b := map[string]any{"y": "s", "x": float64(1)}

	eq, err := CanonicalEqual(a, b)
	require.NoError(t, err)
	assert.True(t, eq)

	b["x"] = float64(2)
	eq, err = CanonicalEqual(a, b)
	require.NoError(t, err)
	assert.False(t, eq)
}
