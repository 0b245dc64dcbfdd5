package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docstore-io/docstore/blobstore"
)

func testSchemaV1() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": "integer"},
		},
		"required":             []any{"value"},
		"additionalProperties": false,
	}
}

func testSchemaV2() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value":    map[string]any{"type": "integer"},
			"newValue": map[string]any{"type": "integer"},
		},
		"required":             []any{"value", "newValue"},
		"additionalProperties": false,
	}
}

// fastRetry keeps contention tests quick.
func fastRetry() RetryConfig {
	return RetryConfig{
		Retries:             10,
		DelayFactor:         time.Millisecond,
		RandomizationFactor: 0.25,
		MaxDelay:            20 * time.Millisecond,
	}
}

func newTestContainer(t *testing.T, store blobstore.Store, name string, schema map[string]any, opts ...Option) *Container {
	t.Helper()

	opts = append([]Option{WithRetryConfig(fastRetry())}, opts...)
	c, err := New(store, name, schema, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	return c
}
