package docstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstore-io/docstore/blobstore"
)

func TestAppendLogBlob_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	log, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log"}, nil)
	require.NoError(t, err)

	empty, err := log.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	recordA := map[string]any{"value": float64(1)}
	recordB := map[string]any{"value": float64(2)}
	require.NoError(t, log.Append(ctx, recordA))
	require.NoError(t, log.Append(ctx, recordB))

	fragA, err := json.Marshal(recordA)
	require.NoError(t, err)
	fragB, err := json.Marshal(recordB)
	require.NoError(t, err)

	content, err := log.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, append(fragA, fragB...), content, "fragments concatenate with no separators")
}

func TestAppendLogBlob_CreateWithInitialContent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	log, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log"}, map[string]any{"value": float64(9)})
	require.NoError(t, err)

	content, err := log.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":9}`, string(content))
}

func TestAppendLogBlob_InvalidAppendLeavesLogUnchanged(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	log, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log"}, map[string]any{"value": float64(1)})
	require.NoError(t, err)
	before, err := log.Load(ctx)
	require.NoError(t, err)

	err = log.Append(ctx, map[string]any{"value": "not an integer"})
	var valErr *SchemaValidationError
	require.ErrorAs(t, err, &valErr)

	after, err := log.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAppendLogBlob_ValidatesAgainstCurrentVersion(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	newTestContainer(t, store, "c", testSchemaV1())
	c2 := newTestContainer(t, store, "c", testSchemaV2(), WithSchemaVersion(2))

	log, err := c2.CreateAppendLog(ctx, AppendLogOptions{Name: "log"}, nil)
	require.NoError(t, err)

	// Valid under v1, invalid under the current v2.
	err = log.Append(ctx, map[string]any{"value": float64(1)})
	var valErr *SchemaValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, 2, valErr.Version)

	require.NoError(t, log.Append(ctx, map[string]any{"value": float64(1), "newValue": float64(2)}))
}

func TestAppendLogBlob_AppendToMissingLog(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	log := c.newAppendLog("ghost", blobstore.Properties{})
	err := log.Append(ctx, map[string]any{"value": float64(1)})
	var nfErr *BlobNotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestAppendLogBlob_PropertiesPassThrough(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	props := blobstore.Properties{
		ContentType:     "application/x-ndjson",
		ContentLanguage: "en",
		CacheControl:    "no-cache",
	}
	_, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log", Properties: props}, nil)
	require.NoError(t, err)

	blob, err := c.LoadBlob(ctx, "log", false)
	require.NoError(t, err)
	log := blob.(*AppendLogBlob)
	assert.Equal(t, props, log.Properties())
}

func TestAppendLogBlob_Remove(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	log, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log"}, nil)
	require.NoError(t, err)

	removed, err := log.Remove(ctx, false)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = log.Remove(ctx, true)
	require.NoError(t, err)
	assert.False(t, removed)
}
