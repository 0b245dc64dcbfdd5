package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstore-io/docstore/blobstore"
)

func TestContainer_New(t *testing.T) {
	store := blobstore.NewMemoryStore()

	_, err := New(nil, "c", testSchemaV1())
	assert.Error(t, err)
	_, err = New(store, "", testSchemaV1())
	assert.Error(t, err)
	_, err = New(store, "c", nil)
	assert.Error(t, err)
	_, err = New(store, "c", testSchemaV1(), WithSchemaVersion(0))
	assert.Error(t, err)

	c, err := New(store, "c", testSchemaV1(), WithSchemaVersion(3))
	require.NoError(t, err)
	assert.Equal(t, "c", c.Name())
	assert.Equal(t, 3, c.SchemaVersion())
}

func TestContainer_RequiresInit(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c, err := New(store, "c", testSchemaV1())
	require.NoError(t, err)

	_, err = c.CreateDocument(ctx, DocumentOptions{Name: "doc"}, map[string]any{"value": float64(1)})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.ListBlobs(ctx, ListOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.LoadBlob(ctx, "doc", false)
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, c.Init(ctx))
	// Init is idempotent.
	require.NoError(t, c.Init(ctx))

	_, err = c.CreateDocument(ctx, DocumentOptions{Name: "doc"}, map[string]any{"value": float64(1)})
	require.NoError(t, err)
}

func TestContainer_ListBlobs(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	for _, name := range []string{"doc-a", "doc-b"} {
		_, err := c.CreateDocument(ctx, DocumentOptions{Name: name}, map[string]any{"value": float64(1)})
		require.NoError(t, err)
	}
	_, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log-a"}, nil)
	require.NoError(t, err)

	listing, err := c.ListBlobs(ctx, ListOptions{})
	require.NoError(t, err)

	names := make(map[string]blobstore.Kind)
	for _, entry := range listing.Entries {
		names[entry.Name] = entry.Kind
	}
	assert.Equal(t, map[string]blobstore.Kind{
		"doc-a": blobstore.KindDocument,
		"doc-b": blobstore.KindDocument,
		"log-a": blobstore.KindAppendLog,
	}, names, "schema records must not appear in listings")

	t.Run("prefix", func(t *testing.T) {
		listing, err := c.ListBlobs(ctx, ListOptions{Prefix: "log-"})
		require.NoError(t, err)
		require.Len(t, listing.Entries, 1)
		assert.Equal(t, "log-a", listing.Entries[0].Name)
	})

	t.Run("pagination", func(t *testing.T) {
		listing, err := c.ListBlobs(ctx, ListOptions{Prefix: "doc-", MaxResults: 1})
		require.NoError(t, err)
		require.Len(t, listing.Entries, 1)
		require.NotEmpty(t, listing.NextCursor)

		rest, err := c.ListBlobs(ctx, ListOptions{Prefix: "doc-", Cursor: listing.NextCursor})
		require.NoError(t, err)
		require.Len(t, rest.Entries, 1)
		assert.NotEqual(t, listing.Entries[0].Name, rest.Entries[0].Name)
	})
}

func TestContainer_ScanDocuments(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	want := []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"}
	for _, name := range want {
		_, err := c.CreateDocument(ctx, DocumentOptions{Name: name}, map[string]any{"value": float64(1)})
		require.NoError(t, err)
	}
	_, err := c.CreateAppendLog(ctx, AppendLogOptions{Name: "log-1"}, nil)
	require.NoError(t, err)

	t.Run("visits every document", func(t *testing.T) {
		var mu sync.Mutex
		var seen []string
		err := c.ScanDocuments(ctx, func(ctx context.Context, doc *DocumentBlob) error {
			if _, err := doc.Load(ctx); err != nil {
				return err
			}
			mu.Lock()
			seen = append(seen, doc.Name())
			mu.Unlock()
			return nil
		}, ScanOptions{Concurrency: 2})
		require.NoError(t, err)

		sort.Strings(seen)
		assert.Equal(t, want, seen, "append logs and schema records must be skipped")
	})

	t.Run("handler error aborts", func(t *testing.T) {
		boom := errors.New("handler failed")
		err := c.ScanDocuments(ctx, func(ctx context.Context, doc *DocumentBlob) error {
			if doc.Name() == "doc-3" {
				return boom
			}
			return nil
		}, ScanOptions{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("prefix", func(t *testing.T) {
		var mu sync.Mutex
		count := 0
		err := c.ScanDocuments(ctx, func(ctx context.Context, doc *DocumentBlob) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}, ScanOptions{Prefix: "doc-1"})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestContainer_LoadBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	_, err := c.CreateDocument(ctx, DocumentOptions{Name: "doc"}, map[string]any{"value": float64(5)})
	require.NoError(t, err)
	_, err = c.CreateAppendLog(ctx, AppendLogOptions{Name: "log"}, nil)
	require.NoError(t, err)

	t.Run("document", func(t *testing.T) {
		blob, err := c.LoadBlob(ctx, "doc", true)
		require.NoError(t, err)
		doc, ok := blob.(*DocumentBlob)
		require.True(t, ok)
		assert.Equal(t, blobstore.KindDocument, doc.Kind())
		assert.NotEmpty(t, doc.Token())
	})

	t.Run("append log", func(t *testing.T) {
		blob, err := c.LoadBlob(ctx, "log", false)
		require.NoError(t, err)
		log, ok := blob.(*AppendLogBlob)
		require.True(t, ok)
		assert.Equal(t, blobstore.KindAppendLog, log.Kind())
	})

	t.Run("missing", func(t *testing.T) {
		_, err := c.LoadBlob(ctx, "ghost", false)
		var nfErr *BlobNotFoundError
		assert.ErrorAs(t, err, &nfErr)
	})
}

func TestContainer_RemoveBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	_, err := c.CreateDocument(ctx, DocumentOptions{Name: "doc"}, map[string]any{"value": float64(1)})
	require.NoError(t, err)

	removed, err := c.RemoveBlob(ctx, "doc", false)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.RemoveBlob(ctx, "doc", true)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = c.RemoveBlob(ctx, "doc", false)
	var nfErr *BlobNotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestContainer_Remove(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c := newTestContainer(t, store, "c", testSchemaV1())

	require.NoError(t, c.Remove(ctx))

	_, err := c.ListBlobs(ctx, ListOptions{})
	assert.Error(t, err)
}
