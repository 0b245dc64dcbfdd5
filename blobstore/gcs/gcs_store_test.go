package gcs

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstore-io/docstore/blobstore"
)

func TestTokens(t *testing.T) {
	tok := formatToken(1712345678901234)
	gen, err := parseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(1712345678901234), gen)

	_, err = parseToken("not-a-generation")
	assert.Error(t, err)
}

func TestRelativeName(t *testing.T) {
	s := &Store{prefix: "docs/"}
	assert.Equal(t, "report", s.relativeName("docs/report"))
	assert.Equal(t, "a/b", s.relativeName("docs/a/b"))

	bare := &Store{}
	assert.Equal(t, "report", bare.relativeName("report"))
}

func TestMetadataFor(t *testing.T) {
	md := metadataFor(blobstore.KindAppendLog, blobstore.Properties{
		Metadata: map[string]string{"origin": "unit"},
	})
	assert.Equal(t, "append-log", md[metadataKindKey])
	assert.Equal(t, "unit", md["origin"])
}

// TestGCSStore_Integration requires a GCS emulator (fake-gcs-server or
// similar) reachable via STORAGE_EMULATOR_HOST.
func TestGCSStore_Integration(t *testing.T) {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	container := "test-docstore"
	store := New(client, "test-project", "test-prefix/")
	require.NoError(t, store.CreateContainer(ctx, container))
	defer func() { _ = store.DeleteContainer(ctx, container) }()

	// Put and Get round trip
	tok, err := store.Put(ctx, container, "doc", blobstore.KindDocument, blobstore.Properties{
		ContentType: "application/json",
	}, []byte(`{"a":1}`), blobstore.Conditions{IfNotExists: true})
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	obj, err := store.Get(ctx, container, "doc", blobstore.Conditions{})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), obj.Content)
	assert.Equal(t, tok, obj.Token)
	assert.Equal(t, blobstore.KindDocument, obj.Kind)

	// Conditional create against an existing object fails
	_, err = store.Put(ctx, container, "doc", blobstore.KindDocument, blobstore.Properties{}, []byte(`{"a":2}`), blobstore.Conditions{IfNotExists: true})
	assert.ErrorIs(t, err, blobstore.ErrAlreadyExists)

	// Conditional read with current token short-circuits
	_, err = store.Get(ctx, container, "doc", blobstore.Conditions{IfNoneMatch: tok})
	assert.ErrorIs(t, err, blobstore.ErrNotModified)

	// Conditional overwrite with stale token fails
	tok2, err := store.Put(ctx, container, "doc", blobstore.KindDocument, blobstore.Properties{}, []byte(`{"a":2}`), blobstore.Conditions{IfMatch: tok})
	require.NoError(t, err)
	_, err = store.Put(ctx, container, "doc", blobstore.KindDocument, blobstore.Properties{}, []byte(`{"a":3}`), blobstore.Conditions{IfMatch: tok})
	assert.ErrorIs(t, err, blobstore.ErrPreconditionFailed)

	// Append log
	_, err = store.Put(ctx, container, "log", blobstore.KindAppendLog, blobstore.Properties{}, nil, blobstore.Conditions{})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, container, "log", []byte(`{"n":1}`)))
	require.NoError(t, store.Append(ctx, container, "log", []byte(`{"n":2}`)))

	obj, err = store.Get(ctx, container, "log", blobstore.Conditions{})
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}{"n":2}`, string(obj.Content))

	// List carries kinds inline
	page, err := store.List(ctx, container, blobstore.ListQuery{})
	require.NoError(t, err)
	kinds := make(map[string]blobstore.Kind)
	for _, e := range page.Entries {
		kinds[e.Name] = e.Kind
	}
	assert.Equal(t, blobstore.KindDocument, kinds["doc"])
	assert.Equal(t, blobstore.KindAppendLog, kinds["log"])

	// Conditional delete
	err = store.Delete(ctx, container, "doc", blobstore.Conditions{IfMatch: tok})
	assert.ErrorIs(t, err, blobstore.ErrPreconditionFailed)
	require.NoError(t, store.Delete(ctx, container, "doc", blobstore.Conditions{IfMatch: tok2}))

	_, err = store.Get(ctx, container, "doc", blobstore.Conditions{})
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
