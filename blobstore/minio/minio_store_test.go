package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstore-io/docstore/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	container := "test-docstore"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store := New(client, "test-prefix/")
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
