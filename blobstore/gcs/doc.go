// Package gcs provides a Google Cloud Storage implementation of the
// blobstore.Store interface.
//
// # Usage
//
//	client, err := storage.NewClient(ctx)
//	store := gcs.New(client, "my-project", "docs/")
//
//	c, err := docstore.New(store, "my-container", schema)
//
// # Mapping
//
//   - Containers map to buckets
//   - Version tokens are object generations
//   - Conditional writes use DoesNotExist / GenerationMatch preconditions
//   - Blob kinds travel in object metadata, returned inline by listings
//   - Appends are emulated with a generation-guarded read-modify-write loop
package gcs
