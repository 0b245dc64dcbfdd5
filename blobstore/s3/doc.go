// Package s3 provides an Amazon S3 implementation of the blobstore.Store
// interface.
//
// # Usage
//
//	client := s3.NewFromConfig(cfg)
//	store := s3store.New(client, "docs/")
//
//	c, err := docstore.New(store, "my-container", schema)
//
// # Mapping
//
//   - Containers map to buckets
//   - Version tokens are object ETags
//   - Conditional writes use If-Match / If-None-Match on PutObject
//   - Blob kinds travel in object metadata
//   - Appends are emulated with a conditional read-modify-write loop
package s3
