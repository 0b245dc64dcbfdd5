// Package minio provides a blobstore.Store implementation for MinIO and
// other S3-compatible object stores using the native MinIO client.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//
//	store := miniostore.New(client, "docs/")
//	c, err := docstore.New(store, "my-container", schema)
//
// # Mapping
//
//   - Containers map to buckets
//   - Version tokens are object ETags
//   - Conditional writes use the If-Match / If-None-Match support of
//     recent MinIO releases
//   - Blob kinds travel in user metadata, returned inline by listings
//   - Appends are emulated with a conditional read-modify-write loop
package minio
