// Package blobstore defines the storage abstraction the document layer
// consumes, plus an in-memory reference implementation.
//
// A Store addresses blobs by (container, name) and hands back an opaque
// version Token on every write. Conditional operations built on that token
// (if-not-exists, if-match, if-none-match) are the only concurrency primitive
// the document layer relies on; everything else (auth, transport retries,
// pagination mechanics) belongs to the backing client.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests and prototyping
//   - s3.Store: Amazon S3 (bucket per container, ETag tokens)
//   - minio.Store: MinIO and other S3-compatible endpoints
//   - gcs.Store: Google Cloud Storage (generation tokens)
//   - dynamo.Store: DynamoDB single-table (revision tokens, native appends)
//
// # Custom Implementations
//
// Implement the Store interface to support other backends. The contract that
// matters to the document layer:
//
//   - Put/Delete honor Conditions and return ErrAlreadyExists or
//     ErrPreconditionFailed when a condition fails.
//   - Get with IfNoneMatch returns ErrNotModified when the token is current.
//   - Tokens change on every successful write to a blob.
//   - Append is atomic with respect to concurrent appends.
package blobstore
