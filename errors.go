package docstore

import (
	"errors"
	"fmt"

	"github.com/docstore-io/docstore/blobstore"
)

// ErrNotInitialized is returned when blob operations are attempted on a
// Container before Init has succeeded.
var ErrNotInitialized = errors.New("docstore: container not initialized")

// SchemaValidationError reports content that failed JSON Schema validation.
// It carries the offending content and the validator's error list. Validation
// failures are never retried.
type SchemaValidationError struct {
	Blob    string
	Version int
	Content any
	Causes  []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("docstore: content for blob %q does not conform to schema version %d: %d violation(s)", e.Blob, e.Version, len(e.Causes))
}

// SchemaIntegrityError reports that the schema stored for the current version
// disagrees with the schema the Container was constructed with. This is fatal
// at Init and never resolved silently.
type SchemaIntegrityError struct {
	Container string
	Version   int
}

func (e *SchemaIntegrityError) Error() string {
	return fmt.Sprintf("docstore: stored schema version %d in container %q differs from the declared schema", e.Version, e.Container)
}

// SchemaLoadError reports that a historical schema version could not be
// located or parsed.
type SchemaLoadError struct {
	Container string
	Version   int
	cause     error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("docstore: cannot load schema version %d from container %q: %v", e.Version, e.Container, e.cause)
}

func (e *SchemaLoadError) Unwrap() error { return e.cause }

// BlobNotFoundError reports that the target blob does not exist.
type BlobNotFoundError struct {
	Container string
	Name      string
	cause     error
}

func (e *BlobNotFoundError) Error() string {
	return fmt.Sprintf("docstore: blob %q not found in container %q", e.Name, e.Container)
}

func (e *BlobNotFoundError) Unwrap() error { return e.cause }

// BlobAlreadyExistsError reports that a conditional create collided with
// existing data.
type BlobAlreadyExistsError struct {
	Container string
	Name      string
	cause     error
}

func (e *BlobAlreadyExistsError) Error() string {
	return fmt.Sprintf("docstore: blob %q already exists in container %q", e.Name, e.Container)
}

func (e *BlobAlreadyExistsError) Unwrap() error { return e.cause }

// ConflictError reports that an optimistic-concurrency precondition failed on
// a write. Modify consumes these internally; callers only see one as the
// cause of a CongestionError, or directly from a conditional Remove.
type ConflictError struct {
	Container string
	Name      string
	cause     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("docstore: blob %q in container %q was modified concurrently", e.Name, e.Container)
}

func (e *ConflictError) Unwrap() error { return e.cause }

// CongestionError reports that Modify exhausted its retry budget. It signals
// sustained write contention, as opposed to a single lost race.
type CongestionError struct {
	Container string
	Name      string
	Attempts  int
	cause     error
}

func (e *CongestionError) Error() string {
	return fmt.Sprintf("docstore: modify of blob %q in container %q lost %d consecutive races", e.Name, e.Container, e.Attempts)
}

func (e *CongestionError) Unwrap() error { return e.cause }

// StorageError wraps a blob-store failure not otherwise classified, with the
// operation and blob attached for context.
type StorageError struct {
	Op        string
	Container string
	Name      string
	cause     error
}

func (e *StorageError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("docstore: %s on container %q: %v", e.Op, e.Container, e.cause)
	}
	return fmt.Sprintf("docstore: %s on blob %q in container %q: %v", e.Op, e.Name, e.Container, e.cause)
}

func (e *StorageError) Unwrap() error { return e.cause }

// translateStoreError maps blobstore sentinels onto the docstore taxonomy.
// ErrNotModified and ErrPreconditionFailed are handled at call sites that
// expect them; anything reaching here unclassified becomes a StorageError.
func translateStoreError(op, container, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blobstore.ErrNotFound):
		return &BlobNotFoundError{Container: container, Name: name, cause: err}
	case errors.Is(err, blobstore.ErrAlreadyExists):
		return &BlobAlreadyExistsError{Container: container, Name: name, cause: err}
	case errors.Is(err, blobstore.ErrPreconditionFailed):
		return &ConflictError{Container: container, Name: name, cause: err}
	default:
		return &StorageError{Op: op, Container: container, Name: name, cause: err}
	}
}
