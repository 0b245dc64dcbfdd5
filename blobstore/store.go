package blobstore

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
//
// Implementations should return errors that satisfy errors.Is against these,
// wrapping the backend's original error where there is one.
var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errors.New("blobstore: blob not found")

	// ErrContainerNotFound is returned when the target container does not exist.
	ErrContainerNotFound = errors.New("blobstore: container not found")

	// ErrAlreadyExists is returned by a Put with Conditions.IfNotExists when
	// the blob is already present.
	ErrAlreadyExists = errors.New("blobstore: blob already exists")

	// ErrPreconditionFailed is returned when a conditional Put or Delete loses
	// against a concurrent write (the supplied token no longer matches).
	ErrPreconditionFailed = errors.New("blobstore: precondition failed")

	// ErrNotModified is returned by a Get with Conditions.IfNoneMatch when the
	// stored token still matches, i.e. the caller's copy is current.
	ErrNotModified = errors.New("blobstore: not modified")

	// ErrUnauthorized is returned when the credential in use does not permit
	// the operation. Callers with read-only credentials rely on this to skip
	// provisioning writes.
	ErrUnauthorized = errors.New("blobstore: operation not authorized")
)

// Kind tags the storage variant of a blob.
type Kind string

const (
	// KindDocument is an atomically replaceable blob.
	KindDocument Kind = "document"

	// KindAppendLog is an append-only blob. Existing content is immutable;
	// new content can only be added at the end via Append.
	KindAppendLog Kind = "append-log"
)

// Token is an opaque concurrency marker issued by the store on every write.
// Its format is backend-specific (an ETag, a generation number, a revision
// counter); callers must only compare for equality and pass it back in
// Conditions.
type Token string

// Properties are blob attributes passed through to the backend.
type Properties struct {
	ContentType     string
	ContentEncoding string
	ContentLanguage string
	CacheControl    string
	Metadata        map[string]string
}

// Conditions make an operation conditional on remote state.
// At most one of IfNotExists and IfMatch may be set on writes;
// IfNoneMatch applies to reads.
type Conditions struct {
	// IfNotExists makes a Put fail with ErrAlreadyExists if the blob exists.
	IfNotExists bool

	// IfMatch makes a Put or Delete fail with ErrPreconditionFailed unless the
	// stored token equals this value.
	IfMatch Token

	// IfNoneMatch makes a Get return ErrNotModified if the stored token equals
	// this value.
	IfNoneMatch Token
}

// Object is the result of a Get.
type Object struct {
	Content    []byte
	Token      Token
	Kind       Kind
	Properties Properties
}

// Attributes is the result of a Head.
type Attributes struct {
	Kind       Kind
	Token      Token
	Size       int64
	Properties Properties
}

// ListQuery selects a page of blob names.
type ListQuery struct {
	// Prefix restricts results to names with this prefix.
	Prefix string

	// Cursor resumes listing from a previous page's NextCursor.
	Cursor string

	// MaxResults caps the page size. Zero means a backend-chosen default.
	MaxResults int
}

// ListEntry describes one blob in a listing.
type ListEntry struct {
	Name string
	Kind Kind
	Size int64
}

// ListPage is one page of listing results. NextCursor is empty on the
// final page.
type ListPage struct {
	Entries    []ListEntry
	NextCursor string
}

// Store is the blob storage abstraction the document layer is built on.
//
// A Store addresses blobs by (container, name). Writes return an opaque Token
// which later conditional operations compare against, giving the caller a
// compare-and-swap primitive. Implementations must be safe for concurrent use.
type Store interface {
	// CreateContainer ensures the named container exists. Creating a container
	// that already exists is not an error.
	CreateContainer(ctx context.Context, container string) error

	// DeleteContainer removes the container and everything in it.
	DeleteContainer(ctx context.Context, container string) error

	// Put writes a blob and returns its new token. With Kind == KindAppendLog
	// and empty content it creates an empty append structure.
	Put(ctx context.Context, container, name string, kind Kind, props Properties, content []byte, cond Conditions) (Token, error)

	// Get reads a blob. With cond.IfNoneMatch set it returns ErrNotModified
	// when the caller's token is still current.
	Get(ctx context.Context, container, name string, cond Conditions) (*Object, error)

	// Head returns a blob's attributes without its content.
	Head(ctx context.Context, container, name string) (*Attributes, error)

	// Delete removes a blob, optionally conditional on cond.IfMatch.
	Delete(ctx context.Context, container, name string, cond Conditions) error

	// Append atomically adds content to the end of an append-log blob.
	Append(ctx context.Context, container, name string, content []byte) error

	// List returns one page of blob names under the prefix, in lexical order.
	List(ctx context.Context, container string, q ListQuery) (*ListPage, error)
}
