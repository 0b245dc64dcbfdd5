package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/docstore-io/docstore/blobstore"
)

const defaultScanConcurrency = 8

// Blob is the common surface of DocumentBlob and AppendLogBlob, used by
// LoadBlob's polymorphic return.
type Blob interface {
	Name() string
	Kind() blobstore.Kind
}

// Container is a named collection of schema-validated JSON blobs. It owns a
// SchemaRegistry and issues DocumentBlob and AppendLogBlob handles that share
// its blob-store handle, retry policy, and logger.
//
// A Container must be Init-ed before blob operations are valid.
type Container struct {
	store    blobstore.Store
	name     string
	registry *SchemaRegistry
	logger   *slog.Logger
	retry    RetryConfig

	initialized atomic.Bool
}

// New constructs a Container over the given store. schema is the JSON Schema
// that content written under the container's current version must conform to.
// The container is not usable until Init succeeds.
func New(store blobstore.Store, name string, schema map[string]any, opts ...Option) (*Container, error) {
	if store == nil {
		return nil, errors.New("docstore: store must not be nil")
	}
	if name == "" {
		return nil, errors.New("docstore: container name must not be empty")
	}
	if schema == nil {
		return nil, errors.New("docstore: schema must not be nil")
	}

	o := options{
		schemaVersion: 1,
		retry:         DefaultRetryConfig(),
		logger:        NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.schemaVersion < 1 {
		return nil, fmt.Errorf("docstore: schema version must be positive, got %d", o.schemaVersion)
	}

	c := &Container{
		store:  store,
		name:   name,
		logger: o.logger.With("container", name),
		retry:  o.retry,
	}
	c.registry = newSchemaRegistry(store, name, schema, o.schemaVersion, c.logger)
	return c, nil
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Registry returns the container's schema registry.
func (c *Container) Registry() *SchemaRegistry { return c.registry }

// SchemaVersion returns the current schema version new documents are written
// under.
func (c *Container) SchemaVersion() int { return c.registry.CurrentVersion() }

// Init idempotently ensures the backing container exists and that the current
// schema version is durably stored and consistent. Unauthorized container
// creation is tolerated: a capability-scoped credential implies the container
// is pre-provisioned.
func (c *Container) Init(ctx context.Context) error {
	err := c.store.CreateContainer(ctx, c.name)
	switch {
	case err == nil:
	case errors.Is(err, blobstore.ErrUnauthorized):
		c.logger.Debug("container creation not authorized, assuming pre-provisioned")
	default:
		return &StorageError{Op: "create container", Container: c.name, cause: err}
	}

	if err := c.registry.EnsureCurrent(ctx); err != nil {
		return err
	}
	c.initialized.Store(true)
	c.logger.Debug("container initialized", "schemaVersion", c.registry.CurrentVersion())
	return nil
}

func (c *Container) ensureInitialized() error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Remove deletes the backing container and everything in it.
func (c *Container) Remove(ctx context.Context) error {
	if err := c.store.DeleteContainer(ctx, c.name); err != nil {
		return &StorageError{Op: "delete container", Container: c.name, cause: err}
	}
	c.initialized.Store(false)
	return nil
}

// ListOptions selects a page of blobs.
type ListOptions struct {
	// Prefix restricts results to blob names with this prefix.
	Prefix string

	// Cursor resumes listing from a previous page's NextCursor.
	Cursor string

	// MaxResults caps the page size. Zero means a store-chosen default.
	MaxResults int
}

// BlobEntry describes one blob in a listing.
type BlobEntry struct {
	Name string
	Kind blobstore.Kind
}

// BlobListing is one page of ListBlobs results. NextCursor is empty on the
// final page.
type BlobListing struct {
	Entries    []BlobEntry
	NextCursor string
}

// ListBlobs returns one page of the container's blobs. Internal schema
// records are excluded, and entries of kinds this package does not handle are
// omitted.
func (c *Container) ListBlobs(ctx context.Context, opts ListOptions) (*BlobListing, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}

	page, err := c.store.List(ctx, c.name, blobstore.ListQuery{
		Prefix:     opts.Prefix,
		Cursor:     opts.Cursor,
		MaxResults: opts.MaxResults,
	})
	if err != nil {
		return nil, &StorageError{Op: "list blobs", Container: c.name, cause: err}
	}

	listing := &BlobListing{NextCursor: page.NextCursor}
	for _, entry := range page.Entries {
		if isSchemaBlobName(entry.Name) {
			continue
		}
		switch entry.Kind {
		case blobstore.KindDocument, blobstore.KindAppendLog:
			listing.Entries = append(listing.Entries, BlobEntry{Name: entry.Name, Kind: entry.Kind})
		default:
			// Unsupported kind, skip.
		}
	}
	return listing, nil
}

// ScanOptions configures ScanDocuments.
type ScanOptions struct {
	// Prefix restricts the scan to blob names with this prefix.
	Prefix string

	// Concurrency bounds how many handlers run at once within a page.
	// Zero means a small default.
	Concurrency int
}

// ScanDocuments iterates every document blob in the container, invoking
// handler with a fresh DocumentBlob for each. Handlers within a page run
// concurrently, bounded by opts.Concurrency. The first handler error aborts
// the scan and is returned; in-flight handlers of the current page finish
// first, and their effects are not rolled back.
func (c *Container) ScanDocuments(ctx context.Context, handler func(context.Context, *DocumentBlob) error, opts ScanOptions) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("docstore: scan handler must not be nil")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultScanConcurrency
	}

	cursor := ""
	for {
		page, err := c.store.List(ctx, c.name, blobstore.ListQuery{Prefix: opts.Prefix, Cursor: cursor})
		if err != nil {
			return &StorageError{Op: "list blobs", Container: c.name, cause: err}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, entry := range page.Entries {
			if entry.Kind != blobstore.KindDocument || isSchemaBlobName(entry.Name) {
				continue
			}
			doc := c.newDocument(entry.Name, false)
			g.Go(func() error {
				return handler(gctx, doc)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// DocumentOptions configures document creation and loading.
type DocumentOptions struct {
	// Name is the blob name, unique within the container.
	Name string

	// CacheContent keeps the deserialized content on the handle so later
	// loads can be answered from cache when the store reports not-modified.
	CacheContent bool

	// FailIfExists makes creation conditional: it fails with
	// BlobAlreadyExistsError instead of overwriting existing data.
	FailIfExists bool

	// Properties are passed through to the blob store.
	Properties blobstore.Properties
}

// CreateDocument creates a new document blob holding content, validated
// against the container's current schema version.
func (c *Container) CreateDocument(ctx context.Context, opts DocumentOptions, content any) (*DocumentBlob, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, errors.New("docstore: document name must not be empty")
	}

	doc := c.newDocument(opts.Name, opts.CacheContent)
	doc.properties = opts.Properties
	if err := doc.create(ctx, content, opts.FailIfExists); err != nil {
		return nil, err
	}
	return doc, nil
}

// AppendLogOptions configures append-log creation.
type AppendLogOptions struct {
	// Name is the blob name, unique within the container.
	Name string

	// Properties are passed through to the blob store.
	Properties blobstore.Properties
}

// CreateAppendLog creates a new, empty append log. If content is non-nil it
// is validated and appended as the first record.
func (c *Container) CreateAppendLog(ctx context.Context, opts AppendLogOptions, content any) (*AppendLogBlob, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, errors.New("docstore: append log name must not be empty")
	}

	log := c.newAppendLog(opts.Name, opts.Properties)
	if err := log.create(ctx); err != nil {
		return nil, err
	}
	if content != nil {
		if err := log.Append(ctx, content); err != nil {
			return nil, err
		}
	}
	return log, nil
}

// LoadBlob probes the remote blob's kind and returns the matching handle: a
// DocumentBlob (loaded, so its version token is bound) or an AppendLogBlob.
// Blobs of kinds this package does not handle yield (nil, nil).
func (c *Container) LoadBlob(ctx context.Context, name string, cacheContent bool) (Blob, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}

	attrs, err := c.store.Head(ctx, c.name, name)
	if err != nil {
		return nil, translateStoreError("head blob", c.name, name, err)
	}

	switch attrs.Kind {
	case blobstore.KindDocument:
		doc := c.newDocument(name, cacheContent)
		if _, err := doc.Load(ctx); err != nil {
			return nil, err
		}
		return doc, nil
	case blobstore.KindAppendLog:
		return c.newAppendLog(name, attrs.Properties), nil
	default:
		return nil, nil
	}
}

// RemoveBlob deletes a blob by name without loading it first. With
// ignoreIfNotExists, a missing blob is not an error; the returned bool
// reports whether a delete actually occurred.
func (c *Container) RemoveBlob(ctx context.Context, name string, ignoreIfNotExists bool) (bool, error) {
	if err := c.ensureInitialized(); err != nil {
		return false, err
	}

	err := c.store.Delete(ctx, c.name, name, blobstore.Conditions{})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, blobstore.ErrNotFound) && ignoreIfNotExists:
		return false, nil
	default:
		return false, translateStoreError("delete blob", c.name, name, err)
	}
}

func (c *Container) newDocument(name string, cacheContent bool) *DocumentBlob {
	return &DocumentBlob{
		container:    c,
		name:         name,
		version:      c.registry.CurrentVersion(),
		cacheContent: cacheContent,
	}
}

func (c *Container) newAppendLog(name string, props blobstore.Properties) *AppendLogBlob {
	return &AppendLogBlob{
		container:  c,
		name:       name,
		properties: props,
	}
}
