package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docstore-io/docstore/blobstore"
	"github.com/docstore-io/docstore/internal/jsonutil"
)

// envelope is the persisted wrapper for document content. The version names
// the schema the content conforms to, which is what lets a container whose
// current schema moved on keep reading data written under older versions.
type envelope struct {
	Content json.RawMessage `json:"content"`
	Version int             `json:"version"`
}

// Modifier is a user-supplied function applied by Modify. It receives a deep
// copy of the freshly-loaded content and returns the replacement content.
// It must be side-effect free: under write contention it is called once per
// retry attempt.
type Modifier func(content any) (any, error)

// RemoveOptions configures DocumentBlob.Remove.
type RemoveOptions struct {
	// IgnoreChanges deletes unconditionally. Otherwise the delete is
	// conditional on the handle's last-known version token and a concurrent
	// modification surfaces as a ConflictError.
	IgnoreChanges bool

	// IgnoreIfNotExists suppresses BlobNotFoundError; the return value reports
	// whether a delete actually occurred.
	IgnoreIfNotExists bool
}

// DocumentBlob is a handle to one versioned JSON document. Handles are issued
// by a Container and are not safe for concurrent use: two handles for the
// same remote name may race freely (the store's compare-and-swap settles it),
// but a single handle's cached state assumes one caller at a time.
type DocumentBlob struct {
	container    *Container
	name         string
	version      int
	token        blobstore.Token
	cacheContent bool
	cached       any
	properties   blobstore.Properties
}

// Name returns the blob name.
func (d *DocumentBlob) Name() string { return d.name }

// Kind returns blobstore.KindDocument.
func (d *DocumentBlob) Kind() blobstore.Kind { return blobstore.KindDocument }

// Version returns the schema version the last stored or loaded content
// conforms to.
func (d *DocumentBlob) Version() int { return d.version }

// Token returns the opaque version token from the last successful store
// round-trip. It is empty for a handle that has not created or loaded yet.
func (d *DocumentBlob) Token() blobstore.Token { return d.token }

func (d *DocumentBlob) create(ctx context.Context, content any, failIfExists bool) error {
	if content == nil {
		return fmt.Errorf("docstore: content for blob %q must not be nil", d.name)
	}

	// Normalize to decoded-JSON form so validation and caching see the same
	// shape a later Load would produce.
	normalized, err := jsonutil.DeepCopy(content)
	if err != nil {
		return fmt.Errorf("docstore: content for blob %q is not JSON-serializable: %w", d.name, err)
	}

	reg := d.container.registry
	result, err := reg.Validate(ctx, normalized, d.version)
	if err != nil {
		return err
	}
	if !result.Valid {
		return &SchemaValidationError{Blob: d.name, Version: d.version, Content: normalized, Causes: result.Errors}
	}

	body, err := marshalEnvelope(normalized, d.version)
	if err != nil {
		return err
	}

	cond := blobstore.Conditions{IfNotExists: failIfExists}
	token, err := d.container.store.Put(ctx, d.container.name, d.name, blobstore.KindDocument, d.properties, body, cond)
	if err != nil {
		return translateStoreError("put blob", d.container.name, d.name, err)
	}

	d.token = token
	if d.cacheContent {
		d.cached = normalized
	}
	d.container.logger.Debug("document created", "blob", d.name, "schemaVersion", d.version)
	return nil
}

// Load fetches and returns the document content.
//
// When the handle caches content and holds a version token, the read is
// conditional: if the store reports the content unchanged, the cached value
// is returned as-is, skipping re-validation (it was validated on the path
// that produced the cache). Otherwise the stored envelope is deserialized and
// the content re-validated against the schema version it was written under,
// which may be older than the container's current version.
func (d *DocumentBlob) Load(ctx context.Context) (any, error) {
	var cond blobstore.Conditions
	if d.cacheContent && d.cached != nil && d.token != "" {
		cond.IfNoneMatch = d.token
	}

	obj, err := d.container.store.Get(ctx, d.container.name, d.name, cond)
	if errors.Is(err, blobstore.ErrNotModified) {
		return d.cached, nil
	}
	if err != nil {
		return nil, translateStoreError("get blob", d.container.name, d.name, err)
	}

	content, version, err := d.decodeAndValidate(ctx, obj)
	if err != nil {
		return nil, err
	}

	d.version = version
	d.token = obj.Token
	d.properties = obj.Properties
	if d.cacheContent {
		d.cached = content
	}
	return content, nil
}

func (d *DocumentBlob) decodeAndValidate(ctx context.Context, obj *blobstore.Object) (any, int, error) {
	var env envelope
	if err := json.Unmarshal(obj.Content, &env); err != nil {
		return nil, 0, fmt.Errorf("docstore: blob %q in container %q holds a malformed envelope: %w", d.name, d.container.name, err)
	}

	var content any
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return nil, 0, fmt.Errorf("docstore: blob %q in container %q holds malformed content: %w", d.name, d.container.name, err)
	}

	result, err := d.container.registry.Validate(ctx, content, env.Version)
	if err != nil {
		return nil, 0, err
	}
	if !result.Valid {
		return nil, 0, &SchemaValidationError{Blob: d.name, Version: env.Version, Content: content, Causes: result.Errors}
	}
	return content, env.Version, nil
}

// Modify applies modifier to a deep copy of the freshly-loaded content and
// writes the result back, conditional on the version token captured at load
// time. The new content is validated against the container's *current*
// schema version; this is the upgrade path for documents written under older
// versions.
//
// A lost race against a concurrent writer retries the whole
// load-modify-validate-write cycle with exponential backoff, up to the
// container's retry budget; exhaustion fails with CongestionError. Validation
// failures and modifier errors abort immediately without retry.
//
// On success the returned content is also cached on the handle (when caching
// is enabled) and the handle's token advances to the committed write.
func (d *DocumentBlob) Modify(ctx context.Context, modifier Modifier) (any, error) {
	if modifier == nil {
		return nil, errors.New("docstore: modifier must not be nil")
	}

	reg := d.container.registry
	current := reg.CurrentVersion()
	retry := d.container.retry
	bo := retry.newBackOff()

	for attempt := 0; ; attempt++ {
		obj, err := d.container.store.Get(ctx, d.container.name, d.name, blobstore.Conditions{})
		if err != nil {
			return nil, translateStoreError("get blob", d.container.name, d.name, err)
		}
		content, _, err := d.decodeAndValidate(ctx, obj)
		if err != nil {
			return nil, err
		}

		workingCopy, err := jsonutil.DeepCopy(content)
		if err != nil {
			return nil, fmt.Errorf("docstore: copying content of blob %q: %w", d.name, err)
		}
		modified, err := modifier(workingCopy)
		if err != nil {
			return nil, err
		}
		if modified == nil {
			return nil, fmt.Errorf("docstore: modifier for blob %q returned nil content", d.name)
		}
		modified, err = jsonutil.DeepCopy(modified)
		if err != nil {
			return nil, fmt.Errorf("docstore: modified content for blob %q is not JSON-serializable: %w", d.name, err)
		}

		result, err := reg.Validate(ctx, modified, current)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, &SchemaValidationError{Blob: d.name, Version: current, Content: modified, Causes: result.Errors}
		}

		body, err := marshalEnvelope(modified, current)
		if err != nil {
			return nil, err
		}

		token, err := d.container.store.Put(ctx, d.container.name, d.name, blobstore.KindDocument, d.properties, body, blobstore.Conditions{IfMatch: obj.Token})
		if err == nil {
			d.token = token
			d.version = current
			if d.cacheContent {
				d.cached = modified
			}
			return modified, nil
		}
		if !errors.Is(err, blobstore.ErrPreconditionFailed) {
			return nil, translateStoreError("put blob", d.container.name, d.name, err)
		}

		if attempt >= retry.Retries {
			return nil, &CongestionError{
				Container: d.container.name,
				Name:      d.name,
				Attempts:  attempt + 1,
				cause:     &ConflictError{Container: d.container.name, Name: d.name, cause: err},
			}
		}

		delay := bo.NextBackOff()
		d.container.logger.Debug("modify lost race, retrying",
			"blob", d.name, "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Remove deletes the document. See RemoveOptions for conditional semantics.
// The returned bool reports whether a delete actually occurred.
func (d *DocumentBlob) Remove(ctx context.Context, opts RemoveOptions) (bool, error) {
	var cond blobstore.Conditions
	if !opts.IgnoreChanges && d.token != "" {
		cond.IfMatch = d.token
	}

	err := d.container.store.Delete(ctx, d.container.name, d.name, cond)
	switch {
	case err == nil:
		d.token = ""
		d.cached = nil
		return true, nil
	case errors.Is(err, blobstore.ErrNotFound) && opts.IgnoreIfNotExists:
		return false, nil
	default:
		return false, translateStoreError("delete blob", d.container.name, d.name, err)
	}
}

func marshalEnvelope(content any, version int) ([]byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("docstore: serializing content: %w", err)
	}
	body, err := json.Marshal(envelope{Content: raw, Version: version})
	if err != nil {
		return nil, fmt.Errorf("docstore: serializing envelope: %w", err)
	}
	return body, nil
}
