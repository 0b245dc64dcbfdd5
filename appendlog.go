package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docstore-io/docstore/blobstore"
	"github.com/docstore-io/docstore/internal/jsonutil"
)

// AppendLogBlob is a handle to one append-only sequence of JSON records.
// The stored content is a raw concatenation of independently-serialized
// fragments, not a single JSON document. Prior content is immutable; the log
// can only grow, or be removed as a whole.
//
// Appends carry no version token and no cache: they are atomic at the store
// and never overwrite, so optimistic concurrency does not apply.
type AppendLogBlob struct {
	container  *Container
	name       string
	properties blobstore.Properties
}

// Name returns the blob name.
func (a *AppendLogBlob) Name() string { return a.name }

// Kind returns blobstore.KindAppendLog.
func (a *AppendLogBlob) Kind() blobstore.Kind { return blobstore.KindAppendLog }

// Properties returns the blob properties passed through at creation, or the
// store-reported properties for handles obtained via LoadBlob.
func (a *AppendLogBlob) Properties() blobstore.Properties { return a.properties }

func (a *AppendLogBlob) create(ctx context.Context) error {
	_, err := a.container.store.Put(ctx, a.container.name, a.name, blobstore.KindAppendLog, a.properties, nil, blobstore.Conditions{})
	if err != nil {
		return translateStoreError("put blob", a.container.name, a.name, err)
	}
	a.container.logger.Debug("append log created", "blob", a.name)
	return nil
}

// Append validates content against the container's current schema version
// and adds its serialization to the end of the log. A validation failure
// leaves the log unchanged.
func (a *AppendLogBlob) Append(ctx context.Context, content any) error {
	if content == nil {
		return fmt.Errorf("docstore: content for blob %q must not be nil", a.name)
	}

	normalized, err := jsonutil.DeepCopy(content)
	if err != nil {
		return fmt.Errorf("docstore: content for blob %q is not JSON-serializable: %w", a.name, err)
	}

	reg := a.container.registry
	current := reg.CurrentVersion()
	result, err := reg.Validate(ctx, normalized, current)
	if err != nil {
		return err
	}
	if !result.Valid {
		return &SchemaValidationError{Blob: a.name, Version: current, Content: normalized, Causes: result.Errors}
	}

	fragment, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("docstore: serializing fragment for blob %q: %w", a.name, err)
	}

	if err := a.container.store.Append(ctx, a.container.name, a.name, fragment); err != nil {
		return translateStoreError("append block", a.container.name, a.name, err)
	}
	return nil
}

// Load returns the raw concatenated log content. No parsing is attempted:
// fragments were serialized independently and stored without separators, so
// the result is not itself a JSON document.
func (a *AppendLogBlob) Load(ctx context.Context) ([]byte, error) {
	obj, err := a.container.store.Get(ctx, a.container.name, a.name, blobstore.Conditions{})
	if err != nil {
		return nil, translateStoreError("get blob", a.container.name, a.name, err)
	}
	return obj.Content, nil
}

// Remove deletes the whole log. With ignoreIfNotExists, a missing blob is not
// an error; the returned bool reports whether a delete actually occurred.
func (a *AppendLogBlob) Remove(ctx context.Context, ignoreIfNotExists bool) (bool, error) {
	return a.container.RemoveBlob(ctx, a.name, ignoreIfNotExists)
}
