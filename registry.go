package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/docstore-io/docstore/blobstore"
	"github.com/docstore-io/docstore/internal/jsonutil"
)

const schemaBlobPrefix = ".schema.v"

func schemaBlobName(version int) string {
	return fmt.Sprintf("%s%d", schemaBlobPrefix, version)
}

func isSchemaBlobName(name string) bool {
	return strings.HasPrefix(name, schemaBlobPrefix)
}

// ValidationResult is the outcome of validating content against a schema
// version. Callers decide whether a failure is fatal.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// SchemaRegistry produces a compiled validator for any schema version used in
// a container, compiling each version at most once per instance, and enforces
// that the declared current schema matches what is durably stored.
//
// Schema versions are persisted as canonical JSON under version-qualified blob
// names and are write-once: once version n is stored, it never changes. That
// discipline keeps data written under older versions interpretable forever.
type SchemaRegistry struct {
	store     blobstore.Store
	container string
	logger    *slog.Logger

	current int
	schema  map[string]any

	mu         sync.Mutex
	validators map[int]*jsonschema.Schema
}

func newSchemaRegistry(store blobstore.Store, container string, schema map[string]any, current int, logger *slog.Logger) *SchemaRegistry {
	return &SchemaRegistry{
		store:      store,
		container:  container,
		logger:     logger,
		current:    current,
		schema:     schema,
		validators: make(map[int]*jsonschema.Schema),
	}
}

// CurrentVersion returns the schema version new documents are written under.
func (r *SchemaRegistry) CurrentVersion() int {
	return r.current
}

// EnsureCurrent verifies the durably stored schema for the current version
// against the in-memory schema, writing it if absent.
//
// A content mismatch is a SchemaIntegrityError and is never resolved
// silently. An unauthorized write is tolerated: a read-only client trusts a
// previously-provisioned schema.
func (r *SchemaRegistry) EnsureCurrent(ctx context.Context) error {
	name := schemaBlobName(r.current)

	obj, err := r.store.Get(ctx, r.container, name, blobstore.Conditions{})
	switch {
	case err == nil:
		return r.verifyStored(obj.Content)
	case errors.Is(err, blobstore.ErrNotFound):
		// fall through to provisioning
	default:
		return translateStoreError("get schema", r.container, name, err)
	}

	canonical, err := jsonutil.CanonicalMarshal(r.schema)
	if err != nil {
		return fmt.Errorf("docstore: serializing schema version %d: %w", r.current, err)
	}

	props := blobstore.Properties{ContentType: "application/json"}
	_, err = r.store.Put(ctx, r.container, name, blobstore.KindDocument, props, canonical, blobstore.Conditions{IfNotExists: true})
	switch {
	case err == nil:
		r.logger.Info("schema version provisioned", "container", r.container, "version", r.current)
		return nil
	case errors.Is(err, blobstore.ErrAlreadyExists):
		// Lost a provisioning race; whoever won must have written an identical
		// schema, verify rather than assume.
		obj, err := r.store.Get(ctx, r.container, name, blobstore.Conditions{})
		if err != nil {
			return translateStoreError("get schema", r.container, name, err)
		}
		return r.verifyStored(obj.Content)
	case errors.Is(err, blobstore.ErrUnauthorized):
		r.logger.Warn("schema write not authorized, trusting pre-provisioned schema",
			"container", r.container, "version", r.current)
		return nil
	default:
		return translateStoreError("put schema", r.container, name, err)
	}
}

func (r *SchemaRegistry) verifyStored(stored []byte) error {
	var storedDoc any
	if err := json.Unmarshal(stored, &storedDoc); err != nil {
		return fmt.Errorf("docstore: stored schema version %d in container %q is not valid JSON: %w", r.current, r.container, err)
	}
	eq, err := jsonutil.CanonicalEqual(storedDoc, r.schema)
	if err != nil {
		return fmt.Errorf("docstore: comparing schema version %d: %w", r.current, err)
	}
	if !eq {
		return &SchemaIntegrityError{Container: r.container, Version: r.current}
	}
	return nil
}

// Validator returns the compiled validator for the given schema version,
// compiling and caching it on first use. The current version compiles from
// the in-memory schema; historical versions are fetched from the store.
//
// Concurrent first requests for the same version may compile twice; the
// results are interchangeable and the cache keeps one.
func (r *SchemaRegistry) Validator(ctx context.Context, version int) (*jsonschema.Schema, error) {
	r.mu.Lock()
	cached, ok := r.validators[version]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	var doc map[string]any
	if version == r.current {
		doc = r.schema
	} else {
		name := schemaBlobName(version)
		obj, err := r.store.Get(ctx, r.container, name, blobstore.Conditions{})
		if err != nil {
			return nil, &SchemaLoadError{Container: r.container, Version: version, cause: err}
		}
		if err := json.Unmarshal(obj.Content, &doc); err != nil {
			return nil, &SchemaLoadError{Container: r.container, Version: version, cause: err}
		}
		normalizeLegacySchema(doc)
	}

	sch, err := compileSchema(doc, version)
	if err != nil {
		return nil, &SchemaLoadError{Container: r.container, Version: version, cause: err}
	}

	r.mu.Lock()
	r.validators[version] = sch
	r.mu.Unlock()
	return sch, nil
}

// Validate runs the validator for the given version against content and
// returns a structured result rather than failing, so callers decide whether
// a validation failure is fatal. The returned error covers validator
// acquisition only.
func (r *SchemaRegistry) Validate(ctx context.Context, content any, version int) (*ValidationResult, error) {
	sch, err := r.Validator(ctx, version)
	if err != nil {
		return nil, err
	}

	if err := sch.Validate(content); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &ValidationResult{Valid: false, Errors: flattenCauses(verr)}, nil
		}
		return nil, err
	}
	return &ValidationResult{Valid: true}, nil
}

func compileSchema(doc map[string]any, version int) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("docstore:///schema-v%d.json", version)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// normalizeLegacySchema rewrites the pre-draft-06 "id" keyword to "$id" in
// stored schema documents written by older clients. This is the single known
// identifier transition; future keyword migrations need their own shim.
func normalizeLegacySchema(doc map[string]any) {
	if doc == nil {
		return
	}
	if _, hasNew := doc["$id"]; hasNew {
		return
	}
	if id, hasOld := doc["id"]; hasOld {
		if _, isString := id.(string); isString {
			doc["$id"] = id
			delete(doc, "id")
		}
	}
}

func flattenCauses(err *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, e.Error())
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	return out
}
