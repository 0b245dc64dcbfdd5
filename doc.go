// Package docstore provides schema-validated JSON document storage on top of
// a generic blob store.
//
// A Container holds JSON documents validated against a versioned JSON Schema.
// Documents support optimistic-concurrency updates; append logs hold
// immutable sequences of validated JSON records. The container consumes any
// backend implementing blobstore.Store: in-memory, S3, MinIO, GCS, or
// DynamoDB out of the box.
//
// # Quick Start
//
//	schema := map[string]any{
//	    "type":       "object",
//	    "properties": map[string]any{"value": map[string]any{"type": "integer"}},
//	    "required":   []any{"value"},
//	}
//
//	container, _ := docstore.New(blobstore.NewMemoryStore(), "settings", schema)
//	_ = container.Init(ctx)
//
//	doc, _ := container.CreateDocument(ctx, docstore.DocumentOptions{Name: "counter"},
//	    map[string]any{"value": 24})
//
//	updated, _ := doc.Modify(ctx, func(content any) (any, error) {
//	    m := content.(map[string]any)
//	    m["value"] = m["value"].(float64) + 10
//	    return m, nil
//	})
//
// # Concurrency Model
//
// Every write returns an opaque version token; Modify re-reads, re-applies,
// and re-writes conditionally on that token, retrying lost races with
// exponential backoff. There are no locks: two handles for the same document
// may race freely, and the store's compare-and-swap decides the winner.
// Sustained contention past the retry budget surfaces as CongestionError.
//
// # Schema Versioning
//
// Each container declares a current schema version (default 1). Every stored
// document records the version its content conforms to, so a container whose
// schema moved on keeps reading old documents; rewriting one through Modify
// upgrades it to the current version. Schema documents themselves are stored
// canonically alongside the data, write-once, and verified on every Init.
package docstore
