package docstore_test

import (
	"context"
	"fmt"
	"log"

	"github.com/docstore-io/docstore"
	"github.com/docstore-io/docstore/blobstore"
)

// Example demonstrates the create / load / modify cycle of a document.
func Example() {
	ctx := context.Background()

	schema := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           map[string]any{"count": map[string]any{"type": "integer"}},
		"required":             []any{"count"},
		"additionalProperties": false,
	}

	c, err := docstore.New(blobstore.NewMemoryStore(), "counters", schema)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.Init(ctx); err != nil {
		log.Fatal(err)
	}

	doc, err := c.CreateDocument(ctx, docstore.DocumentOptions{Name: "hits"}, map[string]any{"count": 0.0})
	if err != nil {
		log.Fatal(err)
	}

	content, err := doc.Modify(ctx, func(content any) (any, error) {
		m := content.(map[string]any)
		m["count"] = m["count"].(float64) + 1
		return m, nil
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(content.(map[string]any)["count"])
	// Output: 1
}

// Example_appendLog demonstrates accumulating validated JSON fragments.
func Example_appendLog() {
	ctx := context.Background()

	schema := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": map[string]any{"event": map[string]any{"type": "string"}},
		"required":   []any{"event"},
	}

	c, err := docstore.New(blobstore.NewMemoryStore(), "audit", schema)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.Init(ctx); err != nil {
		log.Fatal(err)
	}

	events, err := c.CreateAppendLog(ctx, docstore.AppendLogOptions{Name: "events"}, nil)
	if err != nil {
		log.Fatal(err)
	}

	for _, name := range []string{"login", "logout"} {
		if err := events.Append(ctx, map[string]any{"event": name}); err != nil {
			log.Fatal(err)
		}
	}

	raw, err := events.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(raw))
	// Output: {"event":"login"}{"event":"logout"}
}
