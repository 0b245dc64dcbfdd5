// Package dynamo provides a DynamoDB implementation of the blobstore.Store
// interface, storing blobs as items in a single pre-provisioned table.
//
// # Usage
//
//	client := dynamodb.NewFromConfig(cfg)
//	store := dynamo.New(client, "docstore")
//
//	c, err := docstore.New(store, "my-container", schema)
//
// # Mapping
//
//   - Containers map to partition-key values; CreateContainer is a no-op
//   - Version tokens are a per-item revision counter
//   - Conditional writes use condition expressions with
//     ReturnValuesOnConditionCheckFailure to tell a missing item from a
//     stale token
//   - Appends use list_append and are natively atomic
//
// Item payloads count against DynamoDB's 400 KB item limit, so this backend
// suits small documents and modest append logs.
package dynamo
