package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/docstore-io/docstore/blobstore"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Ensure Store implements blobstore.Store
var _ blobstore.Store = (*Store)(nil)

// Store implements blobstore.Store on a single DynamoDB table. Containers map
// to partition-key values, version tokens are a per-item revision counter,
// and conditional writes use DynamoDB condition expressions. Appends use
// list_append, which is natively atomic.
//
// Table schema:
//   - Partition key: container (string)
//   - Sort key: name (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name docstore \
//	  --attribute-definitions AttributeName=container,AttributeType=S AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=container,KeyType=HASH AttributeName=name,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Store struct {
	client    Client
	tableName string
}

// defaultPageSize caps List pages when the caller does not set MaxResults.
const defaultPageSize = 1000

// New creates a DynamoDB blob store on an existing table.
func New(client Client, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

func itemKey(container, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"container": &types.AttributeValueMemberS{Value: container},
		"name":      &types.AttributeValueMemberS{Value: name},
	}
}

// CreateContainer is a no-op: containers are partition-key values on a
// pre-provisioned table.
func (s *Store) CreateContainer(ctx context.Context, container string) error {
	return nil
}

// DeleteContainer removes every item in the container's partition.
func (s *Store) DeleteContainer(ctx context.Context, container string) error {
	cursor := ""
	for {
		page, err := s.List(ctx, container, blobstore.ListQuery{Cursor: cursor})
		if err != nil {
			return err
		}
		for _, entry := range page.Entries {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key:       itemKey(container, entry.Name),
			})
			if err != nil {
				return translateError(err)
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// Put writes an item. The revision counter advances on every write and
// doubles as the version token; appended fragments are reset.
func (s *Store) Put(ctx context.Context, container, name string, kind blobstore.Kind, props blobstore.Properties, content []byte, cond blobstore.Conditions) (blobstore.Token, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              itemKey(container, name),
		UpdateExpression: aws.String("SET #rev = if_not_exists(#rev, :zero) + :one, #kind = :kind, #content = :content, #frags = :frags, #props = :props"),
		ExpressionAttributeNames: map[string]string{
			"#rev":     "rev",
			"#kind":    "kind",
			"#content": "content",
			"#frags":   "frags",
			"#props":   "props",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":    &types.AttributeValueMemberN{Value: "0"},
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":kind":    &types.AttributeValueMemberS{Value: string(kind)},
			":content": &types.AttributeValueMemberB{Value: content},
			":frags":   &types.AttributeValueMemberL{Value: nil},
			":props":   marshalProperties(props),
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if cond.IfNotExists {
		input.ConditionExpression = aws.String("attribute_not_exists(#rev)")
	} else if cond.IfMatch != "" {
		input.ConditionExpression = aws.String("#rev = :expected")
		input.ExpressionAttributeValues[":expected"] = &types.AttributeValueMemberN{Value: string(cond.IfMatch)}
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if cond.IfNotExists {
				return "", fmt.Errorf("%w: %s", blobstore.ErrAlreadyExists, name)
			}
			if len(ccf.Item) == 0 {
				return "", fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
			}
			return "", fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
		}
		return "", translateError(err)
	}
	return tokenFrom(out.Attributes), nil
}

// Get reads an item with a consistent read. With cond.IfNoneMatch set, an
// unchanged revision maps to blobstore.ErrNotModified.
func (s *Store) Get(ctx context.Context, container, name string, cond blobstore.Conditions) (*blobstore.Object, error) {
	item, err := s.getItem(ctx, container, name)
	if err != nil {
		return nil, err
	}

	tok := tokenFrom(item)
	if cond.IfNoneMatch != "" && tok == cond.IfNoneMatch {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotModified, name)
	}

	return &blobstore.Object{
		Content:    contentFrom(item),
		Token:      tok,
		Kind:       kindFrom(item),
		Properties: unmarshalProperties(item["props"]),
	}, nil
}

// Head returns an item's attributes without its content.
func (s *Store) Head(ctx context.Context, container, name string) (*blobstore.Attributes, error) {
	item, err := s.getItem(ctx, container, name)
	if err != nil {
		return nil, err
	}
	return &blobstore.Attributes{
		Kind:       kindFrom(item),
		Token:      tokenFrom(item),
		Size:       int64(len(contentFrom(item))),
		Properties: unmarshalProperties(item["props"]),
	}, nil
}

// Delete removes an item, optionally only at a matching revision.
func (s *Store) Delete(ctx context.Context, container, name string, cond blobstore.Conditions) error {
	input := &dynamodb.DeleteItemInput{
		TableName:                           aws.String(s.tableName),
		Key:                                 itemKey(container, name),
		ConditionExpression:                 aws.String("attribute_exists(#rev)"),
		ExpressionAttributeNames:            map[string]string{"#rev": "rev"},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	if cond.IfMatch != "" {
		input.ConditionExpression = aws.String("attribute_exists(#rev) AND #rev = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: string(cond.IfMatch)},
		}
	}

	_, err := s.client.DeleteItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
			}
			return fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
		}
		return translateError(err)
	}
	return nil
}

// Append appends a fragment via list_append, which DynamoDB applies
// atomically. The revision advances so open version tokens are invalidated.
func (s *Store) Append(ctx context.Context, container, name string, content []byte) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 itemKey(container, name),
		UpdateExpression:    aws.String("SET #frags = list_append(if_not_exists(#frags, :empty), :frag), #rev = #rev + :one"),
		ConditionExpression: aws.String("attribute_exists(#rev)"),
		ExpressionAttributeNames: map[string]string{
			"#rev":   "rev",
			"#frags": "frags",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: nil},
			":frag": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberB{Value: content},
			}},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
		}
		return translateError(err)
	}
	return nil
}

// List returns one page of blobs from the container's partition.
func (s *Store) List(ctx context.Context, container string, q blobstore.ListQuery) (*blobstore.ListPage, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = defaultPageSize
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(s.tableName),
		KeyConditionExpression:   aws.String("#container = :container"),
		ExpressionAttributeNames: map[string]string{"#container": "container"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":container": &types.AttributeValueMemberS{Value: container},
		},
		Limit: aws.Int32(int32(limit)),
	}
	if q.Prefix != "" {
		input.KeyConditionExpression = aws.String("#container = :container AND begins_with(#name, :prefix)")
		input.ExpressionAttributeNames["#name"] = "name"
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: q.Prefix}
	}
	if q.Cursor != "" {
		input.ExclusiveStartKey = itemKey(container, q.Cursor)
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}

	page := &blobstore.ListPage{}
	for _, item := range out.Items {
		name := ""
		if v, ok := item["name"].(*types.AttributeValueMemberS); ok {
			name = v.Value
		}
		page.Entries = append(page.Entries, blobstore.ListEntry{
			Name: name,
			Kind: kindFrom(item),
			Size: int64(len(contentFrom(item))),
		})
	}
	if out.LastEvaluatedKey != nil {
		if v, ok := out.LastEvaluatedKey["name"].(*types.AttributeValueMemberS); ok {
			page.NextCursor = v.Value
		}
	}
	return page, nil
}

func (s *Store) getItem(ctx context.Context, container, name string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(container, name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, translateError(err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
	}
	return out.Item, nil
}

func tokenFrom(item map[string]types.AttributeValue) blobstore.Token {
	if v, ok := item["rev"].(*types.AttributeValueMemberN); ok {
		return blobstore.Token(v.Value)
	}
	return ""
}

func kindFrom(item map[string]types.AttributeValue) blobstore.Kind {
	if v, ok := item["kind"].(*types.AttributeValueMemberS); ok {
		return blobstore.Kind(v.Value)
	}
	return ""
}

// contentFrom reassembles an item's content: the base payload followed by
// appended fragments in order.
func contentFrom(item map[string]types.AttributeValue) []byte {
	var content []byte
	if v, ok := item["content"].(*types.AttributeValueMemberB); ok {
		content = append(content, v.Value...)
	}
	if frags, ok := item["frags"].(*types.AttributeValueMemberL); ok {
		for _, frag := range frags.Value {
			if b, ok := frag.(*types.AttributeValueMemberB); ok {
				content = append(content, b.Value...)
			}
		}
	}
	return content
}

func marshalProperties(props blobstore.Properties) types.AttributeValue {
	m := make(map[string]types.AttributeValue)
	if props.ContentType != "" {
		m["content_type"] = &types.AttributeValueMemberS{Value: props.ContentType}
	}
	if props.ContentEncoding != "" {
		m["content_encoding"] = &types.AttributeValueMemberS{Value: props.ContentEncoding}
	}
	if props.ContentLanguage != "" {
		m["content_language"] = &types.AttributeValueMemberS{Value: props.ContentLanguage}
	}
	if props.CacheControl != "" {
		m["cache_control"] = &types.AttributeValueMemberS{Value: props.CacheControl}
	}
	if len(props.Metadata) > 0 {
		meta := make(map[string]types.AttributeValue, len(props.Metadata))
		for k, v := range props.Metadata {
			meta[k] = &types.AttributeValueMemberS{Value: v}
		}
		m["metadata"] = &types.AttributeValueMemberM{Value: meta}
	}
	return &types.AttributeValueMemberM{Value: m}
}

func unmarshalProperties(av types.AttributeValue) blobstore.Properties {
	var props blobstore.Properties
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return props
	}
	str := func(key string) string {
		if v, ok := m.Value[key].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	props.ContentType = str("content_type")
	props.ContentEncoding = str("content_encoding")
	props.ContentLanguage = str("content_language")
	props.CacheControl = str("cache_control")
	if meta, ok := m.Value["metadata"].(*types.AttributeValueMemberM); ok && len(meta.Value) > 0 {
		props.Metadata = make(map[string]string, len(meta.Value))
		for k, v := range meta.Value {
			if sv, ok := v.(*types.AttributeValueMemberS); ok {
				props.Metadata[k] = sv.Value
			}
		}
	}
	return props
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("%w: %s", blobstore.ErrContainerNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied":
			return fmt.Errorf("%w: %s", blobstore.ErrUnauthorized, err)
		}
	}
	return err
}
