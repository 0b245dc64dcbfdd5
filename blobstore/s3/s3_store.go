package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"golang.org/x/sync/errgroup"

	"github.com/docstore-io/docstore/blobstore"
)

// metadataKindKey is the object-metadata key carrying the blob kind.
// S3 has no native blob-kind concept, so the adapter records it itself.
const metadataKindKey = "blob-kind"

// appendAttempts bounds the read-modify-write loop Append uses to emulate
// atomic appends on S3.
const appendAttempts = 5

// headConcurrency bounds the per-page HeadObject fan-out List needs to
// resolve blob kinds (ListObjectsV2 does not return object metadata).
const headConcurrency = 8

// Client is the subset of the S3 API the store uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// Ensure Store implements blobstore.Store
var _ blobstore.Store = (*Store)(nil)

// Store implements blobstore.Store on Amazon S3. Containers map to buckets,
// version tokens are ETags, and conditional writes use the If-Match /
// If-None-Match support of PutObject.
type Store struct {
	client Client
	prefix string
}

// New creates an S3 blob store. rootPrefix is prepended to all keys
// (e.g. "docs/").
func New(client Client, rootPrefix string) *Store {
	return &Store{
		client: client,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// CreateContainer ensures the bucket exists.
func (s *Store) CreateContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(container),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return translateError(err)
	}
	return nil
}

// DeleteContainer removes every object under the store's prefix, then the
// bucket itself.
func (s *Store) DeleteContainer(ctx context.Context, container string) error {
	cursor := ""
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(container),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: nilIfEmpty(cursor),
		})
		if err != nil {
			return translateError(err)
		}
		for _, obj := range page.Contents {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(container),
				Key:    obj.Key,
			})
			if err != nil {
				return translateError(err)
			}
		}
		if page.NextContinuationToken == nil {
			break
		}
		cursor = *page.NextContinuationToken
	}

	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(container),
	})
	return translateError(err)
}

// Put writes an object, mapping blobstore conditions onto S3 conditional
// writes.
func (s *Store) Put(ctx context.Context, container, name string, kind blobstore.Kind, props blobstore.Properties, content []byte, cond blobstore.Conditions) (blobstore.Token, error) {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(container),
		Key:      aws.String(s.key(name)),
		Body:     bytes.NewReader(content),
		Metadata: metadataFor(kind, props),
	}
	applyProperties(input, props)
	if cond.IfNotExists {
		input.IfNoneMatch = aws.String("*")
	}
	if cond.IfMatch != "" {
		input.IfMatch = aws.String(string(cond.IfMatch))
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailure(err) {
			if cond.IfNotExists {
				return "", fmt.Errorf("%w: %s", blobstore.ErrAlreadyExists, name)
			}
			return "", fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
		}
		return "", translateError(err)
	}
	return blobstore.Token(aws.ToString(out.ETag)), nil
}

// Get reads an object. With cond.IfNoneMatch set, an HTTP 304 from S3 maps to
// blobstore.ErrNotModified.
func (s *Store) Get(ctx context.Context, container, name string, cond blobstore.Conditions) (*blobstore.Object, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(s.key(name)),
	}
	if cond.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(string(cond.IfNoneMatch))
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotModified(err) {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrNotModified, name)
		}
		return nil, translateError(err)
	}
	defer func() { _ = out.Body.Close() }()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}

	return &blobstore.Object{
		Content: content,
		Token:   blobstore.Token(aws.ToString(out.ETag)),
		Kind:    blobstore.Kind(out.Metadata[metadataKindKey]),
		Properties: blobstore.Properties{
			ContentType:     aws.ToString(out.ContentType),
			ContentEncoding: aws.ToString(out.ContentEncoding),
			ContentLanguage: aws.ToString(out.ContentLanguage),
			CacheControl:    aws.ToString(out.CacheControl),
			Metadata:        userMetadata(out.Metadata),
		},
	}, nil
}

// Head returns an object's attributes without its content.
func (s *Store) Head(ctx context.Context, container, name string) (*blobstore.Attributes, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, translateError(err)
	}

	return &blobstore.Attributes{
		Kind:  blobstore.Kind(out.Metadata[metadataKindKey]),
		Token: blobstore.Token(aws.ToString(out.ETag)),
		Size:  aws.ToInt64(out.ContentLength),
		Properties: blobstore.Properties{
			ContentType:     aws.ToString(out.ContentType),
			ContentEncoding: aws.ToString(out.ContentEncoding),
			ContentLanguage: aws.ToString(out.ContentLanguage),
			CacheControl:    aws.ToString(out.CacheControl),
			Metadata:        userMetadata(out.Metadata),
		},
	}, nil
}

// Delete removes an object. S3's DeleteObject is silent about missing keys
// and lacks If-Match outside directory buckets, so both the existence check
// and the token comparison run client-side; the window between check and
// delete is the backend's usual read-then-write race.
func (s *Store) Delete(ctx context.Context, container, name string, cond blobstore.Conditions) error {
	attrs, err := s.Head(ctx, container, name)
	if err != nil {
		return err
	}
	if cond.IfMatch != "" && attrs.Token != cond.IfMatch {
		return fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(s.key(name)),
	})
	return translateError(err)
}

// Append emulates an atomic append with a conditional read-modify-write:
// fetch the current content, concatenate, and write back If-Match. Lost races
// retry with fresh content.
func (s *Store) Append(ctx context.Context, container, name string, content []byte) error {
	for attempt := 0; attempt < appendAttempts; attempt++ {
		obj, err := s.Get(ctx, container, name, blobstore.Conditions{})
		if err != nil {
			return err
		}

		combined := make([]byte, 0, len(obj.Content)+len(content))
		combined = append(combined, obj.Content...)
		combined = append(combined, content...)

		_, err = s.Put(ctx, container, name, obj.Kind, obj.Properties, combined, blobstore.Conditions{IfMatch: obj.Token})
		if err == nil {
			return nil
		}
		if !errors.Is(err, blobstore.ErrPreconditionFailed) {
			return err
		}
	}
	return fmt.Errorf("%w: append to %s", blobstore.ErrPreconditionFailed, name)
}

// List returns one page of blobs. ListObjectsV2 carries no object metadata,
// so kinds are resolved with a bounded HeadObject fan-out.
func (s *Store) List(ctx context.Context, container string, q blobstore.ListQuery) (*blobstore.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(container),
		Prefix:            aws.String(s.key(q.Prefix)),
		ContinuationToken: nilIfEmpty(q.Cursor),
	}
	if q.MaxResults > 0 {
		input.MaxKeys = aws.Int32(int32(q.MaxResults))
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}

	entries := make([]blobstore.ListEntry, len(out.Contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headConcurrency)
	for i, obj := range out.Contents {
		entries[i] = blobstore.ListEntry{
			Name: s.relativeName(aws.ToString(obj.Key)),
			Size: aws.ToInt64(obj.Size),
		}
		key := aws.ToString(obj.Key)
		g.Go(func() error {
			head, err := s.client.HeadObject(gctx, &s3.HeadObjectInput{
				Bucket: aws.String(container),
				Key:    aws.String(key),
			})
			if err != nil {
				return translateError(err)
			}
			entries[i].Kind = blobstore.Kind(head.Metadata[metadataKindKey])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &blobstore.ListPage{Entries: entries}
	if out.NextContinuationToken != nil {
		page.NextCursor = *out.NextContinuationToken
	}
	sort.Slice(page.Entries, func(i, j int) bool { return page.Entries[i].Name < page.Entries[j].Name })
	return page, nil
}

func (s *Store) relativeName(key string) string {
	if s.prefix == "" {
		return key
	}
	name := strings.TrimPrefix(key, s.prefix)
	return strings.TrimPrefix(name, "/")
}

func metadataFor(kind blobstore.Kind, props blobstore.Properties) map[string]string {
	md := map[string]string{metadataKindKey: string(kind)}
	for k, v := range props.Metadata {
		md[k] = v
	}
	return md
}

func userMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if k == metadataKindKey {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func applyProperties(input *s3.PutObjectInput, props blobstore.Properties) {
	if props.ContentType != "" {
		input.ContentType = aws.String(props.ContentType)
	}
	if props.ContentEncoding != "" {
		input.ContentEncoding = aws.String(props.ContentEncoding)
	}
	if props.ContentLanguage != "" {
		input.ContentLanguage = aws.String(props.ContentLanguage)
	}
	if props.CacheControl != "" {
		input.CacheControl = aws.String(props.CacheControl)
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
	}
	return false
}

func isNotModified(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotModified" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 304
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("%w: %s", blobstore.ErrContainerNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied":
			return fmt.Errorf("%w: %s", blobstore.ErrUnauthorized, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", blobstore.ErrContainerNotFound, err)
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
		}
	}
	return err
}
