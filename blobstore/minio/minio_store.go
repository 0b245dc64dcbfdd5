package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/docstore-io/docstore/blobstore"
)

// metadataKindKey is the user-metadata key carrying the blob kind. MinIO
// canonicalizes user-metadata keys, so lookups go through kindFromMetadata.
const metadataKindKey = "Blob-Kind"

// appendAttempts bounds the read-modify-write loop Append uses to emulate
// atomic appends.
const appendAttempts = 5

// defaultPageSize caps List pages when the caller does not set MaxResults.
const defaultPageSize = 1000

// Ensure Store implements blobstore.Store
var _ blobstore.Store = (*Store)(nil)

// Store implements blobstore.Store for MinIO and S3-compatible storage.
// Containers map to buckets, version tokens are ETags, and conditional writes
// use the If-Match / If-None-Match support of recent MinIO releases.
type Store struct {
	client *minio.Client
	prefix string
}

// New creates a MinIO blob store. rootPrefix is prepended to all keys
// (e.g. "docs/").
func New(client *minio.Client, rootPrefix string) *Store {
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
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return translateError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
			return nil
		}
		return translateError(err)
	}
	return nil
}

// DeleteContainer removes every object under the store's prefix, then the
// bucket itself.
func (s *Store) DeleteContainer(ctx context.Context, container string) error {
	for obj := range s.client.ListObjects(ctx, container, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return translateError(obj.Err)
		}
		if err := s.client.RemoveObject(ctx, container, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return translateError(err)
		}
	}
	return translateError(s.client.RemoveBucket(ctx, container))
}

// Put writes an object, mapping blobstore conditions onto MinIO's conditional
// write headers.
func (s *Store) Put(ctx context.Context, container, name string, kind blobstore.Kind, props blobstore.Properties, content []byte, cond blobstore.Conditions) (blobstore.Token, error) {
	opts := minio.PutObjectOptions{
		ContentType:     props.ContentType,
		ContentEncoding: props.ContentEncoding,
		ContentLanguage: props.ContentLanguage,
		CacheControl:    props.CacheControl,
		UserMetadata:    metadataFor(kind, props),
	}
	if cond.IfNotExists {
		opts.SetMatchETagExcept("*")
	}
	if cond.IfMatch != "" {
		opts.SetMatchETag(string(cond.IfMatch))
	}

	info, err := s.client.PutObject(ctx, container, s.key(name), bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		if isPreconditionFailure(err) {
			if cond.IfNotExists {
				return "", fmt.Errorf("%w: %s", blobstore.ErrAlreadyExists, name)
			}
			return "", fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
		}
		return "", translateError(err)
	}
	return blobstore.Token(info.ETag), nil
}

// Get reads an object. With cond.IfNoneMatch set, an HTTP 304 maps to
// blobstore.ErrNotModified.
func (s *Store) Get(ctx context.Context, container, name string, cond blobstore.Conditions) (*blobstore.Object, error) {
	opts := minio.GetObjectOptions{}
	if cond.IfNoneMatch != "" {
		if err := opts.SetMatchETagExcept(string(cond.IfNoneMatch)); err != nil {
			return nil, err
		}
	}

	obj, err := s.client.GetObject(ctx, container, s.key(name), opts)
	if err != nil {
		return nil, translateError(err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; Stat forces the request so conditional failures
	// surface here.
	info, err := obj.Stat()
	if err != nil {
		if isNotModified(err) {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrNotModified, name)
		}
		return nil, translateError(err)
	}

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(err)
	}

	return &blobstore.Object{
		Content:    content,
		Token:      blobstore.Token(info.ETag),
		Kind:       kindFromMetadata(info.UserMetadata),
		Properties: propertiesFrom(info),
	}, nil
}

// Head returns an object's attributes without its content.
func (s *Store) Head(ctx context.Context, container, name string) (*blobstore.Attributes, error) {
	info, err := s.client.StatObject(ctx, container, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}
	return &blobstore.Attributes{
		Kind:       kindFromMetadata(info.UserMetadata),
		Token:      blobstore.Token(info.ETag),
		Size:       info.Size,
		Properties: propertiesFrom(info),
	}, nil
}

// Delete removes an object. MinIO's RemoveObject is silent about missing keys
// and carries no If-Match, so both checks run client-side via StatObject.
func (s *Store) Delete(ctx context.Context, container, name string, cond blobstore.Conditions) error {
	info, err := s.client.StatObject(ctx, container, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		return translateError(err)
	}
	if cond.IfMatch != "" && blobstore.Token(info.ETag) != cond.IfMatch {
		return fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
	}
	return translateError(s.client.RemoveObject(ctx, container, s.key(name), minio.RemoveObjectOptions{}))
}

// Append emulates an atomic append with a conditional read-modify-write loop.
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

// List returns one page of blobs. ListObjects with WithMetadata carries the
// blob kind in each entry, so no per-object stat calls are needed.
func (s *Store) List(ctx context.Context, container string, q blobstore.ListQuery) (*blobstore.ListPage, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = defaultPageSize
	}

	opts := minio.ListObjectsOptions{
		Prefix:       s.key(q.Prefix),
		Recursive:    true,
		WithMetadata: true,
	}
	if q.Cursor != "" {
		opts.StartAfter = s.key(q.Cursor)
	}

	page := &blobstore.ListPage{}
	for obj := range s.client.ListObjects(ctx, container, opts) {
		if obj.Err != nil {
			return nil, translateError(obj.Err)
		}
		name := s.relativeName(obj.Key)
		if name == "" {
			continue
		}
		if len(page.Entries) == limit {
			page.NextCursor = page.Entries[limit-1].Name
			return page, nil
		}
		page.Entries = append(page.Entries, blobstore.ListEntry{
			Name: name,
			Kind: kindFromMetadata(obj.UserMetadata),
			Size: obj.Size,
		})
	}
	return page, nil
}

func (s *Store) relativeName(key string) string {
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

// kindFromMetadata tolerates the key canonicalization MinIO applies to user
// metadata on the way back.
func kindFromMetadata(md map[string]string) blobstore.Kind {
	for _, key := range []string{metadataKindKey, "blob-kind", "X-Amz-Meta-Blob-Kind"} {
		if v, ok := md[key]; ok {
			return blobstore.Kind(v)
		}
	}
	return ""
}

func propertiesFrom(info minio.ObjectInfo) blobstore.Properties {
	props := blobstore.Properties{
		ContentType:  info.ContentType,
		CacheControl: info.Metadata.Get("Cache-Control"),
	}
	props.ContentEncoding = info.Metadata.Get("Content-Encoding")
	props.ContentLanguage = info.Metadata.Get("Content-Language")
	for k, v := range info.UserMetadata {
		if k == metadataKindKey || k == "blob-kind" || k == "X-Amz-Meta-Blob-Kind" {
			continue
		}
		if props.Metadata == nil {
			props.Metadata = make(map[string]string)
		}
		props.Metadata[k] = v
	}
	return props
}

func isPreconditionFailure(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "PreconditionFailed" || resp.StatusCode == http.StatusPreconditionFailed
}

func isNotModified(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NotModified" || resp.StatusCode == http.StatusNotModified
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
	case "NoSuchBucket":
		return fmt.Errorf("%w: %s", blobstore.ErrContainerNotFound, err)
	case "AccessDenied":
		return fmt.Errorf("%w: %s", blobstore.ErrUnauthorized, err)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", blobstore.ErrUnauthorized, err)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, err)
	}
	return err
}
