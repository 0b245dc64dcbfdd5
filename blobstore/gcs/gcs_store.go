package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/docstore-io/docstore/blobstore"
)

// metadataKindKey is the object-metadata key carrying the blob kind.
const metadataKindKey = "blob-kind"

// appendAttempts bounds the read-modify-write loop Append uses to emulate
// atomic appends.
const appendAttempts = 5

// defaultPageSize caps List pages when the caller does not set MaxResults.
const defaultPageSize = 1000

// Ensure Store implements blobstore.Store
var _ blobstore.Store = (*Store)(nil)

// Store implements blobstore.Store on Google Cloud Storage. Containers map
// to buckets, version tokens are object generations, and conditional writes
// use generation preconditions.
type Store struct {
	client    *storage.Client
	projectID string
	prefix    string
}

// New creates a GCS blob store. projectID is used when creating buckets.
// rootPrefix is prepended to all object names (e.g. "docs/").
func New(client *storage.Client, projectID, rootPrefix string) *Store {
	return &Store{
		client:    client,
		projectID: projectID,
		prefix:    rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// CreateContainer ensures the bucket exists.
func (s *Store) CreateContainer(ctx context.Context, container string) error {
	err := s.client.Bucket(container).Create(ctx, s.projectID, nil)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return nil
		}
		return translateError(err)
	}
	return nil
}

// DeleteContainer removes every object under the store's prefix, then the
// bucket itself.
func (s *Store) DeleteContainer(ctx context.Context, container string) error {
	bucket := s.client.Bucket(container)
	it := bucket.Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return translateError(err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			return translateError(err)
		}
	}
	return translateError(bucket.Delete(ctx))
}

// Put writes an object, mapping blobstore conditions onto generation
// preconditions.
func (s *Store) Put(ctx context.Context, container, name string, kind blobstore.Kind, props blobstore.Properties, content []byte, cond blobstore.Conditions) (blobstore.Token, error) {
	obj := s.client.Bucket(container).Object(s.key(name))

	if cond.IfNotExists {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else if cond.IfMatch != "" {
		gen, err := parseToken(cond.IfMatch)
		if err != nil {
			return "", err
		}
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = props.ContentType
	w.ContentEncoding = props.ContentEncoding
	w.ContentLanguage = props.ContentLanguage
	w.CacheControl = props.CacheControl
	w.Metadata = metadataFor(kind, props)

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", translatePrecondition(err, name, cond)
	}
	if err := w.Close(); err != nil {
		return "", translatePrecondition(err, name, cond)
	}
	return formatToken(w.Attrs().Generation), nil
}

// Get reads an object. With cond.IfNoneMatch set, a read of an unchanged
// generation maps to blobstore.ErrNotModified.
func (s *Store) Get(ctx context.Context, container, name string, cond blobstore.Conditions) (*blobstore.Object, error) {
	obj := s.client.Bucket(container).Object(s.key(name))
	if cond.IfNoneMatch != "" {
		gen, err := parseToken(cond.IfNoneMatch)
		if err != nil {
			return nil, err
		}
		obj = obj.If(storage.Conditions{GenerationNotMatch: gen})
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		if isNotModified(err) {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrNotModified, name)
		}
		return nil, translateError(err)
	}
	defer func() { _ = r.Close() }()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, translateError(err)
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, translateError(err)
	}

	return &blobstore.Object{
		Content:    content,
		Token:      formatToken(attrs.Generation),
		Kind:       blobstore.Kind(attrs.Metadata[metadataKindKey]),
		Properties: propertiesFrom(attrs),
	}, nil
}

// Head returns an object's attributes without its content.
func (s *Store) Head(ctx context.Context, container, name string) (*blobstore.Attributes, error) {
	attrs, err := s.client.Bucket(container).Object(s.key(name)).Attrs(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return &blobstore.Attributes{
		Kind:       blobstore.Kind(attrs.Metadata[metadataKindKey]),
		Token:      formatToken(attrs.Generation),
		Size:       attrs.Size,
		Properties: propertiesFrom(attrs),
	}, nil
}

// Delete removes an object, optionally only at a matching generation.
func (s *Store) Delete(ctx context.Context, container, name string, cond blobstore.Conditions) error {
	obj := s.client.Bucket(container).Object(s.key(name))
	if cond.IfMatch != "" {
		gen, err := parseToken(cond.IfMatch)
		if err != nil {
			return err
		}
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}
	return translatePrecondition(obj.Delete(ctx), name, cond)
}

// Append emulates an atomic append with a generation-guarded
// read-modify-write loop.
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

// List returns one page of blobs. Object listings include metadata, so blob
// kinds come back inline.
func (s *Store) List(ctx context.Context, container string, q blobstore.ListQuery) (*blobstore.ListPage, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = defaultPageSize
	}

	it := s.client.Bucket(container).Objects(ctx, &storage.Query{Prefix: s.key(q.Prefix)})
	pager := iterator.NewPager(it, limit, q.Cursor)

	var attrs []*storage.ObjectAttrs
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, translateError(err)
	}

	page := &blobstore.ListPage{NextCursor: next}
	for _, a := range attrs {
		name := s.relativeName(a.Name)
		if name == "" {
			continue
		}
		page.Entries = append(page.Entries, blobstore.ListEntry{
			Name: name,
			Kind: blobstore.Kind(a.Metadata[metadataKindKey]),
			Size: a.Size,
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

func propertiesFrom(attrs *storage.ObjectAttrs) blobstore.Properties {
	props := blobstore.Properties{
		ContentType:     attrs.ContentType,
		ContentEncoding: attrs.ContentEncoding,
		ContentLanguage: attrs.ContentLanguage,
		CacheControl:    attrs.CacheControl,
	}
	for k, v := range attrs.Metadata {
		if k == metadataKindKey {
			continue
		}
		if props.Metadata == nil {
			props.Metadata = make(map[string]string)
		}
		props.Metadata[k] = v
	}
	return props
}

func formatToken(generation int64) blobstore.Token {
	return blobstore.Token(strconv.FormatInt(generation, 10))
}

func parseToken(tok blobstore.Token) (int64, error) {
	gen, err := strconv.ParseInt(string(tok), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed version token %q: %w", tok, err)
	}
	return gen, nil
}

// translatePrecondition maps a 412 from a conditional write onto the
// blobstore sentinel matching the condition that failed.
func translatePrecondition(err error, name string, cond blobstore.Conditions) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		if cond.IfNotExists {
			return fmt.Errorf("%w: %s", blobstore.ErrAlreadyExists, name)
		}
		return fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, name)
	}
	return translateError(err)
}

func isNotModified(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotModified
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s", blobstore.ErrContainerNotFound, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", blobstore.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", blobstore.ErrUnauthorized, err)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", blobstore.ErrPreconditionFailed, err)
		}
	}
	return err
}
