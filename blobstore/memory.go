package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const defaultPageSize = 1000

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for tests and prototyping.
// It implements the full conditional-write contract, so code written against
// it behaves the same on the cloud backends. Thread-safe.
type MemoryStore struct {
	mu         sync.Mutex
	containers map[string]*memoryContainer
	nextRev    uint64
	readOnly   bool
}

type memoryContainer struct {
	blobs map[string]*memoryBlob
}

type memoryBlob struct {
	kind    Kind
	props   Properties
	content []byte
	token   Token
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		containers: make(map[string]*memoryContainer),
	}
}

// SetReadOnly toggles read-only mode. While read-only, every mutating
// operation fails with ErrUnauthorized, mimicking a capability-scoped
// read-only credential.
func (m *MemoryStore) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

func (m *MemoryStore) newToken() Token {
	m.nextRev++
	return Token(strconv.FormatUint(m.nextRev, 10))
}

func (m *MemoryStore) container(name string) (*memoryContainer, error) {
	c, ok := m.containers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	}
	return c, nil
}

// CreateContainer ensures the container exists.
func (m *MemoryStore) CreateContainer(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return ErrUnauthorized
	}
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = &memoryContainer{blobs: make(map[string]*memoryBlob)}
	}
	return nil
}

// DeleteContainer removes the container and all blobs in it.
func (m *MemoryStore) DeleteContainer(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return ErrUnauthorized
	}
	if _, ok := m.containers[container]; !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, container)
	}
	delete(m.containers, container)
	return nil
}

// Put writes a blob, honoring conditional-write semantics.
func (m *MemoryStore) Put(_ context.Context, container, name string, kind Kind, props Properties, content []byte, cond Conditions) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return "", ErrUnauthorized
	}
	c, err := m.container(container)
	if err != nil {
		return "", err
	}

	existing, exists := c.blobs[name]
	if cond.IfNotExists && exists {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	if cond.IfMatch != "" {
		if !exists {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if existing.token != cond.IfMatch {
			return "", fmt.Errorf("%w: %s", ErrPreconditionFailed, name)
		}
	}

	b := &memoryBlob{
		kind:    kind,
		props:   props,
		content: cloneBytes(content),
		token:   m.newToken(),
	}
	c.blobs[name] = b
	return b.token, nil
}

// Get reads a blob, honoring conditional-read semantics.
func (m *MemoryStore) Get(_ context.Context, container, name string, cond Conditions) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.container(container)
	if err != nil {
		return nil, err
	}
	b, ok := c.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if cond.IfNoneMatch != "" && b.token == cond.IfNoneMatch {
		return nil, fmt.Errorf("%w: %s", ErrNotModified, name)
	}

	return &Object{
		Content:    cloneBytes(b.content),
		Token:      b.token,
		Kind:       b.kind,
		Properties: b.props,
	}, nil
}

// Head returns a blob's attributes.
func (m *MemoryStore) Head(_ context.Context, container, name string) (*Attributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.container(container)
	if err != nil {
		return nil, err
	}
	b, ok := c.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return &Attributes{
		Kind:       b.kind,
		Token:      b.token,
		Size:       int64(len(b.content)),
		Properties: b.props,
	}, nil
}

// Delete removes a blob, optionally conditional on the token.
func (m *MemoryStore) Delete(_ context.Context, container, name string, cond Conditions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return ErrUnauthorized
	}
	c, err := m.container(container)
	if err != nil {
		return err
	}
	b, ok := c.blobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if cond.IfMatch != "" && b.token != cond.IfMatch {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, name)
	}
	delete(c.blobs, name)
	return nil
}

// Append adds content to the end of an append-log blob.
func (m *MemoryStore) Append(_ context.Context, container, name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return ErrUnauthorized
	}
	c, err := m.container(container)
	if err != nil {
		return err
	}
	b, ok := c.blobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if b.kind != KindAppendLog {
		return fmt.Errorf("blobstore: append to %s blob %q", b.kind, name)
	}
	b.content = append(b.content, content...)
	b.token = m.newToken()
	return nil
}

// List returns one page of blob names in lexical order.
func (m *MemoryStore) List(_ context.Context, container string, q ListQuery) (*ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.container(container)
	if err != nil {
		return nil, err
	}

	var names []string
	for name := range c.blobs {
		if q.Prefix != "" && !strings.HasPrefix(name, q.Prefix) {
			continue
		}
		if q.Cursor != "" && name <= q.Cursor {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	max := q.MaxResults
	if max <= 0 {
		max = defaultPageSize
	}

	page := &ListPage{}
	for i, name := range names {
		if i == max {
			page.NextCursor = names[i-1]
			break
		}
		b := c.blobs[name]
		page.Entries = append(page.Entries, ListEntry{
			Name: name,
			Kind: b.kind,
			Size: int64(len(b.content)),
		})
	}
	return page, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
