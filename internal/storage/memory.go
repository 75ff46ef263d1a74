package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	upload_errors "chunkstore/pkg/errors"
)

// MemoryStore is an in-process ObjectStore for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// ComposeCalls counts physical compose operations, so tests can assert
	// deduplication skipped the assembly.
	ComposeCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[path] = buf
	return nil
}

func (m *MemoryStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, upload_errors.NewStorageError("open", path, fmt.Errorf("object not found"))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) Compose(ctx context.Context, sources []string, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	for _, src := range sources {
		data, ok := m.objects[src]
		if !ok {
			return upload_errors.NewStorageError("compose", src, fmt.Errorf("source object not found"))
		}
		buf.Write(data)
	}
	m.objects[target] = buf.Bytes()
	m.ComposeCalls++
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *MemoryStore) AccessURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[path]; !ok {
		return "", upload_errors.NewStorageError("presign-get", path, fmt.Errorf("object not found"))
	}
	return "memory://" + path, nil
}

func (m *MemoryStore) PresignPut(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "memory://" + path, nil
}

// Object returns a copy of the stored bytes, for test assertions.
func (m *MemoryStore) Object(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, true
}

// Len returns how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
