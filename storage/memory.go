package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type memoryBlob struct {
	data []byte
	meta Meta
}

// MemoryStore keeps blobs in process memory; used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objs    map[string]memoryBlob
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) Put(_ context.Context, key string, body io.Reader, meta Meta) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return "", fmt.Errorf("blob %s already exists", key)
	}
	s.objs[key] = memoryBlob{data: b, meta: meta}
	return joinURL(s.baseURL, key), nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	data := append([]byte(nil), obj.data...)
	return &Object{Body: io.NopCloser(bytes.NewReader(data)), Meta: obj.meta, Size: int64(len(data))}, nil
}

func (s *MemoryStore) Stat(_ context.Context, key string) (Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	if !ok {
		return Meta{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return obj.meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	delete(s.objs, key)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
