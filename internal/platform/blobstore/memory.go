package blobstore

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type storedObject struct {
	contentType string
	content     []byte
}

// MemoryStore is a thread-safe, in-memory Store for testing/dev.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*storedObject),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader, size int64, contentType string) error {
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return ErrFileTooLarge
	}

	s.mu.Lock()
	s.objects[key] = &storedObject{contentType: contentType, content: data}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrObjectNotFound
	}

	content := make([]byte, len(obj.content))
	copy(content, obj.content)
	return &Object{
		Key:         key,
		ContentType: obj.contentType,
		Size:        int64(len(content)),
		Content:     content,
	}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Copy(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.objects[srcKey]
	if !ok {
		return ErrObjectNotFound
	}
	content := make([]byte, len(src.content))
	copy(content, src.content)
	s.objects[dstKey] = &storedObject{contentType: src.contentType, content: content}
	return nil
}

func (s *MemoryStore) PresignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, time.Now().Add(expiry).Unix()), nil
}
