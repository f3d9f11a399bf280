package storage

import (
	"context"
	"io"
	"sync"
	"time"

	apppayroll "github.com/hrpay/backend/internal/application/payroll"
)

var _ apppayroll.ObjectStorageService = (*StubObjectStorage)(nil)

// StubObjectStorage is the development store used when no bucket is
// configured. It hands out fake URLs and keeps uploaded bytes in memory.
// Keys that were presigned for upload are treated as present, so the
// confirm-upload flow works without a real client upload.
type StubObjectStorage struct {
	// BaseURL prefixes generated URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
	pending map[string]struct{}
}

// NewStubObjectStorage creates a new StubObjectStorage
func NewStubObjectStorage() *StubObjectStorage {
	return &StubObjectStorage{
		BaseURL: "https://storage.example.com",
		objects: make(map[string][]byte),
		pending: make(map[string]struct{}),
	}
}

// GenerateUploadURL returns a fake upload URL and marks the key as uploaded
func (s *StubObjectStorage) GenerateUploadURL(ctx context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrStorageKeyRequired
	}
	s.mu.Lock()
	s.pending[storageKey] = struct{}{}
	s.mu.Unlock()

	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/upload/" + storageKey + "?expires=" + expiresAt.Format(time.RFC3339), expiresAt, nil
}

// GenerateDownloadURL returns a fake download URL
func (s *StubObjectStorage) GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrStorageKeyRequired
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/download/" + storageKey + "?expires=" + expiresAt.Format(time.RFC3339), expiresAt, nil
}

// PutObject keeps the content in memory
func (s *StubObjectStorage) PutObject(ctx context.Context, storageKey, contentType string, body io.Reader, size int64) error {
	if storageKey == "" {
		return ErrStorageKeyRequired
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[storageKey] = data
	s.mu.Unlock()
	return nil
}

// DeleteObject forgets the key
func (s *StubObjectStorage) DeleteObject(ctx context.Context, storageKey string) error {
	if storageKey == "" {
		return ErrStorageKeyRequired
	}
	s.mu.Lock()
	delete(s.objects, storageKey)
	delete(s.pending, storageKey)
	s.mu.Unlock()
	return nil
}

// ObjectExists reports keys that were put or presigned for upload
func (s *StubObjectStorage) ObjectExists(ctx context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, ErrStorageKeyRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[storageKey]; ok {
		return true, nil
	}
	_, ok := s.pending[storageKey]
	return ok, nil
}

// Object returns stored bytes, for tests and local inspection
func (s *StubObjectStorage) Object(storageKey string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[storageKey]
	return data, ok
}
