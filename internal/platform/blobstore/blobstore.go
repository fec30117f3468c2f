// Package blobstore stores uploaded attachment content. It defines the
// FileStore interface, a local-disk implementation for production use, and an
// in-memory implementation for tests. Attachment metadata lives in Postgres;
// this package only handles the bytes.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrInvalidExtension = errors.New("file extension is not allowed")
	ErrMissingFileName  = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed upload size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedExtensions lists the permitted upload file extensions, lowercased
// and including the leading dot.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".txt":  true,
	".csv":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
}

// ValidateFileName checks the name is present and carries an allowed
// extension.
func ValidateFileName(name string) error {
	if name == "" {
		return ErrMissingFileName
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !AllowedExtensions[ext] {
		return fmt.Errorf("%w: %s", ErrInvalidExtension, ext)
	}
	return nil
}

// FileStore is the contract for attachment byte storage. Keys are opaque
// identifiers chosen by the caller.
type FileStore interface {
	// Save writes the content under key. It enforces MaxFileSize and
	// returns the number of bytes written.
	Save(ctx context.Context, key string, content io.Reader) (int64, error)
	// Open returns a reader over the stored content.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes the stored content. Removing a missing key returns
	// ErrFileNotFound.
	Remove(ctx context.Context, key string) error
}

// readCapped reads at most MaxFileSize bytes, failing when the source holds
// more.
func readCapped(content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// InMemoryFileStore is a thread-safe FileStore for tests and development.
type InMemoryFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewInMemoryFileStore returns a ready-to-use InMemoryFileStore.
func NewInMemoryFileStore() *InMemoryFileStore {
	return &InMemoryFileStore{files: make(map[string][]byte)}
}

func (s *InMemoryFileStore) Save(_ context.Context, key string, content io.Reader) (int64, error) {
	data, err := readCapped(content)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.files[key] = data
	s.mu.Unlock()
	return int64(len(data)), nil
}

func (s *InMemoryFileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.files[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryFileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[key]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, key)
	return nil
}
