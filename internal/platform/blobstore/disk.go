package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskFileStore stores attachment content as files under a root directory.
// Keys are sanitized to their base name so a key can never escape the root.
type DiskFileStore struct {
	root string
}

// NewDiskFileStore creates the root directory if needed and returns a store
// over it.
func NewDiskFileStore(root string) (*DiskFileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir %s: %w", root, err)
	}
	return &DiskFileStore{root: root}, nil
}

func (s *DiskFileStore) path(key string) string {
	return filepath.Join(s.root, filepath.Base(key))
}

func (s *DiskFileStore) Save(_ context.Context, key string, content io.Reader) (int64, error) {
	data, err := readCapped(content)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return 0, fmt.Errorf("writing %s: %w", key, err)
	}
	return int64(len(data)), nil
}

func (s *DiskFileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	return f, nil
}

func (s *DiskFileStore) Remove(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrFileNotFound
	}
	return err
}
