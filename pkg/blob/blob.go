package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists small binary objects (profile photos) and returns a
// reference the enriched profile records
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (ref string, err error)
}

// FilesystemStore stores blobs under a root directory
type FilesystemStore struct {
	rootDir string
}

// NewFilesystemStore creates a filesystem-backed blob store
func NewFilesystemStore(rootDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root directory: %w", err)
	}
	return &FilesystemStore{rootDir: rootDir}, nil
}

// Put writes the blob and returns its absolute path as the reference
func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path := filepath.Join(s.rootDir, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return path, nil
}
