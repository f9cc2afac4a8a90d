package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// ErrBlobNotFound is returned by BlobStore.Open and BlobStore.Delete for unknown names.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore keeps image files by name.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Delete(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (body io.ReadCloser, contentType string, err error)
}

// LocalStore keeps blobs as files in a single directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir}, nil
}

func validBlobName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

// Put writes to a temporary file first and renames it into place, so a failed write leaves nothing behind.
func (s *LocalStore) Put(_ context.Context, name string, data []byte, _ string) error {
	if !validBlobName(name) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	if !validBlobName(name) {
		return ErrBlobNotFound
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	if !validBlobName(name) {
		return nil, "", ErrBlobNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrBlobNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return f, contentTypeFor(name), nil
}

func contentTypeFor(name string) string {
	ext := filepath.Ext(name)
	if ext == ".webp" {
		return "image/webp"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
