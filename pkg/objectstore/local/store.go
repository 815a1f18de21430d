// Package local provides a filesystem-backed Store, used in single-node
// deployments and tests where no S3-compatible service is available. It
// does not support presigned URLs (see spec §4.1: "Local (presigned
// unsupported)").
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremybastin1207/mindia/internal/merrors"
	"github.com/jeremybastin1207/mindia/pkg/objectstore"
)

// Config holds configuration for the local filesystem store.
type Config struct {
	// RootDir is the directory under which all objects are stored.
	RootDir string

	// BaseURL, if set, is prefixed to keys to form the "durable URL"
	// Upload/UploadWithKey/Copy return (e.g. a static-file server mounted
	// at RootDir).
	BaseURL string
}

// Store is a filesystem-backed implementation of objectstore.Store.
type Store struct {
	rootDir string
	baseURL string
	mu      sync.Mutex
}

// New creates a filesystem-backed store rooted at config.RootDir, creating
// the directory if it does not exist.
func New(config Config) (*Store, error) {
	if config.RootDir == "" {
		return nil, merrors.New(merrors.InvalidInput, "objectstore.local.New", fmt.Errorf("root dir required"))
	}
	if err := os.MkdirAll(config.RootDir, 0o755); err != nil {
		return nil, merrors.New(merrors.StorageError, "objectstore.local.New", err)
	}
	return &Store{rootDir: config.RootDir, baseURL: config.BaseURL}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(key))
}

func (s *Store) url(key string) string {
	if s.baseURL == "" {
		return "file://" + s.path(key)
	}
	return s.baseURL + "/" + key
}

// Upload stores bytes under a generated key of the form
// "{tenant}/{uuid}-{filename}".
func (s *Store) Upload(ctx context.Context, tenant, filename, contentType string, body []byte) (string, string, error) {
	key := fmt.Sprintf("%s/%s-%s", tenant, uuid.NewString(), filename)
	url, err := s.UploadWithKey(ctx, key, body, contentType)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// UploadWithKey writes body at key, creating parent directories as needed.
func (s *Store) UploadWithKey(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.local.UploadWithKey", err)
	}

	tmp := dest + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.local.UploadWithKey", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", merrors.New(merrors.StorageError, "objectstore.local.UploadWithKey", err)
	}

	return s.url(key), nil
}

// Download reads the complete contents at key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, merrors.New(merrors.NotFound, "objectstore.local.Download", err)
		}
		return nil, merrors.New(merrors.StorageError, "objectstore.local.Download", err)
	}
	return data, nil
}

// Exists reports whether key names a file.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, merrors.New(merrors.StorageError, "objectstore.local.Exists", err)
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return merrors.New(merrors.StorageError, "objectstore.local.Delete", err)
	}
	return nil
}

// Copy duplicates src to dst.
func (s *Store) Copy(ctx context.Context, src, dst string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := os.Open(s.path(src))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", merrors.New(merrors.NotFound, "objectstore.local.Copy", err)
		}
		return "", merrors.New(merrors.StorageError, "objectstore.local.Copy", err)
	}
	defer in.Close()

	destPath := s.path(dst)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.local.Copy", err)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.local.Copy", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(destPath)
		return "", merrors.New(merrors.StorageError, "objectstore.local.Copy", err)
	}

	return s.url(dst), nil
}

// PresignedPutURL is unsupported on the local backend.
func (s *Store) PresignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "", merrors.New(merrors.Unrecoverable, "objectstore.local.PresignedPutURL", fmt.Errorf("presigned URLs unsupported on local backend"))
}

// PresignedGetURL is unsupported on the local backend.
func (s *Store) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", merrors.New(merrors.Unrecoverable, "objectstore.local.PresignedGetURL", fmt.Errorf("presigned URLs unsupported on local backend"))
}

// BackendKind reports Local: presigned operations are not supported.
func (s *Store) BackendKind() objectstore.BackendKind {
	return objectstore.Local
}

// DeleteByPrefix removes every file whose key starts with prefix.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	root := s.path(prefix)
	err := filepath.WalkDir(filepath.Dir(root), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.rootDir, path)
		if relErr != nil {
			return relErr
		}
		if filepathHasPrefix(filepath.ToSlash(rel), prefix) {
			return os.Remove(path)
		}
		return nil
	})
	if err != nil {
		return merrors.New(merrors.StorageError, "objectstore.local.DeleteByPrefix", err)
	}
	return nil
}

// ListByPrefix lists all keys starting with prefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.rootDir, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if filepathHasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, merrors.New(merrors.StorageError, "objectstore.local.ListByPrefix", err)
	}
	return keys, nil
}

func filepathHasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

var _ objectstore.Store = (*Store)(nil)
