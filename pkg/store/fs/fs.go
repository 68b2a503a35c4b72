// Package fs implements a store.BlobStore on the local filesystem.
//
// Layout: <root>/<namespace>/<key>. Blobs are written to a temporary file in
// the namespace directory and renamed into place, so readers never observe a
// partial blob and a failed write leaves the previous blob untouched.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/ftpplus/pkg/store"
)

// tempPrefix marks in-flight writes. "~" is outside the file-name character
// set, so no stored name can carry it.
const tempPrefix = "~ftpplus-tmp-"

// Config holds filesystem backend options.
type Config struct {
	// Path is the storage root. Created if missing.
	Path string `mapstructure:"path"`

	// DirMode and FileMode default to 0700 and 0600.
	DirMode  os.FileMode `mapstructure:"dir_mode"`
	FileMode os.FileMode `mapstructure:"file_mode"`

	// NoSync skips fsync before rename. Only meant for tests.
	NoSync bool `mapstructure:"no_sync"`
}

// Store is a filesystem BlobStore.
type Store struct {
	root     string
	dirMode  os.FileMode
	fileMode os.FileMode
	noSync   bool
}

// New creates a Store rooted at cfg.Path, creating the directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0700
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0600
	}

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("filesystem store: resolve %s: %w", cfg.Path, err)
	}
	if err := os.MkdirAll(root, cfg.DirMode); err != nil {
		return nil, fmt.Errorf("filesystem store: create root %s: %w", root, err)
	}

	return &Store{root: root, dirMode: cfg.DirMode, fileMode: cfg.FileMode, noSync: cfg.NoSync}, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) nsDir(ns string) (string, error) {
	if !store.ValidKey(ns) {
		return "", fmt.Errorf("namespace %q: %w", ns, store.ErrInvalidKey)
	}
	return filepath.Join(s.root, ns), nil
}

func (s *Store) path(ns, key string) (string, error) {
	dir, err := s.nsDir(ns)
	if err != nil {
		return "", err
	}
	if !store.ValidKey(key) || strings.HasPrefix(key, tempPrefix) {
		return "", fmt.Errorf("key %q: %w", key, store.ErrInvalidKey)
	}
	return filepath.Join(dir, key), nil
}

// EnsureNamespace creates the namespace directory.
func (s *Store) EnsureNamespace(ctx context.Context, ns string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.nsDir(ns)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return fmt.Errorf("create namespace directory: %w", err)
	}
	return nil
}

// List returns the regular files in the namespace directory, skipping
// in-flight temporary files.
func (s *Store) List(ctx context.Context, ns string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.nsDir(ns)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, iofs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read namespace directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		keys = append(keys, entry.Name())
	}
	return keys, nil
}

// Put atomically replaces the blob under key.
func (s *Store) Put(ctx context.Context, ns, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ns, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return fmt.Errorf("create namespace directory: %w", err)
	}
	return s.syncedWriteFile(path, data)
}

// syncedWriteFile writes data to a temporary sibling of path, syncs it and
// renames it over path. The temporary file is removed on any failure.
func (s *Store) syncedWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(s.fileMode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if !s.noSync {
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("sync temp file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get reads the blob under key.
func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(ns, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob under key.
func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ns, key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ store.BlobStore = (*Store)(nil)
