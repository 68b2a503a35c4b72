// Package memory implements an in-memory store.BlobStore. Contents are lost
// when the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/ftpplus/pkg/store"
)

// Store keeps blobs in nested maps guarded by a RWMutex. Values are copied
// on the way in and out so callers cannot alias stored data.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
	closed     bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{namespaces: make(map[string]map[string][]byte)}
}

func (s *Store) EnsureNamespace(ctx context.Context, ns string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !store.ValidKey(ns) {
		return fmt.Errorf("namespace %q: %w", ns, store.ErrInvalidKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.namespaces[ns]; !ok {
		s.namespaces[ns] = make(map[string][]byte)
	}
	return nil
}

func (s *Store) List(ctx context.Context, ns string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	blobs := s.namespaces[ns]
	keys := make([]string, 0, len(blobs))
	for key := range blobs {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) Put(ctx context.Context, ns, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !store.ValidKey(ns) || !store.ValidKey(key) {
		return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrInvalidKey)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	blobs, ok := s.namespaces[ns]
	if !ok {
		blobs = make(map[string][]byte)
		s.namespaces[ns] = blobs
	}
	blobs[key] = buf
	return nil
}

func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	data, ok := s.namespaces[ns][key]
	if !ok {
		return nil, fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	blobs := s.namespaces[ns]
	if _, ok := blobs[key]; !ok {
		return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
	}
	delete(blobs, key)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.namespaces = nil
	return nil
}

var _ store.BlobStore = (*Store)(nil)
