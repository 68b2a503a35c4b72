// Package bolt implements a store.BlobStore on bbolt, with one bucket per
// namespace.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/ftpplus/pkg/store"
	bolt "go.etcd.io/bbolt"
)

// Config holds bbolt backend options.
type Config struct {
	// DBPath is the database file.
	DBPath string `mapstructure:"db_path"`

	// Timeout bounds how long Open waits for the file lock held by another
	// process. Zero selects one second.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Store is a bbolt BlobStore.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the database file described by cfg.
func New(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("bolt store: db_path is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("bolt store: create directory: %w", err)
	}

	db, err := bolt.Open(cfg.DBPath, 0600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt store: open %s: %w", cfg.DBPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) EnsureNamespace(ctx context.Context, ns string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !store.ValidKey(ns) {
		return fmt.Errorf("namespace %q: %w", ns, store.ErrInvalidKey)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ns))
		return err
	})
}

func (s *Store) List(ctx context.Context, ns string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list namespace: %w", err)
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

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
		}
		// v is only valid for the life of the transaction
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil || b.Get([]byte(key)) == nil {
			return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.BlobStore = (*Store)(nil)
