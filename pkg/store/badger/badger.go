// Package badger implements a store.BlobStore on BadgerDB.
//
// Keys are laid out as "b/<namespace>/<key>" and namespaces as "n/<namespace>",
// so a namespace listing is a single prefix scan. Every mutation runs in its
// own transaction, which gives Put the all-or-nothing visibility the engine
// relies on.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/ftpplus/pkg/store"
)

const (
	blobPrefix      = "b/"
	namespacePrefix = "n/"
)

// Config holds BadgerDB backend options.
type Config struct {
	// DBPath is the database directory.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// Compression enables ZSTD block compression. Ciphertext does not
	// compress, so this is off by default.
	Compression bool `mapstructure:"compression"`
}

// Store is a BadgerDB BlobStore.
type Store struct {
	db *badgerdb.DB
}

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	if cfg.Compression {
		opts = opts.WithCompression(options.ZSTD)
	} else {
		opts = opts.WithCompression(options.None)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}
	return &Store{db: db}, nil
}

func keyBlob(ns, key string) []byte {
	return []byte(blobPrefix + ns + "/" + key)
}

func keyBlobPrefix(ns string) []byte {
	return []byte(blobPrefix + ns + "/")
}

func keyNamespace(ns string) []byte {
	return []byte(namespacePrefix + ns)
}

func checkKeys(ns string, keys ...string) error {
	if !store.ValidKey(ns) {
		return fmt.Errorf("namespace %q: %w", ns, store.ErrInvalidKey)
	}
	for _, key := range keys {
		if !store.ValidKey(key) {
			return fmt.Errorf("key %q: %w", key, store.ErrInvalidKey)
		}
	}
	return nil
}

func (s *Store) EnsureNamespace(ctx context.Context, ns string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeys(ns); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(keyNamespace(ns))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Set(keyNamespace(ns), nil)
	})
}

func (s *Store) List(ctx context.Context, ns string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKeys(ns); err != nil {
		return nil, err
	}

	prefix := keyBlobPrefix(ns)
	keys := []string{}

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
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
	if err := checkKeys(ns, key); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyBlob(ns, key), data)
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
	if err := checkKeys(ns, key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyBlob(ns, key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeys(ns, key); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(keyBlob(ns, key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return txn.Delete(keyBlob(ns, key))
	})
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

var _ store.BlobStore = (*Store)(nil)
