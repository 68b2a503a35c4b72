// Package store implements the FTPPlus storage engine.
//
// The Engine owns everything a client can observe about stored files:
// namespace derivation, encryption, the ".enc" marker and the bulk-read
// ceiling. Persistence is delegated to a BlobStore, which only ever sees
// ciphertext addressed by (namespace, key).
package store

import (
	"context"
	"strings"
)

// BlobStore persists opaque blobs grouped by namespace.
//
// Implementations must make Put atomic from a reader's point of view: a
// concurrent Get observes either the previous blob or the new one in full,
// never a partial write. Writers of the same key are serialized by the Engine,
// so backends only need to be safe for concurrent use across keys.
type BlobStore interface {
	// EnsureNamespace creates the backing container of ns if it does not
	// exist. Backends with implicit namespaces return nil.
	EnsureNamespace(ctx context.Context, ns string) error

	// List returns every key stored in ns. An unknown namespace is empty.
	List(ctx context.Context, ns string) ([]string, error)

	// Put stores data under key, replacing any previous blob.
	Put(ctx context.Context, ns, key string, data []byte) error

	// Get returns the blob under key or an error wrapping ErrNotFound.
	Get(ctx context.Context, ns, key string) ([]byte, error)

	// Delete removes the blob under key or returns an error wrapping
	// ErrNotFound.
	Delete(ctx context.Context, ns, key string) error

	// Close releases backend resources.
	Close() error
}

// ValidKey reports whether s can be used as a namespace or key by any
// backend: non-empty, not "." or "..", and free of separators and NUL.
func ValidKey(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}
