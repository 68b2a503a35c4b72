package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"sort"
	"strings"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/marmos91/ftpplus/pkg/seal"
)

const (
	// Marker is appended to every stored file name. Keys without it are
	// ignored when listing (temporary files, foreign objects).
	Marker = ".enc"

	// DefaultMaxBulkFiles is the namespace size at which GetAll refuses.
	DefaultMaxBulkFiles = 50
)

// Namespace identifies the isolated storage partition of one client.
type Namespace string

// NamespaceOf derives the namespace of a client from its network address.
//
// Only the host part is used so that reconnecting from a new ephemeral port
// lands in the same namespace. The result is the hex SHA-256 of the host,
// which is safe to use as a directory or bucket name.
func NamespaceOf(clientAddr string) Namespace {
	host, _, err := net.SplitHostPort(clientAddr)
	if err != nil {
		host = clientAddr
	}
	sum := sha256.Sum256([]byte(host))
	return Namespace(hex.EncodeToString(sum[:]))
}

// Config holds Engine tuning.
type Config struct {
	// MaxBulkFiles is the entry count at which GetAll refuses with TooMany.
	// Zero selects DefaultMaxBulkFiles.
	MaxBulkFiles int
}

// Engine is the storage engine: it seals plaintext, persists it through a
// BlobStore and enforces per-file write serialization.
//
// Thread safety: safe for concurrent use. Put and Delete of the same
// (namespace, name) are serialized; Get, List and GetAll are not, and observe
// the last committed blob.
type Engine struct {
	blobs        BlobStore
	sealer       *seal.Sealer
	maxBulkFiles int
	locks        *keyedMutex
}

// NewEngine creates an Engine over blobs, encrypting with sealer.
func NewEngine(blobs BlobStore, sealer *seal.Sealer, cfg Config) *Engine {
	if cfg.MaxBulkFiles <= 0 {
		cfg.MaxBulkFiles = DefaultMaxBulkFiles
	}
	return &Engine{
		blobs:        blobs,
		sealer:       sealer,
		maxBulkFiles: cfg.MaxBulkFiles,
		locks:        newKeyedMutex(),
	}
}

// NamespaceFor returns the namespace of clientAddr, creating its backing
// container on first contact.
func (e *Engine) NamespaceFor(ctx context.Context, clientAddr string) (Namespace, error) {
	ns := NamespaceOf(clientAddr)
	if err := e.blobs.EnsureNamespace(ctx, string(ns)); err != nil {
		return "", translate(err, "create namespace %s", ns)
	}
	return ns, nil
}

// List returns the names stored in ns, marker stripped, sorted.
func (e *Engine) List(ctx context.Context, ns Namespace) ([]string, error) {
	keys, err := e.blobs.List(ctx, string(ns))
	if err != nil {
		return nil, translate(err, "list %s", ns)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if name, ok := strings.CutSuffix(key, Marker); ok && name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Put seals plaintext and stores it under name, replacing prior content.
func (e *Engine) Put(ctx context.Context, ns Namespace, name string, plaintext []byte) error {
	if !ValidKey(name) {
		return ftperr.New(ftperr.InvalidName, "invalid file name %q", name)
	}

	ciphertext, err := e.sealer.Seal(string(ns), name, plaintext)
	if err != nil {
		return ftperr.Wrap(ftperr.InternalError, err, "seal %s", name)
	}

	unlock := e.locks.Lock(lockKey(ns, name))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return ftperr.Wrap(ftperr.InternalError, err, "put %s", name)
	}

	if err := e.blobs.Put(ctx, string(ns), name+Marker, ciphertext); err != nil {
		return translate(err, "put %s", name)
	}

	logger.Debug("Stored %s in namespace %.12s (%d bytes plaintext)", name, ns, len(plaintext))
	return nil
}

// Get returns the plaintext stored under name.
func (e *Engine) Get(ctx context.Context, ns Namespace, name string) ([]byte, error) {
	if !ValidKey(name) {
		return nil, ftperr.New(ftperr.InvalidName, "invalid file name %q", name)
	}

	ciphertext, err := e.blobs.Get(ctx, string(ns), name+Marker)
	if err != nil {
		return nil, translate(err, "get %s", name)
	}

	plaintext, err := e.sealer.Open(string(ns), name, ciphertext)
	if err != nil {
		return nil, ftperr.Wrap(ftperr.StorageIO, err, "decrypt %s", name)
	}
	return plaintext, nil
}

// Delete removes the file stored under name.
func (e *Engine) Delete(ctx context.Context, ns Namespace, name string) error {
	if !ValidKey(name) {
		return ftperr.New(ftperr.InvalidName, "invalid file name %q", name)
	}

	unlock := e.locks.Lock(lockKey(ns, name))
	defer unlock()

	if err := e.blobs.Delete(ctx, string(ns), name+Marker); err != nil {
		return translate(err, "delete %s", name)
	}

	logger.Debug("Deleted %s from namespace %.12s", name, ns)
	return nil
}

// GetAll returns every file in ns keyed by name.
//
// It refuses with TooMany, without reading any blob, once the namespace holds
// MaxBulkFiles entries or more. Files deleted between listing and reading
// are skipped.
func (e *Engine) GetAll(ctx context.Context, ns Namespace) (map[string][]byte, error) {
	names, err := e.List(ctx, ns)
	if err != nil {
		return nil, err
	}

	if len(names) >= e.maxBulkFiles {
		return nil, ftperr.New(ftperr.TooMany, "namespace holds %d files, bulk download allows fewer than %d", len(names), e.maxBulkFiles)
	}

	files := make(map[string][]byte, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, ftperr.Wrap(ftperr.InternalError, err, "get all")
		}

		data, err := e.Get(ctx, ns, name)
		if ftperr.Is(err, ftperr.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files[name] = data
	}
	return files, nil
}

// MaxBulkFiles returns the GetAll ceiling.
func (e *Engine) MaxBulkFiles() int {
	return e.maxBulkFiles
}

// Close closes the underlying BlobStore.
func (e *Engine) Close() error {
	return e.blobs.Close()
}

func lockKey(ns Namespace, name string) string {
	return string(ns) + "/" + name
}

// translate maps backend errors onto the ftperr taxonomy.
func translate(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return ftperr.Wrap(ftperr.NotFound, err, format, args...)
	case errors.Is(err, ErrInvalidKey):
		return ftperr.Wrap(ftperr.InvalidName, err, format, args...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ftperr.Wrap(ftperr.InternalError, err, format, args...)
	default:
		return ftperr.Wrap(ftperr.StorageIO, err, format, args...)
	}
}
