package store

import "errors"

// ============================================================================
// Standard Blob Store Errors
// ============================================================================

// Backends wrap these with context and the Engine maps them onto the ftperr
// taxonomy:
//
//	if !exists {
//	    return fmt.Errorf("blob %s/%s: %w", ns, key, store.ErrNotFound)
//	}

var (
	// ErrNotFound indicates no blob exists under the requested key.
	//
	// Returned by Get and Delete. Mapped to ftperr.NotFound.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey indicates a namespace or key that the backend refuses to
	// address, e.g. one holding a path separator on the filesystem backend.
	ErrInvalidKey = errors.New("invalid blob key")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("blob store closed")
)
