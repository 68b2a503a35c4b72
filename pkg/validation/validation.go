// Package validation checks file names and payloads before any storage effect.
package validation

import (
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/ftpplus/pkg/ftperr"
)

const (
	// DefaultMaxFileSize is the payload ceiling applied when none is configured.
	DefaultMaxFileSize int64 = 100 << 20
)

// DefaultAllowedExtensions is the extension allow-list applied when none is
// configured. Entries are lower-case and carry no leading dot.
var DefaultAllowedExtensions = []string{"txt", "pdf", "jpg", "png"}

var allowedChars = regexp.MustCompile(`^[A-Za-z0-9._\- ]+$`)

// Validator enforces the file-name, extension and size rules.
//
// Rules are applied in order and the first failure wins:
//  1. the base name is non-empty and holds no ".." and no separator (InvalidName)
//  2. the base name only uses letters, digits, '.', '_', '-' and space (InvalidName)
//  3. the extension is allow-listed, case-insensitively (DisallowedType)
//  4. the payload, when supplied, fits the ceiling (TooLarge)
//
// A Validator is immutable and safe for concurrent use.
type Validator struct {
	maxFileSize int64
	extensions  map[string]struct{}
}

// New creates a Validator. A non-positive maxFileSize or an empty extension
// list selects the defaults.
func New(maxFileSize int64, allowedExtensions []string) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultAllowedExtensions
	}

	exts := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		exts[normalizeExtension(ext)] = struct{}{}
	}

	return &Validator{maxFileSize: maxFileSize, extensions: exts}
}

// MaxFileSize returns the payload ceiling in bytes.
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// Validate checks fileName and, when hasPayload is true, the payload size.
//
// A name carrying any separator or ".." is refused outright. The remaining
// rules look at the base name only, and callers that persist the file key it
// by BaseName as well.
func (v *Validator) Validate(fileName string, payload []byte, hasPayload bool) error {
	if strings.Contains(fileName, "..") || strings.ContainsAny(fileName, `/\`) {
		return ftperr.New(ftperr.InvalidName, "file name %q contains a path", fileName)
	}

	name := BaseName(fileName)
	if name == "" || name == "." {
		return ftperr.New(ftperr.InvalidName, "empty file name")
	}

	if !allowedChars.MatchString(name) {
		return ftperr.New(ftperr.InvalidName, "file name %q has characters outside the allowed set", fileName)
	}

	ext := Extension(name)
	if _, ok := v.extensions[ext]; !ok || ext == "" {
		return ftperr.New(ftperr.DisallowedType, "extension %q is not allowed", ext)
	}

	if hasPayload && int64(len(payload)) > v.maxFileSize {
		return ftperr.New(ftperr.TooLarge, "payload of %s exceeds the %s limit",
			humanize.IBytes(uint64(len(payload))), humanize.IBytes(uint64(v.maxFileSize)))
	}

	return nil
}

// ValidateSize checks only the size rule. The client uses it to reject a
// local file before reading it into memory.
func (v *Validator) ValidateSize(size int64) error {
	if size > v.maxFileSize {
		return ftperr.New(ftperr.TooLarge, "file of %s exceeds the %s limit",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(v.maxFileSize)))
	}
	return nil
}

// BaseName returns the last path component of name, splitting on both '/'
// and '\' regardless of host platform.
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Extension returns the lower-case suffix after the final '.', or "" if the
// name has none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
