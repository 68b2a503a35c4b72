package seal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrGenerateKey reads a hex-encoded master key from path, or generates
// one and writes it there with 0600 permissions if the file does not exist.
//
// Returns:
//   - []byte: The master key
//   - bool: true if the key was generated by this call
//   - error: I/O failure or a malformed key file
func LoadOrGenerateKey(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, false, fmt.Errorf("seal: key file %s is not hex: %w", path, err)
		}
		if len(key) != KeySize {
			return nil, false, fmt.Errorf("seal: key file %s: %w", path, ErrKeySize)
		}
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("seal: read key file: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, false, fmt.Errorf("seal: create key directory: %w", err)
	}

	// O_EXCL so two processes racing on first start cannot clobber each other
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, false, fmt.Errorf("seal: create key file: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, false, fmt.Errorf("seal: write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, false, fmt.Errorf("seal: close key file: %w", err)
	}

	return key, true, nil
}
