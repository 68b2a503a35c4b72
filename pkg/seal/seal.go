// Package seal provides the at-rest encryption used by the storage engine.
//
// Every namespace gets its own AES-256-GCM key derived from a single master
// key with HKDF-SHA256. Ciphertexts are laid out as nonce(12B) || sealed data
// || tag(16B), and the stored file name is bound as additional data so a blob
// cannot be moved under another name undetected.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the master key length in bytes.
	KeySize = 32

	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12

	// Overhead is the ciphertext expansion: nonce plus GCM tag.
	Overhead = NonceSize + 16

	hkdfInfoPrefix = "ftpplus-namespace:"
)

var (
	// ErrKeySize is returned when a master key is not KeySize bytes long.
	ErrKeySize = errors.New("seal: master key must be 32 bytes")

	// ErrCiphertextTooShort is returned when a blob cannot hold nonce and tag.
	ErrCiphertextTooShort = errors.New("seal: ciphertext too short")

	// ErrDecryptionFailed is returned when authentication fails, e.g. the blob
	// was sealed under another key (a previous process) or was tampered with.
	ErrDecryptionFailed = errors.New("seal: decryption failed")
)

// Sealer encrypts and decrypts blobs for namespaces.
//
// Thread safety: safe for concurrent use. Derived per-namespace ciphers are
// cached after first use.
type Sealer struct {
	master []byte
	aeads  sync.Map // namespace -> cipher.AEAD
}

// New creates a Sealer from a KeySize-byte master key. The key is copied.
func New(master []byte) (*Sealer, error) {
	if len(master) != KeySize {
		return nil, ErrKeySize
	}
	key := make([]byte, KeySize)
	copy(key, master)
	return &Sealer{master: key}, nil
}

// NewEphemeral creates a Sealer with a freshly generated master key that
// lives only as long as the process. Blobs it seals cannot be opened after a
// restart.
func NewEphemeral() (*Sealer, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return New(key)
}

// GenerateKey returns KeySize random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("seal: generate key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext for name inside namespace.
func (s *Sealer) Seal(namespace, name string, plaintext []byte) ([]byte, error) {
	aead, err := s.aead(namespace)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, []byte(name)), nil
}

// Open decrypts a blob produced by Seal with the same namespace and name.
func (s *Sealer) Open(namespace, name string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, ErrCiphertextTooShort
	}

	aead, err := s.aead(namespace)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], []byte(name))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func (s *Sealer) aead(namespace string) (cipher.AEAD, error) {
	if cached, ok := s.aeads.Load(namespace); ok {
		return cached.(cipher.AEAD), nil
	}

	key := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, s.master, nil, []byte(hkdfInfoPrefix+namespace))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("seal: gcm: %w", err)
	}

	actual, _ := s.aeads.LoadOrStore(namespace, aead)
	return actual.(cipher.AEAD), nil
}
