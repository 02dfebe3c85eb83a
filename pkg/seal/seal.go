// Package seal provides authenticated encryption for entity records at
// rest, with automatic algorithm selection based on hardware:
// AES-GCM where AES instructions are available, ChaCha20-Poly1305
// otherwise.
package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"runtime"

	"golang.org/x/crypto/hkdf"
)

// Algorithm identifies the AEAD construction.
type Algorithm string

const (
	AlgorithmAESGCM   Algorithm = "aes-gcm"
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

// KeySize is the derived key length used by both algorithms.
const KeySize = 32

// ErrSealedTooShort is returned when a sealed blob cannot even hold a
// nonce.
var ErrSealedTooShort = errors.New("seal: sealed data too short")

// Cipher seals and opens byte blobs. The additional data binds a sealed
// blob to its context (for entity records, the entity key string) so
// blobs cannot be swapped between records.
type Cipher interface {
	// Algorithm returns the AEAD construction in use.
	Algorithm() Algorithm

	// Seal encrypts plaintext, binding it to additionalData.
	Seal(plaintext, additionalData []byte) ([]byte, error)

	// Open decrypts a sealed blob produced by Seal with the same
	// additionalData.
	Open(sealed, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce length prepended to sealed blobs.
	NonceSize() int

	// Overhead returns the authentication tag length.
	Overhead() int
}

// New creates a cipher with the optimal algorithm for this machine.
// The key must be KeySize bytes; use DeriveKey for raw secrets.
func New(key []byte) (Cipher, error) {
	if hasAESAcceleration() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithAlgorithm creates a cipher of a specific algorithm, used when a
// sealed store must be reopened on different hardware.
func NewWithAlgorithm(key []byte, alg Algorithm) (Cipher, error) {
	switch alg {
	case AlgorithmAESGCM:
		return NewAESGCM(key)
	case AlgorithmChaCha20:
		return NewChaCha20(key)
	default:
		return nil, errors.New("seal: unknown algorithm " + string(alg))
	}
}

// DeriveKey expands an arbitrary-length secret into a KeySize key using
// HKDF-SHA256. The salt separates keys derived for different stores from
// the same secret; it may be nil.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte("entmesh-record-seal")), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Go's crypto/aes uses AES instructions on amd64 and the ARM crypto
// extensions on arm64; everywhere else the software ChaCha20 is faster.
func hasAESAcceleration() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

type aeadCipher struct {
	alg  Algorithm
	aead cipher.AEAD
}

func (c *aeadCipher) Algorithm() Algorithm { return c.alg }
func (c *aeadCipher) NonceSize() int       { return c.aead.NonceSize() }
func (c *aeadCipher) Overhead() int        { return c.aead.Overhead() }

func (c *aeadCipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	// Nonce travels as the sealed blob's prefix.
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aeadCipher) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, ErrSealedTooShort
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, ciphertext, additionalData)
}
