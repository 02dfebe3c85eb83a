package seal

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// NewChaCha20 creates a ChaCha20-Poly1305 cipher. The key must be
// KeySize bytes.
func NewChaCha20(key []byte) (Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("seal: ChaCha20-Poly1305 key must be 32 bytes")
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	return &aeadCipher{alg: AlgorithmChaCha20, aead: aead}, nil
}
