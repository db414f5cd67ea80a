package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	keySalt = []byte("kalm/packet-key/v1")
	keyInfo = []byte("chacha20poly1305")
)

// ChaCha20Poly1305 seals packets as nonce || ciphertext || tag using a key
// derived from a shared secret with HKDF-SHA256.
type ChaCha20Poly1305 struct {
	aead stdcipher.AEAD
}

// NewChaCha20Poly1305 derives a 256-bit key from secret.
func NewChaCha20Poly1305(secret string) (*ChaCha20Poly1305, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), keySalt, keyInfo), key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aead: %w", err)
	}
	return &ChaCha20Poly1305{aead: aead}, nil
}

func (c *ChaCha20Poly1305) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

func (c *ChaCha20Poly1305) Seal(plaintext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, ns, ns+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("cipher: nonce: %w", err)
	}
	return c.aead.Seal(out, out[:ns], plaintext, nil), nil
}

func (c *ChaCha20Poly1305) Open(sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: packet of %d bytes is shorter than overhead", ErrIntegrity, len(sealed))
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plain, nil
}
