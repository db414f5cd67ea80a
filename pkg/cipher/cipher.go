// Package cipher provides the optional confidentiality and integrity layer
// applied to each packet before framing.
//
// Only packet bytes are sealed; channel names stay readable at the frame layer.
// [Open] authenticates before returning plaintext, so a tampered or foreign
// packet is reported as [ErrIntegrity] and never reaches a subscriber.
package cipher

import "errors"

var (
	// ErrIntegrity is returned when a packet fails authentication.
	ErrIntegrity = errors.New("cipher: integrity check failed")

	ErrEmptyKey = errors.New("cipher: empty secret key")
)

// Cipher seals and opens packet bytes with a key fixed at construction.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
	// Overhead is the number of bytes Seal adds.
	Overhead() int
}

// None is the pass-through cipher used when no secret key is configured.
type None struct{}

func (None) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }
func (None) Open(sealed []byte) ([]byte, error)    { return sealed, nil }
func (None) Overhead() int                         { return 0 }

// FromSecret returns None for an empty secret and a ChaCha20-Poly1305 cipher
// keyed from the secret otherwise.
func FromSecret(secret string) (Cipher, error) {
	if secret == "" {
		return None{}, nil
	}
	return NewChaCha20Poly1305(secret)
}
