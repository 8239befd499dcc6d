package crypto

import (
	"errors"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts credential payloads with XChaCha20-Poly1305 under per-user keys.
type Sealer struct {
	master []byte
}

// NewSealer constructs a Sealer over a 32-byte master key.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) != KeyLen {
		return nil, errors.New("master key must be 32 bytes")
	}
	return &Sealer{master: append([]byte(nil), master...)}, nil
}

// Seal encrypts plaintext for userID with AAD = userID||aad and a random nonce (returned as iv).
func (s *Sealer) Seal(userID uuid.UUID, aad string, plaintext []byte) (ciphertext, iv []byte, err error) {
	key, err := deriveUserKey(s.master, userID.Bytes())
	if err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	iv, err = RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, iv, plaintext, additionalData(userID, aad)), iv, nil
}

// Open decrypts a payload sealed by Seal with the same userID and aad.
func (s *Sealer) Open(userID uuid.UUID, aad string, ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != chacha20poly1305.NonceSizeX {
		return nil, errors.New("bad iv length")
	}
	key, err := deriveUserKey(s.master, userID.Bytes())
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, iv, ciphertext, additionalData(userID, aad))
}

func additionalData(userID uuid.UUID, aad string) []byte {
	out := make([]byte, 0, uuid.Size+len(aad))
	out = append(out, userID.Bytes()...)
	return append(out, aad...)
}
