// Package crypto implements server-side sealing of source credentials.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters for passphrase-derived master keys.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1

	// KeyLen is the length of master and per-user keys.
	KeyLen = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// MasterKeyFromHex decodes a hex-encoded 32-byte master key.
func MasterKeyFromHex(s string) ([]byte, error) {
	k, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	if len(k) != KeyLen {
		return nil, fmt.Errorf("master key: want %d bytes, got %d", KeyLen, len(k))
	}
	return k, nil
}

// MasterKeyFromPassphrase derives a master key from an operator passphrase using Argon2id.
func MasterKeyFromPassphrase(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}
	if len(salt) < 16 {
		return nil, errors.New("salt must be at least 16 bytes")
	}
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen), nil
}

// deriveUserKey derives a per-user key via HKDF-SHA256 using userID as info.
func deriveUserKey(master, userID []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, userID)
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}
