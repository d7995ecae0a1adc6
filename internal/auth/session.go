package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
)

// KeyLength is the size of each of the hash and block keys.
const KeyLength = 32

var ErrInvalidKey = errors.New("invalid sealing key")

// Sealer signs and encrypts named values so they can be stored at rest and
// detected if tampered with.
type Sealer struct {
	sc *securecookie.SecureCookie
}

// NewSealer builds a sealer from a hex encoded key holding the hash key
// followed by the block key (2*KeyLength bytes).
func NewSealer(keyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) < 2*KeyLength {
		return nil, ErrInvalidKey
	}

	sc := securecookie.New(key[:KeyLength], key[KeyLength:2*KeyLength])
	sc.MaxAge(0) // stored credentials expire server-side, not here
	return &Sealer{sc: sc}, nil
}

// GenerateSealKey returns a fresh random key suitable for NewSealer.
func GenerateSealKey() (string, error) {
	key := make([]byte, 2*KeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate seal key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Seal encodes value under name.
func (s *Sealer) Seal(name, value string) (string, error) {
	return s.sc.Encode(name, value)
}

// Open decodes a value sealed under name.
func (s *Sealer) Open(name, sealed string) (string, error) {
	var value string
	if err := s.sc.Decode(name, sealed, &value); err != nil {
		return "", err
	}
	return value, nil
}
