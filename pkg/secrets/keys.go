package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of master and data keys
	KeySize = 32

	hkdfInfo = "notifier-secrets-v1"
)

// ValidateKeys checks both keys have KeySize bytes.
func ValidateKeys(masterKey, dataKey []byte) error {
	validMaster := len(masterKey) == KeySize
	validData := len(dataKey) == KeySize

	if !validMaster {
		return ErrInvalidMasterKey
	}
	if !validData {
		return ErrInvalidDataKey
	}
	return nil
}

// deriveKey returns the compound key. Callers zero it with clear when done.
func deriveKey(masterKey, dataKey []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, dataKey, []byte(hkdfInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

// GenerateKey creates a random key of KeySize bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a key given as hex or standard base64, as it usually
// arrives from the environment.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)

	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	return nil, ErrInvalidMasterKey
}
