package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// EncryptString seals plaintext and returns it base64 encoded.
func EncryptString(masterKey, dataKey []byte, plaintext, associatedData string) (string, error) {
	ct, err := Encrypt(masterKey, dataKey, []byte(plaintext), []byte(associatedData))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString.
func DecryptString(masterKey, dataKey []byte, ciphertext, associatedData string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	pt, err := Decrypt(masterKey, dataKey, raw, []byte(associatedData))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Encrypt seals data. The result is nonce || ciphertext || tag.
func Encrypt(masterKey, dataKey, data, associatedData []byte) ([]byte, error) {
	aead, err := newAEAD(masterKey, dataKey)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	return aead.Seal(nonce, nonce, data, associatedData), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same keys and associated data.
func Decrypt(masterKey, dataKey, ciphertext, associatedData []byte) ([]byte, error) {
	aead, err := newAEAD(masterKey, dataKey)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	ns := aead.NonceSize()
	if len(ciphertext) < ns+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:ns], ciphertext[ns:]
	pt, err := aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	return pt, nil
}

func newAEAD(masterKey, dataKey []byte) (cipher.AEAD, error) {
	if err := ValidateKeys(masterKey, dataKey); err != nil {
		return nil, err
	}

	key, err := deriveKey(masterKey, dataKey)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
