package secrets

import "errors"

var (
	ErrInvalidMasterKey = errors.New("invalid master key: must be 32 bytes")
	ErrInvalidDataKey   = errors.New("invalid data key: must be 32 bytes")

	ErrEncryptionFailed  = errors.New("encryption failed")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	ErrKeyDerivationFailed = errors.New("key derivation failed")
)
