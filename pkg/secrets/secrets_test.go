package secrets_test

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/pkg/secrets"
)

func keys(t *testing.T) (master, data []byte) {
	t.Helper()
	master, err := secrets.GenerateKey()
	require.NoError(t, err)
	data, err = secrets.GenerateKey()
	require.NoError(t, err)
	return master, data
}

func TestEncryptDecryptString(t *testing.T) {
	t.Parallel()

	master, data := keys(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"contact payload", `{"email":"jane@example.com","phone":"+4915112345678"}`},
		{"unicode", "Grüße 世界"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ct, err := secrets.EncryptString(master, data, tt.plaintext, "req-1")
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ct)

			pt, err := secrets.DecryptString(master, data, ct, "req-1")
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestEncrypt_NonceIsRandom(t *testing.T) {
	t.Parallel()

	master, data := keys(t)
	a, err := secrets.Encrypt(master, data, []byte("same"), nil)
	require.NoError(t, err)
	b, err := secrets.Encrypt(master, data, []byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_Failures(t *testing.T) {
	t.Parallel()

	master, data := keys(t)
	other, err := secrets.GenerateKey()
	require.NoError(t, err)

	ct, err := secrets.Encrypt(master, data, []byte("secret"), []byte("req-1"))
	require.NoError(t, err)

	t.Run("wrong data key", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.Decrypt(master, other, ct, []byte("req-1"))
		assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
	})

	t.Run("wrong master key", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.Decrypt(other, data, ct, []byte("req-1"))
		assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
	})

	t.Run("associated data mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.Decrypt(master, data, ct, []byte("req-2"))
		assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
	})

	t.Run("tampered", func(t *testing.T) {
		t.Parallel()
		tampered := append([]byte(nil), ct...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := secrets.Decrypt(master, data, tampered, []byte("req-1"))
		assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.Decrypt(master, data, ct[:8], []byte("req-1"))
		assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)
	})

	t.Run("not base64", func(t *testing.T) {
		t.Parallel()
		_, err := secrets.DecryptString(master, data, "%%%", "req-1")
		assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)
	})
}

func TestValidateKeys(t *testing.T) {
	t.Parallel()

	good := make([]byte, secrets.KeySize)
	short := make([]byte, 16)

	assert.NoError(t, secrets.ValidateKeys(good, good))
	assert.ErrorIs(t, secrets.ValidateKeys(short, good), secrets.ErrInvalidMasterKey)
	assert.ErrorIs(t, secrets.ValidateKeys(good, short), secrets.ErrInvalidDataKey)

	_, err := secrets.Encrypt(short, good, []byte("x"), nil)
	assert.ErrorIs(t, err, secrets.ErrEncryptionFailed)
	assert.ErrorIs(t, err, secrets.ErrInvalidMasterKey)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	fromHex, err := secrets.ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, fromHex)

	fromB64, err := secrets.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, fromB64)

	_, err = secrets.ParseKey("too-short")
	assert.ErrorIs(t, err, secrets.ErrInvalidMasterKey)
}
