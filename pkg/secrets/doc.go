// Package secrets seals small payloads with AES-256-GCM under a compound key.
//
// The compound key is derived with HKDF-SHA-256 from a long-lived master key
// (application configuration) and a data key (for example one entry of a
// rotating keyring). Rotating the data key changes the derived key without
// touching the master key, and a leaked data key alone decrypts nothing.
//
// Ciphertext layout is nonce || sealed data || tag. Optional associated data
// is authenticated but not stored; the same value must be supplied to decrypt.
//
// # Usage
//
//	master, _ := secrets.ParseKey(os.Getenv("CONTACT_MASTER_KEY"))
//	dataKey, _ := secrets.GenerateKey()
//
//	ct, err := secrets.EncryptString(master, dataKey, `{"email":"a@b.c"}`, requestID)
//	pt, err := secrets.DecryptString(master, dataKey, ct, requestID)
//
// All errors wrap one of the package sentinels and can be matched with errors.Is.
package secrets
