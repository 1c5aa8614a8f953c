package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	KeySize   = 32 // AES-256 requires 32 bytes
	NonceSize = 12 // GCM standard nonce size
	SaltSize  = 16 // Salt for key derivation
)

// Argon2id tuning for deriving the key that wraps the operator's private
// key at rest. These match the argon2 package's own
// recommended minimums for interactive use.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
)

// Encrypt encrypts plaintext using AES-256-GCM
// Returns base64-encoded: nonce + ciphertext
func Encrypt(plaintext string, key []byte) (string, error) {
	// 1. Validate key size (must be 32 bytes)
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes long")
	}

	// 2. Create AES cipher
	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	// 3. Create GCM mode
	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}

	// 4. Generate random nonce
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// 5. Encrypt data
	ciphertext := aesGcm.Seal(nil, nonce, []byte(plaintext), nil)

	// 6. Prepend nonce to ciphertext
	result := append(nonce, ciphertext...)

	// 7. Encode as base64
	return base64.StdEncoding.EncodeToString(result), nil
}

// Decrypt decrypts AES-256-GCM encrypted data
func Decrypt(ciphertext string, key []byte) (string, error) {
	// 1. Validate key size
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes long")
	}

	// 2. Decode from base64
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	// 3. Check minimum length (nonce + at least some data)
	if len(decoded) < NonceSize {
		return "", errors.New("ciphertext too short")
	}

	// 4. Extract nonce (first 12 bytes)
	nonce := decoded[:NonceSize]

	// 5. Extract ciphertext (remaining bytes)
	cipherData := decoded[NonceSize:]

	// 6. Create AES cipher
	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	// 7. Create GCM mode
	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}

	// 8. Decrypt data
	plaintext, err := aesGcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return "", errors.New("decryption failed: invalid key or corrupted data")
	}

	return string(plaintext), nil
}

// GenerateKey generates a random 32-byte encryption key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	_, err := io.ReadFull(rand.Reader, key)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKey derives an encryption key from a password using Argon2id.
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, KeySize)
}

// EncryptWithPassword encrypts data using a password, generating a fresh
// salt and prepending it (salt + nonce + ciphertext, all base64) so
// DecryptWithPassword needs nothing but the password to reverse it.
func EncryptWithPassword(plaintext, password string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := DeriveKey(password, salt)

	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := aesGcm.Seal(nil, nonce, []byte(plaintext), nil)

	result := make([]byte, 0, SaltSize+NonceSize+len(ciphertext))
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return base64.StdEncoding.EncodeToString(result), nil
}

// DecryptWithPassword decrypts data encrypted with EncryptWithPassword.
func DecryptWithPassword(ciphertext, password string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(decoded) < SaltSize+NonceSize {
		return "", errors.New("ciphertext too short")
	}
	salt := decoded[:SaltSize]
	nonce := decoded[SaltSize : SaltSize+NonceSize]
	cipherData := decoded[SaltSize+NonceSize:]

	key := DeriveKey(password, salt)
	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}
	plaintext, err := aesGcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return "", errors.New("decryption failed: invalid password or corrupted data")
	}
	return string(plaintext), nil
}
