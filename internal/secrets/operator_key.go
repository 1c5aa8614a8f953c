// Package secrets resolves the operator's chain private key at process
// startup: the key is normally stored in the config file as an
// internal/crypto-encrypted blob unlocked by a passphrase supplied
// out-of-band (environment variable, systemd credential, vault agent); a
// bare, unprefixed value is passed through unchanged.
package secrets

import (
	"errors"
	"strings"

	"github.com/protocolbridge/ln-escrow-bridge/internal/crypto"
)

// ErrMissingPassphrase is returned when an encrypted key blob is configured
// but no passphrase was supplied to unlock it.
var ErrMissingPassphrase = errors.New("secrets: operator key is encrypted but no passphrase was provided")

// encryptedPrefix marks a config value as an internal/crypto-encrypted
// blob rather than a raw key, so a plain hex/WIF key remains a valid
// config value for local development.
const encryptedPrefix = "enc:"

// ResolveOperatorKey returns the operator's private key material, decrypting
// it first if raw is prefixed with "enc:" (an EncryptWithPassword blob).
// A bare, unprefixed raw value is returned unchanged — useful for local
// development without a passphrase.
func ResolveOperatorKey(raw, passphrase string) (string, error) {
	if !strings.HasPrefix(raw, encryptedPrefix) {
		return raw, nil
	}
	if passphrase == "" {
		return "", ErrMissingPassphrase
	}
	blob := strings.TrimPrefix(raw, encryptedPrefix)
	return crypto.DecryptWithPassword(blob, passphrase)
}

// EncryptOperatorKey produces the "enc:"-prefixed blob ResolveOperatorKey
// expects, for use by an operator provisioning the config file.
func EncryptOperatorKey(key, passphrase string) (string, error) {
	blob, err := crypto.EncryptWithPassword(key, passphrase)
	if err != nil {
		return "", err
	}
	return encryptedPrefix + blob, nil
}
