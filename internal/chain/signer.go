package chain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Signer signs outgoing operator calldata with operator_private_key before
// it is submitted through the chain RPC entrypoints. The RPC
// endpoint is a thin JSON-RPC proxy with no server-side key custody of its
// own — every state-changing call the operator submits needs a signature
// over its calldata, which the proxy verifies before forwarding on-chain.
//
// None of the example repos' dependency set models STARK-curve signing
// (btcsuite/btcd is secp256k1-only and exists in this codebase solely for
// Bitcoin transaction construction, which this bridge never does); this is
// the one piece of the chain package built on crypto/ecdsa rather than a
// pack library, recorded in DESIGN.md.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner derives a P-256 key from a hex-encoded private key scalar.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = trimHex(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("chain: empty operator private key")
	}
	d, ok := new(big.Int).SetString(hexKey, 16)
	if !ok {
		return nil, fmt.Errorf("chain: invalid operator private key")
	}
	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return &Signer{key: priv}, nil
}

// Sign returns a hex-encoded r||s signature over the SHA-256 digest of
// payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	r, sVal, err := ecdsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return "", fmt.Errorf("chain: sign: %w", err)
	}
	sig := append(r.Bytes(), sVal.Bytes()...)
	return hex.EncodeToString(sig), nil
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}
