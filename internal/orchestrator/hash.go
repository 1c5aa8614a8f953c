package orchestrator

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// canonicalizeHash reduces a payment hash to 64 lowercase hex chars without
// a 0x prefix.
func canonicalizeHash(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return "", fmt.Errorf("orchestrator: payment hash must be 64 hex chars, got %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("orchestrator: payment hash is not valid hex: %w", err)
	}
	return s, nil
}

// hexDecode decodes a hex-encoded preimage, tolerating an optional 0x
// prefix.
func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}
