// Package bolt11 decodes Lightning invoices and normalizes the fields the
// payment orchestrator needs: a lowercased hex payment hash and a
// whole-satoshi amount. It wraps lnd's zpay32 decoder rather than
// hand-rolling bech32 parsing.
package bolt11

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/zpay32"
)

// ErrMissingPaymentHash is returned when a decoded invoice carries no
// payment hash, which BOLT11 requires but some malformed invoices omit.
var ErrMissingPaymentHash = errors.New("bolt11: invoice has no payment hash")

// ErrNonPositiveAmount is returned for invoices with a zero or missing
// amount, or one that doesn't land on a whole satoshi — this bridge requires
// rejecting invoices without a positive whole-sat amount.
var ErrNonPositiveAmount = errors.New("bolt11: invoice amount must be a positive whole number of satoshis")

// Decoded is the normalized view of a BOLT11 invoice the orchestrator
// consumes.
type Decoded struct {
	PaymentHash string // 64 lowercase hex chars, no 0x prefix
	AmountSats  int64
}

// Decode parses invoice and extracts the payment hash and amount, rejecting
// invoices without a positive whole-satoshi amount.
func Decode(invoice string) (Decoded, error) {
	inv, err := zpay32.Decode(invoice)
	if err != nil {
		return Decoded{}, fmt.Errorf("bolt11: decode: %w", err)
	}
	if inv.PaymentHash == nil {
		return Decoded{}, ErrMissingPaymentHash
	}
	if inv.MilliSat == nil {
		return Decoded{}, ErrNonPositiveAmount
	}
	msat := int64(*inv.MilliSat)
	if msat <= 0 || msat%1000 != 0 {
		return Decoded{}, ErrNonPositiveAmount
	}
	return Decoded{
		PaymentHash: hex.EncodeToString(inv.PaymentHash[:]),
		AmountSats:  msat / 1000,
	}, nil
}
