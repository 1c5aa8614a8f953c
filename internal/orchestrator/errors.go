package orchestrator

import "errors"

// Named errors from the orchestration algorithm. Each error's message
// doubles as its stable machine-readable code; statusClass maps it to an
// HTTP status.
var (
	ErrInvalidPaymentHash             = errors.New("invalid_payment_hash")
	ErrLockedNotFound                 = errors.New("locked_not_found")
	ErrAlreadyClaimed                 = errors.New("already_claimed")
	ErrPaymentInflight                = errors.New("payment_inflight")
	ErrInvoiceMissingAmount           = errors.New("invoice_missing_amount")
	ErrFractionalSats                 = errors.New("fractional_sats")
	ErrHashMismatch                   = errors.New("hash_mismatch")
	ErrInvoiceNotFound                = errors.New("invoice_not_found")
	ErrAmountMismatch                 = errors.New("amount_mismatch")
	ErrLightningPaymentHashMismatch   = errors.New("lightning_payment_hash_mismatch")
	ErrLightningPaymentAmountMismatch = errors.New("lightning_payment_amount_mismatch")
	ErrMissingPreimage                = errors.New("missing_preimage")
)

// statusClass is a stable HTTP-equivalent status taxonomy for
// each named error, used by the paymentapi package.
func statusClass(err error) int {
	switch {
	case errors.Is(err, ErrPaymentInflight):
		return 409
	case errors.Is(err, ErrInvalidPaymentHash),
		errors.Is(err, ErrLockedNotFound),
		errors.Is(err, ErrInvoiceMissingAmount),
		errors.Is(err, ErrFractionalSats),
		errors.Is(err, ErrHashMismatch),
		errors.Is(err, ErrInvoiceNotFound),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrLightningPaymentHashMismatch),
		errors.Is(err, ErrLightningPaymentAmountMismatch),
		errors.Is(err, ErrMissingPreimage):
		return 400
	default:
		return 500
	}
}

// StatusClass exposes statusClass for paymentapi's error-to-status mapping.
func StatusClass(err error) int { return statusClass(err) }
