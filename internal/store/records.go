package store

import "github.com/google/uuid"

// PaymentRecord is the off-chain audit record for a single payment_hash.
// It is the orchestrator's exclusively-owned view of one
// lock-pay-claim lifecycle.
type PaymentRecord struct {
	PaymentHash         string `json:"payment_hash"`           // canonical 0x-prefixed lowercase
	PaymentHashNoPrefix string `json:"payment_hash_no_prefix"` // 64 lowercase hex chars

	Status string `json:"status"`

	User       string `json:"user"`
	AmountSats int64  `json:"amount_sats"`
	ExpiresAt  int64  `json:"expires_at"`
	LockedAt   int64  `json:"locked_at"`

	Bolt11          string `json:"bolt11,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`

	Lightning LightningSubState `json:"lightning"`
	Starknet  ChainSubState     `json:"starknet"`

	History []HistoryEvent `json:"history"`

	// errorLogged guards against double-recording the same error onto
	// the record, per this bridge's error-propagation policy.
	errorLogged bool
}

// Lifecycle statuses for PaymentRecord.Status.
const (
	PaymentStatusCreated       = "created"
	PaymentStatusReceived      = "received"
	PaymentStatusProcessing    = "processing"
	PaymentStatusAwaitingClaim = "awaiting_claim"
	PaymentStatusClaimQueued   = "claim_queued"
	PaymentStatusClaimed       = "claimed"
	PaymentStatusLightningFail = "lightning_failed"
	PaymentStatusClaimFailed   = "claim_failed"
	PaymentStatusError         = "error"
)

// LightningSubState tracks the Lightning-side leg of a payment.
type LightningSubState struct {
	Status          string `json:"status,omitempty"`
	InvoiceStatus   string `json:"invoice_status,omitempty"`
	AmountSats      int64  `json:"amount_sats,omitempty"`
	PaymentPreimage string `json:"payment_preimage,omitempty"`
	Failure         string `json:"failure,omitempty"`
}

// ChainSubState tracks the on-chain leg of a payment (named "starknet"
// since that's the chain this bridge targets).
type ChainSubState struct {
	Status    string `json:"status,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
	Failure   string `json:"failure,omitempty"`
}

// HistoryEvent is one append-only entry in a PaymentRecord's history. ID is
// a generated identifier distinct from the event's position in the slice,
// so a consumer can reference one entry even if earlier entries are ever
// pruned from a response.
type HistoryEvent struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Timestamp int64                  `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// InvoiceRecord is the off-chain record for one issued Lightning invoice,
// keyed by its local label.
type InvoiceRecord struct {
	UserIDB64     string `json:"user_id_b64"`
	CreditAddress string `json:"credit_address"`
	AmountSats    int64  `json:"amount_sats"`
	AmountMsat    int64  `json:"amount_msat,omitempty"`
	Bolt11        string `json:"bolt11"`
	Status        string `json:"status"`
	PaidAt        int64  `json:"paid_at,omitempty"`
	CreatedAt     int64  `json:"created_at"`

	Monitor InvoiceMonitorState `json:"monitor"`
	Credit  InvoiceCreditState  `json:"credit"`
}

// Lifecycle statuses for InvoiceRecord.Status.
const (
	InvoiceStatusUnpaid  = "unpaid"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusExpired = "expired"
)

// Statuses for InvoiceRecord.Credit.Status.
const (
	CreditStatusPending    = "pending"
	CreditStatusProcessing = "processing"
	CreditStatusCredited   = "credited"
	CreditStatusFailed     = "failed"
)

// InvoiceMonitorState tracks CreditMonitor's reconciliation bookkeeping.
type InvoiceMonitorState struct {
	LastCheckedAt int64  `json:"last_checked_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	CLNStatus     string `json:"cln_status,omitempty"`
}

// InvoiceCreditState tracks the on-chain credit-transfer side of an invoice.
type InvoiceCreditState struct {
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	AmountSats    int64  `json:"amount_sats,omitempty"`
	AmountUnits   string `json:"amount_units,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	NextRetryAt   int64  `json:"next_retry_at,omitempty"`
	CreditedAt    int64  `json:"credited_at,omitempty"`
	LastAttemptAt int64  `json:"last_attempt_at,omitempty"`
}

// AppendHistory appends an event; history is append-only per this record's
// invariant and is never edited or truncated in place.
func (p *PaymentRecord) AppendHistory(event string, now int64, fields map[string]interface{}) {
	p.History = append(p.History, HistoryEvent{ID: uuid.New().String(), Event: event, Timestamp: now, Fields: fields})
	p.UpdatedAt = now
}

// MarkErrorOnce records err's message on the record's appropriate sub-state
// the first time it's called for this record, then becomes a no-op — the
// flag this record needs to prevent double-logging the same error.
func (p *PaymentRecord) MarkErrorOnce(sub string, message string) {
	if p.errorLogged {
		return
	}
	switch sub {
	case "lightning":
		p.Lightning.Failure = message
	case "starknet":
		p.Starknet.Failure = message
	}
	p.errorLogged = true
}
