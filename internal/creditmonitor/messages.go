package creditmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CreditTransferMessage is a request to move an invoice's credited amount
// on-chain to its merchant address. It travels through the Redis Streams
// queue so a crashed worker's in-flight transfer is recovered by
// XAutoClaim rather than lost.
type CreditTransferMessage struct {
	InvoiceLabel  string `json:"invoice_label"`
	CreditAddress string `json:"credit_address"`
	AmountSats    int64  `json:"amount_sats"`
}

// ToJSON serializes the message to JSON bytes.
func (m *CreditTransferMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credit transfer message: %w", err)
	}
	return data, nil
}

// FromJSONCreditTransfer deserializes and validates a CreditTransferMessage.
func FromJSONCreditTransfer(data []byte) (*CreditTransferMessage, error) {
	msg := &CreditTransferMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credit transfer message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Validate checks the message's required fields.
func (m *CreditTransferMessage) Validate() error {
	if m.InvoiceLabel == "" {
		return errors.New("invoice_label is required")
	}
	if m.CreditAddress == "" {
		return errors.New("credit_address is required")
	}
	if m.AmountSats <= 0 {
		return errors.New("amount_sats must be greater than 0")
	}
	return nil
}
