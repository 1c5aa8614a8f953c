package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/protocolbridge/ln-escrow-bridge/internal/escrow"
)

// ErrNotLockedOnchain is returned by LoadEscrow when the on-chain phase is
// not Locked.
var ErrNotLockedOnchain = errors.New("NOT_LOCKED_ONCHAIN")

// ClaimFailed wraps a non-success chain transaction status:
// only ACCEPTED_ON_L1, ACCEPTED_ON_L2 and SUCCEEDED count as success.
type ClaimFailed struct {
	TxID   string
	Status string
}

func (e *ClaimFailed) Error() string {
	return fmt.Sprintf("chain: claim failed, txid=%s status=%s", e.TxID, e.Status)
}

var acceptedStatuses = map[string]bool{
	"ACCEPTED_ON_L1": true,
	"ACCEPTED_ON_L2": true,
	"SUCCEEDED":      true,
}

// LockedPosition is the decoded view ChainGateway.LoadEscrow returns: the
// amount is decoded into a Word256, and User is the address string exactly
// as the RPC returned it; it is not case- or padding-normalized.
type LockedPosition struct {
	User      string
	Amount    escrow.Word256
	LockedAt  int64
	ExpiresAt int64
}

// Config configures a Gateway against a chain JSON-RPC endpoint.
type Config struct {
	RPCURL             string
	EscrowAddress      string
	TokenAddress       string
	TokenDecimals      int
	OperatorAddress    string
	OperatorPrivateKey string
	RequestTimeout     time.Duration
}

// Gateway is the off-chain typed interface to the escrow/token contract
// it loads positions, submits claims and transfers,
// and serializes the operator's nonce through a single FIFO lane.
type Gateway struct {
	cfg    Config
	client *Client
	lane   *nonceLane
	signer *Signer
	log    *zap.Logger
}

// NewGateway builds a Gateway. token_decimals must fall in [8, 77].
// OperatorPrivateKey is optional so tests can exercise the gateway
// against a fake RPC without a real key; a production deployment always
// supplies one.
func NewGateway(cfg Config, log *zap.Logger) (*Gateway, error) {
	if cfg.TokenDecimals < 8 || cfg.TokenDecimals > 77 {
		return nil, fmt.Errorf("chain: token_decimals %d out of range [8,77]", cfg.TokenDecimals)
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		cfg:    cfg,
		client: NewClient(cfg.RPCURL, cfg.RequestTimeout),
		log:    log,
	}
	if cfg.OperatorPrivateKey != "" {
		signer, err := NewSigner(cfg.OperatorPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("chain: operator signer: %w", err)
		}
		g.signer = signer
	}
	g.lane = newNonceLane(g.seedNonce)
	return g, nil
}

// sign returns a hex signature over payload, or "" if no signer is
// configured (test/dev mode against a fake RPC).
func (g *Gateway) sign(payload []byte) (string, error) {
	if g.signer == nil {
		return "", nil
	}
	return g.signer.Sign(payload)
}

// getEscrowMethod is the chain RPC method for reading a position.
type getEscrowMethod struct {
	Hash string `json:"hash"`
}

func (getEscrowMethod) Name() string { return "get_escrow" }

type getEscrowResult struct {
	Phase     interface{} `json:"phase"`
	User      string      `json:"user"`
	Amount    string      `json:"amount"`
	LockedAt  int64       `json:"locked_at"`
	ExpiresAt int64       `json:"expires_at"`
}

// LoadEscrow reads the raw position for hash and fails ErrNotLockedOnchain
// unless its phase is Locked.
func (g *Gateway) LoadEscrow(ctx context.Context, hash escrow.Word256) (LockedPosition, error) {
	var result getEscrowResult
	if err := g.client.Request(ctx, getEscrowMethod{Hash: hexOf(hash)}, &result); err != nil {
		return LockedPosition{}, fmt.Errorf("chain: load_escrow: %w", err)
	}
	phase, err := ParsePhase(result.Phase)
	if err != nil {
		return LockedPosition{}, fmt.Errorf("chain: load_escrow: %w", err)
	}
	if phase != escrow.PhaseLocked {
		return LockedPosition{}, ErrNotLockedOnchain
	}
	amount, err := escrow.Word256FromDecimal(result.Amount)
	if err != nil {
		return LockedPosition{}, fmt.Errorf("chain: load_escrow: %w", err)
	}
	return LockedPosition{
		User:      result.User,
		Amount:    amount,
		LockedAt:  result.LockedAt,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

type claimMethod struct {
	EscrowAddress string    `json:"contract_address"`
	HashLow       string    `json:"hash_low"`
	HashHigh      string    `json:"hash_high"`
	Preimage      ByteArray `json:"preimage"`
	Nonce         uint64    `json:"nonce"`
	Signature     string    `json:"signature,omitempty"`
}

func (claimMethod) Name() string { return "claim" }

type submitResult struct {
	TxID   string `json:"tx_hash"`
	Status string `json:"status"`
}

// SubmitClaim encodes (hash, preimage) exactly as the escrow entrypoint
// expects, draws a nonce from the FIFO lane, submits, and waits for
// inclusion. Only ACCEPTED_ON_L1/L2/SUCCEEDED count as
// success; anything else surfaces as ClaimFailed.
func (g *Gateway) SubmitClaim(ctx context.Context, hash escrow.Word256, preimage []byte) (string, error) {
	lh := hash.LowHigh()
	var txID, status string
	err := g.lane.withNonce(func(nonce uint64) error {
		var result submitResult
		sig, err := g.sign([]byte(fmt.Sprintf("claim:%s:%x:%d", hash.String(), preimage, nonce)))
		if err != nil {
			return fmt.Errorf("chain: sign claim: %w", err)
		}
		method := claimMethod{
			EscrowAddress: g.cfg.EscrowAddress,
			HashLow:       "0x" + lh.Low.Text(16),
			HashHigh:      "0x" + lh.High.Text(16),
			Preimage:      EncodeByteArray(preimage),
			Nonce:         nonce,
			Signature:     sig,
		}
		if err := g.client.Request(ctx, method, &result); err != nil {
			return err
		}
		txID, status = result.TxID, result.Status
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chain: submit_claim: %w", err)
	}
	if !acceptedStatuses[status] {
		return txID, &ClaimFailed{TxID: txID, Status: status}
	}
	g.log.Info("claim submitted", zap.String("tx_hash", txID), zap.String("status", status))
	return txID, nil
}

type transferMethod struct {
	TokenAddress string `json:"contract_address"`
	Recipient    string `json:"recipient"`
	AmountLow    string `json:"amount_low"`
	AmountHigh   string `json:"amount_high"`
	Nonce        uint64 `json:"nonce"`
	Signature    string `json:"signature,omitempty"`
}

func (transferMethod) Name() string { return "transfer" }

// SubmitTransfer converts amountSats to token units and submits a transfer
// to recipient through the same nonce lane as SubmitClaim.
func (g *Gateway) SubmitTransfer(ctx context.Context, recipient string, amountSats int64) (string, *big.Int, error) {
	if amountSats <= 0 {
		return "", nil, fmt.Errorf("chain: submit_transfer: amount_sats must be positive, got %d", amountSats)
	}
	units := SatsToUnits(amountSats, g.cfg.TokenDecimals)
	amount := escrow.Word256FromBigInt(units)
	lh := amount.LowHigh()

	var txID, status string
	err := g.lane.withNonce(func(nonce uint64) error {
		var result submitResult
		sig, err := g.sign([]byte(fmt.Sprintf("transfer:%s:%s:%d", recipient, units.String(), nonce)))
		if err != nil {
			return fmt.Errorf("chain: sign transfer: %w", err)
		}
		method := transferMethod{
			TokenAddress: g.cfg.TokenAddress,
			Recipient:    recipient,
			AmountLow:    "0x" + lh.Low.Text(16),
			AmountHigh:   "0x" + lh.High.Text(16),
			Nonce:        nonce,
			Signature:    sig,
		}
		if err := g.client.Request(ctx, method, &result); err != nil {
			return err
		}
		txID, status = result.TxID, result.Status
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("chain: submit_transfer: %w", err)
	}
	if !acceptedStatuses[status] {
		return txID, units, &ClaimFailed{TxID: txID, Status: status}
	}
	g.log.Info("transfer submitted",
		zap.String("tx_hash", txID),
		zap.String("recipient", recipient),
		zap.String("amount_units", units.String()),
	)
	return txID, units, nil
}

// SatsToUnits converts a satoshi amount to token units:
// amount_units = amount_sats * 10^(token_decimals - 8).
func SatsToUnits(amountSats int64, tokenDecimals int) *big.Int {
	exp := tokenDecimals - 8
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return new(big.Int).Mul(big.NewInt(amountSats), scale)
}

type operatorNonceMethod struct {
	Address string `json:"address"`
}

func (operatorNonceMethod) Name() string { return "get_nonce" }

func (g *Gateway) seedNonce() (uint64, error) {
	var result struct {
		Nonce uint64 `json:"nonce"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
	defer cancel()
	if err := g.client.Request(ctx, operatorNonceMethod{Address: g.cfg.OperatorAddress}, &result); err != nil {
		return 0, fmt.Errorf("chain: seed nonce: %w", err)
	}
	return result.Nonce, nil
}

// Stats reports the nonce lane's bookkeeping for the health-check surface.
func (g *Gateway) Stats() Stats {
	return g.lane.stats()
}

func hexOf(w escrow.Word256) string {
	b := w.Bytes32()
	return "0x" + fmt.Sprintf("%x", b)
}
