// Package escrow implements the hashed-time-locked token escrow that backs
// the Lightning bridge: a payer locks tokens against a SHA-256 hash, the
// operator claims them with the matching preimage, and an expired lock can
// be refunded by anyone (or cooperatively, by the operator, at any time).
package escrow

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// Phase is the lifecycle state of a single locked hash. None and Locked are
// transient; Claimed and Refunded are terminal and never transition further.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseLocked
	PhaseClaimed
	PhaseRefunded
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseLocked:
		return "locked"
	case PhaseClaimed:
		return "claimed"
	case PhaseRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EscrowPosition is the on-chain record for a single locked hash.
type EscrowPosition struct {
	Phase     Phase
	User      string
	Amount    Word256
	LockedAt  int64
	ExpiresAt int64
}

// VaultConfig holds the owner-governed parameters of the vault. Mutators are
// restricted to Owner.
type VaultConfig struct {
	Owner            string
	ProtocolOperator string
	ProtocolTreasury string
	Asset            string
	ExpiryWindow     int64 // seconds; 0 <= window < secondsPerWeek
	PaymentLimit     Word256
}

const secondsPerWeek = 7 * 24 * 3600

// TokenLedger is the minimal ERC-20-style surface the contract needs:
// transfer_from pulls funds into the contract on lock, transfer pushes funds
// out on claim/refund. Both report success via their boolean return, mirroring
// the on-chain "falsey return fails the call" semantics of §4.1.
type TokenLedger interface {
	TransferFrom(from, to string, amount Word256) bool
	Transfer(from, to string, amount Word256) bool
}

// MemoryLedger is a simple in-process TokenLedger used by tests and by any
// harness that wants to exercise the state machine without a real chain
// connection.
type MemoryLedger struct {
	balances map[string]*big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]*big.Int)}
}

// Credit seeds an address's balance; only used by tests to set up fixtures.
func (m *MemoryLedger) Credit(addr string, amount Word256) {
	b := m.cell(addr)
	b.Add(b, amount.AsBigInt())
}

func (m *MemoryLedger) cell(addr string) *big.Int {
	b, ok := m.balances[addr]
	if !ok {
		b = new(big.Int)
		m.balances[addr] = b
	}
	return b
}

// Balance returns an address's current balance.
func (m *MemoryLedger) Balance(addr string) Word256 {
	return Word256FromBigInt(m.cell(addr))
}

func (m *MemoryLedger) TransferFrom(from, to string, amount Word256) bool {
	fromBal := m.cell(from)
	amt := amount.AsBigInt()
	if fromBal.Cmp(amt) < 0 {
		return false
	}
	fromBal.Sub(fromBal, amt)
	toBal := m.cell(to)
	toBal.Add(toBal, amt)
	return true
}

func (m *MemoryLedger) Transfer(from, to string, amount Word256) bool {
	return m.TransferFrom(from, to, amount)
}

// Contract is the in-process implementation of the escrow state machine.
// A real deployment drives the same transitions through ChainGateway against
// the deployed contract; Contract exists so the state machine itself has a
// single, independently testable home, and so unit tests can exercise every
// named error without a chain connection.
type Contract struct {
	cfg       VaultConfig
	positions map[string]*EscrowPosition
	ledger    TokenLedger
	now       func() int64
	log       *zap.Logger
}

// NewContract constructs a Contract with the given genesis configuration and
// backing ledger. now defaults to the wall clock if nil (tests pass a fake).
func NewContract(cfg VaultConfig, ledger TokenLedger, now func() int64, log *zap.Logger) (*Contract, error) {
	if cfg.Owner == "" {
		return nil, ErrOwnerZero
	}
	if cfg.ProtocolOperator == "" {
		return nil, ErrOperatorZero
	}
	if cfg.ProtocolTreasury == "" {
		return nil, ErrTreasuryZero
	}
	if cfg.Asset == "" {
		return nil, ErrAssetZero
	}
	if cfg.ExpiryWindow < 0 || cfg.ExpiryWindow >= secondsPerWeek {
		return nil, ErrExpiryGtWeek
	}
	if cfg.PaymentLimit.IsZero() {
		return nil, ErrLimitZero
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Contract{
		cfg:       cfg,
		positions: make(map[string]*EscrowPosition),
		ledger:    ledger,
		now:       now,
		log:       log,
	}, nil
}

func hashKey(hash Word256) string {
	return hash.AsBigInt().Text(16)
}

// GetEscrow returns the position recorded under hash, or a zero-value
// position in Phase None if nothing was ever locked there.
func (c *Contract) GetEscrow(hash Word256) EscrowPosition {
	p, ok := c.positions[hashKey(hash)]
	if !ok {
		return EscrowPosition{Phase: PhaseNone}
	}
	return *p
}

// GetConfig returns the current vault configuration.
func (c *Contract) GetConfig() VaultConfig {
	return c.cfg
}

// LockForLnPayment locks amount of the vault asset from caller (who must
// equal user) against hash.
func (c *Contract) LockForLnPayment(caller, user string, amount Word256, hash Word256) error {
	if user == "" {
		return ErrUserZero
	}
	if caller != user {
		return ErrNotUser
	}
	if amount.IsZero() {
		return ErrAmountZero
	}
	if amount.Cmp(c.cfg.PaymentLimit) > 0 {
		return ErrLimitExceeded
	}
	key := hashKey(hash)
	if existing, ok := c.positions[key]; ok && existing.Phase != PhaseNone {
		return ErrHashReused
	}
	if !c.ledger.TransferFrom(user, c.cfg.Asset, amount) {
		return ErrTransferFrom
	}
	now := c.now()
	pos := &EscrowPosition{
		Phase:     PhaseLocked,
		User:      user,
		Amount:    amount,
		LockedAt:  now,
		ExpiresAt: now + c.cfg.ExpiryWindow,
	}
	c.positions[key] = pos
	c.log.Info("escrow locked",
		zap.String("hash", key),
		zap.String("user", user),
		zap.String("amount", amount.String()),
		zap.Int64("expires_at", pos.ExpiresAt),
	)
	return nil
}

// Claim releases the locked amount to the treasury once caller (the
// operator) presents a preimage whose SHA-256 equals hash bit-for-bit.
func (c *Contract) Claim(caller string, hash Word256, preimage []byte) error {
	if caller != c.cfg.ProtocolOperator {
		return ErrNotOperator
	}
	key := hashKey(hash)
	pos, ok := c.positions[key]
	if !ok || pos.Phase != PhaseLocked {
		return ErrNotLocked
	}
	sum := sha256.Sum256(preimage)
	computed := Word256FromBigEndianBytes(sum[:])
	if computed.Cmp(hash) != 0 {
		return ErrHashMismatch
	}
	if !c.ledger.Transfer(c.cfg.Asset, c.cfg.ProtocolTreasury, pos.Amount) {
		return ErrTransferFail
	}
	pos.Phase = PhaseClaimed
	c.log.Info("escrow claimed",
		zap.String("hash", key),
		zap.String("claimer", caller),
		zap.String("amount", pos.Amount.String()),
	)
	return nil
}

// Refund returns the locked amount to user once the lock has expired.
// Caller is unrestricted — anyone paying gas may trigger a post-expiry
// refund.
func (c *Contract) Refund(hash Word256) error {
	key := hashKey(hash)
	pos, ok := c.positions[key]
	if !ok || pos.Phase != PhaseLocked {
		return ErrNotLocked
	}
	if c.now() < pos.ExpiresAt {
		return ErrEscrowActive
	}
	return c.doRefund(key, pos)
}

// OperatorRefund performs the same transition as Refund but is gated on
// caller identity rather than expiry — the operator's cooperative abort.
func (c *Contract) OperatorRefund(caller string, hash Word256) error {
	if caller != c.cfg.ProtocolOperator {
		return ErrNotOperator
	}
	key := hashKey(hash)
	pos, ok := c.positions[key]
	if !ok || pos.Phase != PhaseLocked {
		return ErrNotLocked
	}
	return c.doRefund(key, pos)
}

func (c *Contract) doRefund(key string, pos *EscrowPosition) error {
	if !c.ledger.Transfer(c.cfg.Asset, pos.User, pos.Amount) {
		return ErrTransferFail
	}
	pos.Phase = PhaseRefunded
	c.log.Info("escrow refunded",
		zap.String("hash", key),
		zap.String("user", pos.User),
		zap.String("amount", pos.Amount.String()),
	)
	return nil
}

// TransferOwnership reassigns the vault owner.
func (c *Contract) TransferOwnership(caller, newOwner string) error {
	if caller != c.cfg.Owner {
		return ErrNotOwner
	}
	if newOwner == "" {
		return ErrOwnerZero
	}
	c.cfg.Owner = newOwner
	return nil
}

// UpdateProtocolOperator reassigns the single privileged claimer.
func (c *Contract) UpdateProtocolOperator(caller, newOperator string) error {
	if caller != c.cfg.Owner {
		return ErrNotOwner
	}
	if newOperator == "" {
		return ErrOperatorZero
	}
	c.cfg.ProtocolOperator = newOperator
	return nil
}

// UpdateProtocolTreasury reassigns the claim destination.
func (c *Contract) UpdateProtocolTreasury(caller, newTreasury string) error {
	if caller != c.cfg.Owner {
		return ErrNotOwner
	}
	if newTreasury == "" {
		return ErrTreasuryZero
	}
	c.cfg.ProtocolTreasury = newTreasury
	return nil
}

// UpdateAsset reassigns the escrowed token address.
func (c *Contract) UpdateAsset(caller, newAsset string) error {
	if caller != c.cfg.Owner {
		return ErrNotOwner
	}
	if newAsset == "" {
		return ErrAssetZero
	}
	c.cfg.Asset = newAsset
	return nil
}

// UpdateExpiryWindow reassigns the lock duration, in seconds.
func (c *Contract) UpdateExpiryWindow(caller string, window int64) error {
	if caller != c.cfg.Owner {
		return ErrNotOwner
	}
	if window < 0 || window >= secondsPerWeek {
		return ErrExpiryGtWeek
	}
	c.cfg.ExpiryWindow = window
	return nil
}

// UpdatePaymentLimit reassigns the per-lock cap.
func (c *Contract) UpdatePaymentLimit(caller string, limit Word256) error {
	if caller != c.cfg.Owner {
		return ErrNotOwner
	}
	if limit.IsZero() {
		return ErrLimitZero
	}
	c.cfg.PaymentLimit = limit
	return nil
}
