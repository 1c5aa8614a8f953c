package escrow

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(secret string) Word256 {
	sum := sha256.Sum256([]byte(secret))
	return Word256FromBigEndianBytes(sum[:])
}

func testConfig() VaultConfig {
	return VaultConfig{
		Owner:            "0x101",
		ProtocolOperator: "0x202",
		ProtocolTreasury: "0x303",
		Asset:            "0x404_tok",
		ExpiryWindow:     3600,
		PaymentLimit:     Word256FromUint64(10000),
	}
}

func newClockedContract(t *testing.T, start int64) (*Contract, *MemoryLedger, *int64) {
	t.Helper()
	clock := start
	ledger := NewMemoryLedger()
	c, err := NewContract(testConfig(), ledger, func() int64 { return clock }, nil)
	require.NoError(t, err)
	return c, ledger, &clock
}

// Scenario 1: happy-path claim.
func TestHappyPathClaim(t *testing.T) {
	c, ledger, clock := newClockedContract(t, 1000)
	ledger.Credit("0x505", Word256FromUint64(5000))
	hash := hashOf("ln-secret")

	err := c.LockForLnPayment("0x505", "0x505", Word256FromUint64(5000), hash)
	require.NoError(t, err)

	*clock = 1500
	err = c.Claim("0x202", hash, []byte("ln-secret"))
	require.NoError(t, err)

	pos := c.GetEscrow(hash)
	assert.Equal(t, PhaseClaimed, pos.Phase)
	assert.Equal(t, int64(4600), pos.ExpiresAt)
	assert.Equal(t, Word256FromUint64(0), ledger.Balance("0x505"))
	assert.Equal(t, Word256FromUint64(0), ledger.Balance("0x404_tok"))
	assert.Equal(t, Word256FromUint64(5000), ledger.Balance("0x303"))
}

// Scenario 2: refund after expiry.
func TestRefundAfterExpiry(t *testing.T) {
	c, ledger, clock := newClockedContract(t, 5000)
	ledger.Credit("0x505", Word256FromUint64(5000))
	hash := hashOf("refund-secret")

	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(5000), hash))

	*clock = 8601
	require.NoError(t, c.Refund(hash))

	pos := c.GetEscrow(hash)
	assert.Equal(t, PhaseRefunded, pos.Phase)
	assert.Equal(t, Word256FromUint64(5000), ledger.Balance("0x505"))
	assert.Equal(t, Word256FromUint64(0), ledger.Balance("0x404_tok"))
}

// Refund attempted before expiry must fail with ESCROW_ACTIVE.
func TestRefundBeforeExpiryFails(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 5000)
	ledger.Credit("0x505", Word256FromUint64(5000))
	hash := hashOf("too-soon")
	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(5000), hash))

	err := c.Refund(hash)
	assert.ErrorIs(t, err, ErrEscrowActive)
}

// Scenario 3: operator cooperative refund.
func TestOperatorRefund(t *testing.T) {
	c, ledger, clock := newClockedContract(t, 12000)
	ledger.Credit("0x505", Word256FromUint64(5000))
	hash := hashOf("cooperative")
	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(5000), hash))

	*clock = 12001
	require.NoError(t, c.OperatorRefund("0x202", hash))

	pos := c.GetEscrow(hash)
	assert.Equal(t, PhaseRefunded, pos.Phase)
	assert.Equal(t, Word256FromUint64(5000), ledger.Balance("0x505"))
}

func TestOperatorRefundRejectsNonOperator(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 1)
	ledger.Credit("0x505", Word256FromUint64(100))
	hash := hashOf("not-operator")
	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(100), hash))

	err := c.OperatorRefund("0x999", hash)
	assert.ErrorIs(t, err, ErrNotOperator)
}

// Scenario 4: hash-reuse rejection.
func TestHashReuseRejected(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 1)
	ledger.Credit("0x505", Word256FromUint64(9000))
	hash := hashOf("reused")

	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(1000), hash))
	err := c.LockForLnPayment("0x505", "0x505", Word256FromUint64(2000), hash)
	assert.ErrorIs(t, err, ErrHashReused)
}

func TestClaimWrongPreimageFails(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 1)
	ledger.Credit("0x505", Word256FromUint64(100))
	hash := hashOf("correct")
	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(100), hash))

	err := c.Claim("0x202", hash, []byte("wrong"))
	assert.ErrorIs(t, err, ErrHashMismatch)

	pos := c.GetEscrow(hash)
	assert.Equal(t, PhaseLocked, pos.Phase, "failed claim must not mutate phase")
}

func TestClaimRequiresOperator(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 1)
	ledger.Credit("0x505", Word256FromUint64(100))
	hash := hashOf("op-only")
	require.NoError(t, c.LockForLnPayment("0x505", "0x505", Word256FromUint64(100), hash))

	err := c.Claim("0x505", hash, []byte("op-only"))
	assert.ErrorIs(t, err, ErrNotOperator)
}

func TestLockRejectsAmountOverLimit(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 1)
	ledger.Credit("0x505", Word256FromUint64(20000))
	hash := hashOf("too-big")

	err := c.LockForLnPayment("0x505", "0x505", Word256FromUint64(10001), hash)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestLockRejectsZeroAmount(t *testing.T) {
	c, _, _ := newClockedContract(t, 1)
	hash := hashOf("zero")
	err := c.LockForLnPayment("0x505", "0x505", Word256FromUint64(0), hash)
	assert.ErrorIs(t, err, ErrAmountZero)
}

func TestLockRejectsCallerMismatch(t *testing.T) {
	c, ledger, _ := newClockedContract(t, 1)
	ledger.Credit("0x505", Word256FromUint64(100))
	hash := hashOf("impersonate")
	err := c.LockForLnPayment("0x999", "0x505", Word256FromUint64(100), hash)
	assert.ErrorIs(t, err, ErrNotUser)
}

func TestNewContractValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ExpiryWindow = secondsPerWeek
	_, err := NewContract(cfg, NewMemoryLedger(), nil, nil)
	assert.ErrorIs(t, err, ErrExpiryGtWeek)
}

func TestWord256RoundTrip(t *testing.T) {
	sum := sha256.Sum256([]byte("round-trip"))
	w := Word256FromBigEndianBytes(sum[:])
	assert.Equal(t, sum, w.Bytes32())
}

func TestWord256Cmp(t *testing.T) {
	small := Word256FromUint64(100)
	big := Word256FromUint64(200)
	assert.Equal(t, -1, small.Cmp(big))
	assert.Equal(t, 1, big.Cmp(small))
	assert.Equal(t, 0, small.Cmp(Word256FromUint64(100)))
}
