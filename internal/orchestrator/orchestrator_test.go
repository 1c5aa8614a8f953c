package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocolbridge/ln-escrow-bridge/internal/chain"
	"github.com/protocolbridge/ln-escrow-bridge/internal/escrow"
	"github.com/protocolbridge/ln-escrow-bridge/internal/lightning"
	"github.com/protocolbridge/ln-escrow-bridge/internal/store"
)

type fakeChain struct {
	position    chain.LockedPosition
	loadErr     error
	claimTxHash string
	claimErr    error
	submitted   int
}

func (f *fakeChain) LoadEscrow(ctx context.Context, hash escrow.Word256) (chain.LockedPosition, error) {
	if f.loadErr != nil {
		return chain.LockedPosition{}, f.loadErr
	}
	return f.position, nil
}

func (f *fakeChain) SubmitClaim(ctx context.Context, hash escrow.Word256, preimage []byte) (string, error) {
	f.submitted++
	if f.claimErr != nil {
		return "", f.claimErr
	}
	return f.claimTxHash, nil
}

type fakeLightning struct {
	invoices  []lightning.Invoice
	pays      []lightning.Pay
	payResult lightning.PayResult
	payErr    error
	payCalls  int
}

func (f *fakeLightning) ListInvoicesByHash(ctx context.Context, paymentHash string) ([]lightning.Invoice, error) {
	return f.invoices, nil
}

func (f *fakeLightning) ListPaysByHash(ctx context.Context, paymentHash string) ([]lightning.Pay, error) {
	return f.pays, nil
}

func (f *fakeLightning) Pay(ctx context.Context, params lightning.PayParams) (lightning.PayResult, error) {
	f.payCalls++
	if f.payErr != nil {
		return lightning.PayResult{}, f.payErr
	}
	return f.payResult, nil
}

func newTestOrchestrator(t *testing.T, chainGW ChainGateway, ln LightningClient) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "bridge.json"), nil)
	require.NoError(t, err)
	o := New(Config{PayRetryForSeconds: 30}, chainGW, ln, st, nil, func() int64 { return 1700000000 }, nil)
	return o, st
}

func hashHexOf(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func TestProcessPaymentRequestHappyPath(t *testing.T) {
	hash := hashHexOf("ln-secret")
	preimage := "6c6e2d736563726574" // hex("ln-secret")

	chainGW := &fakeChain{
		position: chain.LockedPosition{User: "0x505", Amount: escrow.Word256FromUint64(5000), ExpiresAt: 4600, LockedAt: 1000},
		claimTxHash: "0xtx1",
	}
	ln := &fakeLightning{
		invoices: []lightning.Invoice{{
			PaymentHash:        hash,
			AmountReceivedMsat: 5_000_000,
			Status:             "unpaid",
		}},
		payResult: lightning.PayResult{
			PaymentHash:     hash,
			PaymentPreimage: preimage,
			AmountMsat:      5_000_000,
		},
	}
	o, st := newTestOrchestrator(t, chainGW, ln)

	result, err := o.ProcessPaymentRequest(context.Background(), hash, "")
	require.NoError(t, err)
	assert.Equal(t, "claimed", result.Status)
	assert.Equal(t, "0xtx1", result.TxHash)
	assert.Equal(t, 1, chainGW.submitted)
	assert.Equal(t, 1, ln.payCalls)

	rec, ok, err := st.GetPayment(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.PaymentStatusClaimed, rec.Status)
}

func TestProcessPaymentRequestIdempotentAfterClaim(t *testing.T) {
	hash := hashHexOf("idempotent")
	chainGW := &fakeChain{
		position:    chain.LockedPosition{User: "0x505", Amount: escrow.Word256FromUint64(1000), ExpiresAt: 4600, LockedAt: 1000},
		claimTxHash: "0xtx2",
	}
	ln := &fakeLightning{
		invoices: []lightning.Invoice{{PaymentHash: hash, AmountReceivedMsat: 1_000_000, Status: "paid", PaymentPreimage: "deadbeef"}},
	}
	o, _ := newTestOrchestrator(t, chainGW, ln)

	first, err := o.ProcessPaymentRequest(context.Background(), hash, "")
	require.NoError(t, err)
	assert.Equal(t, "claimed", first.Status)

	second, err := o.ProcessPaymentRequest(context.Background(), hash, "")
	require.NoError(t, err)
	assert.Equal(t, "skipped", second.Status)
	assert.Equal(t, 1, chainGW.submitted, "second request must not submit another claim")
}

func TestProcessPaymentRequestRejectsAmountMismatch(t *testing.T) {
	hash := hashHexOf("mismatch")
	chainGW := &fakeChain{
		position: chain.LockedPosition{User: "0x505", Amount: escrow.Word256FromUint64(5000), ExpiresAt: 4600, LockedAt: 1000},
	}
	ln := &fakeLightning{
		invoices: []lightning.Invoice{{PaymentHash: hash, AmountReceivedMsat: 6_000_000, Status: "unpaid"}},
	}
	o, st := newTestOrchestrator(t, chainGW, ln)

	_, err := o.ProcessPaymentRequest(context.Background(), hash, "")
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, 0, chainGW.submitted)
	assert.Equal(t, 0, ln.payCalls)

	rec, ok, _ := st.GetPayment(hash)
	require.True(t, ok)
	assert.Equal(t, store.PaymentStatusLightningFail, rec.Status)
	assert.Equal(t, ErrAmountMismatch.Error(), rec.Lightning.Failure)
}

func TestProcessPaymentRequestRejectsInvalidHash(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeChain{}, &fakeLightning{})
	_, err := o.ProcessPaymentRequest(context.Background(), "not-a-hash", "")
	assert.ErrorIs(t, err, ErrInvalidPaymentHash)
}

func TestProcessPaymentRequestFailsWhenNotLocked(t *testing.T) {
	hash := hashHexOf("never-locked")
	chainGW := &fakeChain{loadErr: chain.ErrNotLockedOnchain}
	o, _ := newTestOrchestrator(t, chainGW, &fakeLightning{})

	_, err := o.ProcessPaymentRequest(context.Background(), hash, "")
	assert.ErrorIs(t, err, ErrLockedNotFound)
}

type blockingLocker struct {
	held map[string]bool
}

func (b *blockingLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if b.held == nil {
		b.held = make(map[string]bool)
	}
	if b.held[key] {
		return false, nil
	}
	b.held[key] = true
	return true, nil
}

func (b *blockingLocker) Release(ctx context.Context, key string) {
	delete(b.held, key)
}

func TestProcessPaymentRequestRejectsConcurrentDuplicateViaLocker(t *testing.T) {
	hash := hashHexOf("concurrent")
	chainGW := &fakeChain{position: chain.LockedPosition{Amount: escrow.Word256FromUint64(100)}}
	st, err := store.New(filepath.Join(t.TempDir(), "bridge.json"), nil)
	require.NoError(t, err)
	locker := &blockingLocker{held: map[string]bool{lockKeyPrefix + hash: true}}
	o := New(Config{}, chainGW, &fakeLightning{}, st, locker, func() int64 { return 1 }, nil)

	_, err = o.ProcessPaymentRequest(context.Background(), hash, "")
	assert.ErrorIs(t, err, ErrPaymentInflight)
}
