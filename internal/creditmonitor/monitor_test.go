package creditmonitor

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocolbridge/ln-escrow-bridge/internal/lightning"
	"github.com/protocolbridge/ln-escrow-bridge/internal/store"
)

type fakeLightning struct {
	byLabel map[string][]lightning.Invoice
}

func (f *fakeLightning) ListInvoicesByLabel(ctx context.Context, label string) ([]lightning.Invoice, error) {
	return f.byLabel[label], nil
}

type fakeChain struct {
	txHash  string
	units   *big.Int
	err     error
	calls   int
	lastAmt int64
}

func (f *fakeChain) SubmitTransfer(ctx context.Context, recipient string, amountSats int64) (string, *big.Int, error) {
	f.calls++
	f.lastAmt = amountSats
	if f.err != nil {
		return "", nil, f.err
	}
	return f.txHash, f.units, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "bridge.json"), nil)
	require.NoError(t, err)
	return st
}

func TestMonitorCreditsNewlyPaidInvoice(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-1", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusUnpaid,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusPending},
	}))

	ln := &fakeLightning{byLabel: map[string][]lightning.Invoice{
		"inv-1": {{Label: "inv-1", Status: "paid", AmountReceivedMsat: 5_000_000, PaymentHash: "abc"}},
	}}
	chainGW := &fakeChain{txHash: "0xcredit1", units: big.NewInt(500000)}

	now := int64(1700000000)
	m := New(Config{}, ln, chainGW, st, nil, nil, func() int64 { return now }, nil)

	m.tick(context.Background())

	rec, ok, err := st.GetInvoice("inv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.InvoiceStatusPaid, rec.Status)
	assert.Equal(t, store.CreditStatusCredited, rec.Credit.Status)
	assert.Equal(t, "0xcredit1", rec.Credit.TxHash)
	assert.Equal(t, int64(5000), rec.AmountSats)
	assert.Equal(t, 1, chainGW.calls)
	assert.Equal(t, int64(5000), chainGW.lastAmt)
}

func TestMonitorSkipsAlreadyCreditedInvoice(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-done", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    1000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusCredited, TxHash: "0xold"},
	}))
	ln := &fakeLightning{}
	chainGW := &fakeChain{txHash: "0xnew"}
	m := New(Config{}, ln, chainGW, st, nil, nil, func() int64 { return 1700000000 }, nil)

	m.tick(context.Background())

	rec, _, err := st.GetInvoice("inv-done")
	require.NoError(t, err)
	assert.Equal(t, "0xold", rec.Credit.TxHash)
	assert.Equal(t, 0, chainGW.calls)
}

func TestMonitorRejectsInvalidCreditAddress(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-bad", store.InvoiceRecord{
		CreditAddress: "",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    1000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusPending},
	}))
	chainGW := &fakeChain{}
	validator := func(addr string) bool { return addr != "" }
	m := New(Config{}, &fakeLightning{}, chainGW, st, validator, nil, func() int64 { return 1700000000 }, nil)

	m.tick(context.Background())

	rec, _, err := st.GetInvoice("inv-bad")
	require.NoError(t, err)
	assert.Equal(t, store.CreditStatusFailed, rec.Credit.Status)
	assert.Equal(t, "invalid_address", rec.Credit.LastError)
	assert.Equal(t, 0, chainGW.calls)
}

func TestMonitorRetriesFailedCreditAfterDelay(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-retry", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    2000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusFailed, NextRetryAt: 1700000100},
	}))
	chainGW := &fakeChain{txHash: "0xretried"}

	// before the retry deadline: no attempt.
	mEarly := New(Config{}, &fakeLightning{}, chainGW, st, nil, nil, func() int64 { return 1700000050 }, nil)
	mEarly.tick(context.Background())
	assert.Equal(t, 0, chainGW.calls)

	// after the retry deadline: retried.
	mLater := New(Config{}, &fakeLightning{}, chainGW, st, nil, nil, func() int64 { return 1700000200 }, nil)
	mLater.tick(context.Background())
	assert.Equal(t, 1, chainGW.calls)

	rec, _, _ := st.GetInvoice("inv-retry")
	assert.Equal(t, store.CreditStatusCredited, rec.Credit.Status)
}

type fakePublisher struct {
	published [][]byte
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, stream string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, data)
	return "0-1", nil
}

func TestMonitorPublishesTransferBeforeSubmitting(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-pub", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    3000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusPending},
	}))
	chainGW := &fakeChain{txHash: "0xpub1"}
	pub := &fakePublisher{}
	m := New(Config{}, &fakeLightning{}, chainGW, st, nil, pub, func() int64 { return 1700000000 }, nil)

	m.tick(context.Background())

	require.Len(t, pub.published, 1)
	msg, err := FromJSONCreditTransfer(pub.published[0])
	require.NoError(t, err)
	assert.Equal(t, "inv-pub", msg.InvoiceLabel)
	assert.Equal(t, int64(3000), msg.AmountSats)
}

func TestRetryCreditRecoversProcessingInvoice(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-crash", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    4000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusProcessing, LastAttemptAt: 1700000000},
	}))
	chainGW := &fakeChain{txHash: "0xrecovered"}
	m := New(Config{}, &fakeLightning{}, chainGW, st, nil, nil, func() int64 { return 1700000050 }, nil)

	msg := &CreditTransferMessage{InvoiceLabel: "inv-crash", CreditAddress: "0xmerchant", AmountSats: 4000}
	data, err := msg.ToJSON()
	require.NoError(t, err)
	require.NoError(t, m.RetryCredit(context.Background(), data))

	rec, _, _ := st.GetInvoice("inv-crash")
	assert.Equal(t, store.CreditStatusCredited, rec.Credit.Status)
	assert.Equal(t, "0xrecovered", rec.Credit.TxHash)
	assert.Equal(t, 1, chainGW.calls)
}

func TestRetryCreditSkipsAlreadyCredited(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-done2", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    4000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusCredited, TxHash: "0xalready"},
	}))
	chainGW := &fakeChain{txHash: "0xshouldnothappen"}
	m := New(Config{}, &fakeLightning{}, chainGW, st, nil, nil, func() int64 { return 1700000050 }, nil)

	msg := &CreditTransferMessage{InvoiceLabel: "inv-done2", CreditAddress: "0xmerchant", AmountSats: 4000}
	data, err := msg.ToJSON()
	require.NoError(t, err)
	require.NoError(t, m.RetryCredit(context.Background(), data))

	assert.Equal(t, 0, chainGW.calls)
}

func TestMonitorReapsStaleProcessing(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutInvoice("inv-stuck", store.InvoiceRecord{
		CreditAddress: "0xmerchant",
		Status:        store.InvoiceStatusPaid,
		AmountSats:    1000,
		Credit:        store.InvoiceCreditState{Status: store.CreditStatusProcessing, LastAttemptAt: 1700000000},
	}))
	m := New(Config{StaleAfter: 300 * time.Second}, &fakeLightning{}, &fakeChain{}, st, nil, nil, func() int64 { return 1700000400 }, nil)

	m.tick(context.Background())

	rec, _, _ := st.GetInvoice("inv-stuck")
	assert.Equal(t, store.CreditStatusPending, rec.Credit.Status)
	assert.Equal(t, "stale_processing", rec.Credit.LastError)
}
