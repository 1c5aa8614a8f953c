package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "bridge.json"), nil)
	require.NoError(t, err)
	return s
}

func TestStorePutAndGetPayment(t *testing.T) {
	s := newTestStore(t)
	rec := PaymentRecord{
		PaymentHash:         "0xabc",
		PaymentHashNoPrefix: "abc",
		Status:              PaymentStatusProcessing,
		AmountSats:          5000,
	}
	require.NoError(t, s.PutPayment(rec))

	got, ok, err := s.GetPayment("abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5000), got.AmountSats)
	assert.Equal(t, PaymentStatusProcessing, got.Status)
}

func TestStoreSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.json")

	s1, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.PutPayment(PaymentRecord{PaymentHash: "0xdead", PaymentHashNoPrefix: "dead", Status: PaymentStatusClaimed}))

	s2, err := New(path, nil)
	require.NoError(t, err)
	got, ok, err := s2.GetPayment("dead")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PaymentStatusClaimed, got.Status)
}

func TestAppendHistoryIsAppendOnly(t *testing.T) {
	rec := PaymentRecord{PaymentHash: "0x1"}
	rec.AppendHistory("payment_requested", 1000, map[string]interface{}{"amount_sats": 5000})
	rec.AppendHistory("lightning_succeeded", 1500, nil)

	require.Len(t, rec.History, 2)
	assert.Equal(t, "payment_requested", rec.History[0].Event)
	assert.Equal(t, "lightning_succeeded", rec.History[1].Event)
	assert.Equal(t, int64(1500), rec.UpdatedAt)
}

func TestMarkErrorOnceDoesNotOverwrite(t *testing.T) {
	rec := PaymentRecord{}
	rec.MarkErrorOnce("lightning", "first")
	rec.MarkErrorOnce("lightning", "second")
	assert.Equal(t, "first", rec.Lightning.Failure)
}

func TestReapStaleProcessing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutInvoice("label-1", InvoiceRecord{
		Status: InvoiceStatusPaid,
		Credit: InvoiceCreditState{Status: CreditStatusProcessing, LastAttemptAt: 1000},
	}))

	reaped, err := s.ReapStaleProcessing(2000, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, _, err := s.GetInvoice("label-1")
	require.NoError(t, err)
	assert.Equal(t, CreditStatusPending, got.Credit.Status)
	assert.Equal(t, "stale_processing", got.Credit.LastError)
}

func TestReapStaleProcessingSkipsRecent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutInvoice("label-2", InvoiceRecord{
		Credit: InvoiceCreditState{Status: CreditStatusProcessing, LastAttemptAt: 1900},
	}))

	reaped, err := s.ReapStaleProcessing(2000, 500)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
}
