// Package creditmonitor implements CreditMonitor: the loop that reconciles
// issued invoices against the Lightning node and triggers on-chain credit
// transfers to a merchant's address once an invoice is paid.
package creditmonitor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/protocolbridge/ln-escrow-bridge/internal/chain"
	"github.com/protocolbridge/ln-escrow-bridge/internal/lightning"
	"github.com/protocolbridge/ln-escrow-bridge/internal/store"
)

// LightningClient is the subset of lightning.Client the monitor consumes.
type LightningClient interface {
	ListInvoicesByLabel(ctx context.Context, label string) ([]lightning.Invoice, error)
}

// ChainGateway is the subset of chain.Gateway the monitor consumes.
type ChainGateway interface {
	SubmitTransfer(ctx context.Context, recipient string, amountSats int64) (string, *big.Int, error)
}

// AddressValidator reports whether an on-chain address is well-formed. A
// real deployment wires this to the same validation the chain gateway uses
// for recipient addresses.
type AddressValidator func(address string) bool

// Publisher is the subset of pkg/queue.StreamQueue the monitor uses to
// durably record an in-flight credit transfer before it calls the chain
// gateway, so a crashed worker's transfer is recoverable via RetryCredit
// instead of stuck behind ReapStaleProcessing's plain timeout.
type Publisher interface {
	Publish(ctx context.Context, stream string, data []byte) (string, error)
}

// CreditTransferStream is the Redis stream name the monitor publishes to.
const CreditTransferStream = "credit_transfer"

// Config configures the monitor's timing.
type Config struct {
	Interval      time.Duration // default 15s
	RetryDelay    time.Duration // default 60s
	StaleAfter    time.Duration // default 5min
	TokenDecimals int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 60 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.TokenDecimals == 0 {
		c.TokenDecimals = 8
	}
	return c
}

// Monitor is the off-chain reconciliation loop. Each tick
// reconciles every unpaid invoice against the Lightning node, then triggers
// a token transfer for every invoice newly eligible for credit, then reaps
// any processing entry that has gone stale.
type Monitor struct {
	cfg       Config
	ln        LightningClient
	chainGW   ChainGateway
	store     *store.Store
	validator AddressValidator
	pub       Publisher
	log       *zap.Logger
	now       func() int64
}

// New builds a Monitor. pub may be nil, in which case credit transfers are
// not durably recorded to the Streams queue before being submitted on-chain
// — recovery then relies solely on ReapStaleProcessing.
func New(cfg Config, ln LightningClient, chainGW ChainGateway, st *store.Store, validator AddressValidator, pub Publisher, now func() int64, log *zap.Logger) *Monitor {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	if validator == nil {
		validator = func(string) bool { return true }
	}
	return &Monitor{cfg: cfg.withDefaults(), ln: ln, chainGW: chainGW, store: st, validator: validator, pub: pub, log: log, now: now}
}

// Run blocks, ticking every cfg.Interval until ctx is cancelled. A crashed
// or cancelled monitor leaves every invoice in a resumable state: "pending"
// or "processing" entries are picked back up (or reaped if stale) on the
// next start.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("credit monitor stopping")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	labels, err := m.store.ListInvoiceLabels()
	if err != nil {
		m.log.Error("credit monitor: list invoices", zap.Error(err))
		return
	}
	for _, label := range labels {
		m.processInvoice(ctx, label)
	}

	reaped, err := m.store.ReapStaleProcessing(m.now(), int64(m.cfg.StaleAfter.Seconds()))
	if err != nil {
		m.log.Error("credit monitor: reap stale processing", zap.Error(err))
		return
	}
	if reaped > 0 {
		m.log.Info("reaped stale processing invoices", zap.Int("count", reaped))
	}
}

// processInvoice runs the per-invoice per-tick steps 1 and 2.
func (m *Monitor) processInvoice(ctx context.Context, label string) {
	rec, ok, err := m.store.GetInvoice(label)
	if !ok || err != nil {
		return
	}

	// Step 1: reconcile with the node if not yet paid locally.
	if rec.Status != store.InvoiceStatusPaid {
		if err := m.reconcile(ctx, label, &rec); err != nil {
			m.log.Warn("credit monitor: reconcile failed", zap.String("label", label), zap.Error(err))
			rec.Monitor.LastError = err.Error()
			_ = m.store.PutInvoice(label, rec)
			return
		}
		_ = m.store.PutInvoice(label, rec)
	}

	// Step 2: trigger a credit transfer if now eligible.
	if rec.Status != store.InvoiceStatusPaid {
		return
	}
	if !m.eligibleForCredit(rec) {
		return
	}
	m.creditInvoice(ctx, label, rec)
}

func (m *Monitor) eligibleForCredit(rec store.InvoiceRecord) bool {
	switch rec.Credit.Status {
	case store.CreditStatusCredited:
		return false
	case store.CreditStatusProcessing:
		return false // the tick retries it only after ReapStaleProcessing resets it; RetryCredit bypasses this gate
	case store.CreditStatusFailed:
		return rec.Credit.NextRetryAt != 0 && m.now() >= rec.Credit.NextRetryAt
	default:
		return true
	}
}

func (m *Monitor) reconcile(ctx context.Context, label string, rec *store.InvoiceRecord) error {
	invoices, err := m.ln.ListInvoicesByLabel(ctx, label)
	if err != nil {
		return fmt.Errorf("creditmonitor: listinvoices: %w", err)
	}
	if len(invoices) == 0 {
		return nil
	}
	inv := invoices[0]
	rec.Monitor.LastCheckedAt = m.now()
	rec.Monitor.CLNStatus = inv.Status
	rec.Monitor.LastError = ""
	rec.Status = inv.Status
	rec.PaymentHash = strings.ToLower(inv.PaymentHash)
	if inv.PaidAt != 0 {
		rec.PaidAt = inv.PaidAt
	}
	msat := inv.AmountReceivedMsat
	if msat == 0 {
		msat = inv.PaidMsat
	}
	if msat == 0 {
		msat = inv.AmountMsat
	}
	if msat > 0 {
		if sats, err := lightning.MsatToSats(msat); err == nil {
			rec.AmountSats = sats
		}
	}
	return nil
}

func (m *Monitor) creditInvoice(ctx context.Context, label string, rec store.InvoiceRecord) {
	if !m.validator(rec.CreditAddress) {
		rec.Credit.Status = store.CreditStatusFailed
		rec.Credit.LastError = "invalid_address"
		rec.Credit.NextRetryAt = m.now() + int64(m.cfg.RetryDelay.Seconds())
		_ = m.store.PutInvoice(label, rec)
		return
	}
	if rec.AmountSats <= 0 {
		rec.Credit.Status = store.CreditStatusFailed
		rec.Credit.LastError = "missing_amount"
		rec.Credit.NextRetryAt = m.now() + int64(m.cfg.RetryDelay.Seconds())
		_ = m.store.PutInvoice(label, rec)
		return
	}

	rec.Credit.Status = store.CreditStatusProcessing
	rec.Credit.Attempts++
	rec.Credit.NextRetryAt = 0
	rec.Credit.LastAttemptAt = m.now()
	_ = m.store.PutInvoice(label, rec)
	m.publishTransfer(ctx, label, rec)

	txHash, units, err := m.chainGW.SubmitTransfer(ctx, rec.CreditAddress, rec.AmountSats)
	if err != nil {
		rec.Credit.Status = store.CreditStatusFailed
		rec.Credit.LastError = err.Error()
		rec.Credit.NextRetryAt = m.now() + int64(m.cfg.RetryDelay.Seconds())
		_ = m.store.PutInvoice(label, rec)
		return
	}

	rec.Credit.Status = store.CreditStatusCredited
	rec.Credit.TxHash = txHash
	if units != nil {
		rec.Credit.AmountUnits = units.String()
	}
	rec.Credit.CreditedAt = m.now()
	_ = m.store.PutInvoice(label, rec)
}

// publishTransfer records the in-flight credit transfer on the Streams
// queue. Best effort: a publish failure is logged, not fatal, since
// ReapStaleProcessing still recovers a crash even without it.
func (m *Monitor) publishTransfer(ctx context.Context, label string, rec store.InvoiceRecord) {
	if m.pub == nil {
		return
	}
	msg := CreditTransferMessage{InvoiceLabel: label, CreditAddress: rec.CreditAddress, AmountSats: rec.AmountSats}
	data, err := msg.ToJSON()
	if err != nil {
		m.log.Warn("credit monitor: encode transfer message", zap.String("label", label), zap.Error(err))
		return
	}
	if _, err := m.pub.Publish(ctx, CreditTransferStream, data); err != nil {
		m.log.Warn("credit monitor: publish transfer message", zap.String("label", label), zap.Error(err))
	}
}

// RetryCredit is the Streams consumer's message handler. It re-examines the
// invoice named in a CreditTransferMessage and, if it is still stuck in
// "processing" (the worker that published it crashed before the on-chain
// submit completed) or has since failed, drives another credit attempt. An
// invoice that has already reached "credited" is a no-op, which makes this
// handler safe to call again for a message XAutoClaim reclaims after the
// original attempt actually succeeded.
func (m *Monitor) RetryCredit(ctx context.Context, data []byte) error {
	msg, err := FromJSONCreditTransfer(data)
	if err != nil {
		return fmt.Errorf("creditmonitor: retry credit: %w", err)
	}
	rec, ok, err := m.store.GetInvoice(msg.InvoiceLabel)
	if err != nil {
		return fmt.Errorf("creditmonitor: retry credit: load invoice: %w", err)
	}
	if !ok || rec.Credit.Status == store.CreditStatusCredited {
		return nil
	}
	m.creditInvoice(ctx, msg.InvoiceLabel, rec)
	return nil
}

// chainGatewayAdapter adapts *chain.Gateway to the monitor's narrower
// ChainGateway interface, since Gateway.SubmitTransfer's concrete return
// type lives in package chain.
type chainGatewayAdapter struct {
	gw *chain.Gateway
}

func (a chainGatewayAdapter) SubmitTransfer(ctx context.Context, recipient string, amountSats int64) (string, *big.Int, error) {
	return a.gw.SubmitTransfer(ctx, recipient, amountSats)
}

// WrapGateway adapts a concrete *chain.Gateway for use as this package's
// ChainGateway interface.
func WrapGateway(gw *chain.Gateway) ChainGateway {
	return chainGatewayAdapter{gw: gw}
}
