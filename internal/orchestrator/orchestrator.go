// Package orchestrator implements PaymentOrchestrator: the off-chain
// coordinator that observes a locked escrow position, pays the matching
// Lightning invoice, extracts the preimage, and submits the on-chain claim —
// enforcing at-most-once execution and amount/hash equality across the
// on-chain lock, BOLT11, and Lightning pay-receipt.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/protocolbridge/ln-escrow-bridge/internal/bolt11"
	"github.com/protocolbridge/ln-escrow-bridge/internal/chain"
	"github.com/protocolbridge/ln-escrow-bridge/internal/escrow"
	"github.com/protocolbridge/ln-escrow-bridge/internal/lightning"
	"github.com/protocolbridge/ln-escrow-bridge/internal/store"
)

// ChainGateway is the subset of chain.Gateway the orchestrator consumes —
// narrowed to an interface so unit tests can substitute a fake and run
// without network I/O.
type ChainGateway interface {
	LoadEscrow(ctx context.Context, hash escrow.Word256) (chain.LockedPosition, error)
	SubmitClaim(ctx context.Context, hash escrow.Word256, preimage []byte) (string, error)
}

// LightningClient is the subset of lightning.Client the orchestrator
// consumes.
type LightningClient interface {
	ListInvoicesByHash(ctx context.Context, paymentHash string) ([]lightning.Invoice, error)
	ListPaysByHash(ctx context.Context, paymentHash string) ([]lightning.Pay, error)
	Pay(ctx context.Context, params lightning.PayParams) (lightning.PayResult, error)
}

// DistributedLocker guards a payment hash across processes, the same
// cache.SetNX-backed per-key lock pattern used elsewhere in this codebase.
// A single-process deployment may pass a no-op locker; a multi-process
// deployment backs it with Redis.
type DistributedLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// Config configures the orchestrator's external behavior.
type Config struct {
	PayRetryForSeconds int
	MaxFeePercent      float64
	LockTTL            time.Duration
}

// Orchestrator is the single-process coordinator for this bridge.
// Its in-memory hash sets and the distributed lock together implement the
// at-most-once/no-concurrent-duplicate guarantee this bridge requires.
type Orchestrator struct {
	cfg    Config
	chain  ChainGateway
	ln     LightningClient
	store  *store.Store
	locker DistributedLocker
	sets   *hashSets
	log    *zap.Logger
	now    func() int64
}

// New builds an Orchestrator. now defaults to the wall clock if nil.
func New(cfg Config, chainGW ChainGateway, ln LightningClient, st *store.Store, locker DistributedLocker, now func() int64, log *zap.Logger) *Orchestrator {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Orchestrator{
		cfg:    cfg,
		chain:  chainGW,
		ln:     ln,
		store:  st,
		locker: locker,
		sets:   newHashSets(),
		log:    log,
		now:    now,
	}
}

// PayResult is the outcome of ProcessPaymentRequest.
type PayResult struct {
	Status string // claimed | skipped
	TxHash string
	Hash   string
}

const lockKeyPrefix = "orchestrator:payment:"

// ProcessPaymentRequest runs the nine-step claim algorithm.
func (o *Orchestrator) ProcessPaymentRequest(ctx context.Context, paymentHash string, bolt11Invoice string) (PayResult, error) {
	// Step 1: canonicalize.
	hash, err := canonicalizeHash(paymentHash)
	if err != nil {
		return PayResult{}, ErrInvalidPaymentHash
	}

	// Distributed cross-process lock, SetNX-backed per payment hash.
	lockKey := lockKeyPrefix + hash
	if o.locker != nil {
		acquired, err := o.locker.Acquire(ctx, lockKey, o.cfg.LockTTL)
		if err != nil {
			return PayResult{}, fmt.Errorf("orchestrator: acquire lock: %w", err)
		}
		if !acquired {
			return PayResult{}, ErrPaymentInflight
		}
		defer o.locker.Release(ctx, lockKey)
	}

	// Step 3: in-process deduplication gate, ahead of any chain/Lightning
	// read so a repeat after success never produces traffic.
	alreadyClaimed, inflight := o.sets.tryBeginProcessing(hash)
	if alreadyClaimed {
		o.log.Info("already claimed, skipping", zap.String("hash", hash))
		return PayResult{Status: "skipped", Hash: hash}, nil
	}
	if inflight {
		return PayResult{}, ErrPaymentInflight
	}
	claimed := false
	defer func() { o.sets.finish(hash, claimed) }()

	hashWord, err := escrow.Word256FromHex(hash)
	if err != nil {
		return PayResult{}, fmt.Errorf("orchestrator: decode hash: %w", err)
	}

	// Step 2: load lock.
	locked, err := o.chain.LoadEscrow(ctx, hashWord)
	if err != nil {
		o.recordFailure(hash, "starknet", ErrLockedNotFound.Error())
		return PayResult{}, ErrLockedNotFound
	}

	rec := o.loadOrInitRecord(hash, locked)
	rec.AppendHistory("payment_requested", o.now(), map[string]interface{}{
		"user":       locked.User,
		"amount_sats": locked.Amount.String(),
	})
	rec.Status = store.PaymentStatusProcessing
	_ = o.store.PutPayment(rec)

	// Step 4: invoice reconciliation.
	invoiceAmountSats, targetBolt11, alreadyPaid, invoicePreimage, err := o.reconcileInvoice(ctx, hash, bolt11Invoice)
	if err != nil {
		o.failRecord(&rec, err)
		return PayResult{}, err
	}

	// Step 5: amount equality.
	if invoiceAmountSats != locked.Amount.AsBigInt().Int64() {
		o.failRecord(&rec, ErrAmountMismatch)
		return PayResult{}, ErrAmountMismatch
	}

	// Step 6: pay Lightning.
	preimage := invoicePreimage
	if !alreadyPaid {
		payResult, err := o.ln.Pay(ctx, lightning.PayParams{
			Bolt11:        targetBolt11,
			RetryFor:      o.cfg.PayRetryForSeconds,
			MaxFeePercent: o.cfg.MaxFeePercent,
		})
		if err != nil {
			o.failRecord(&rec, fmt.Errorf("%w: %v", ErrMissingPreimage, err))
			return PayResult{}, err
		}
		if strings.ToLower(payResult.PaymentHash) != hash {
			o.failRecord(&rec, ErrLightningPaymentHashMismatch)
			return PayResult{}, ErrLightningPaymentHashMismatch
		}
		if payResult.AmountMsat != 0 && payResult.AmountMsat != locked.Amount.AsBigInt().Int64()*1000 {
			o.failRecord(&rec, ErrLightningPaymentAmountMismatch)
			return PayResult{}, ErrLightningPaymentAmountMismatch
		}
		preimage = payResult.PaymentPreimage
		rec.Lightning.Status = "paid"
		rec.Lightning.AmountSats = invoiceAmountSats
		rec.Lightning.PaymentPreimage = preimage
	}

	// Step 7: preimage acquisition.
	if preimage == "" {
		pays, err := o.ln.ListPaysByHash(ctx, hash)
		if err == nil {
			if p, ok := lightning.HasCompletedPreimage(pays); ok {
				preimage = p
			}
		}
		if preimage == "" {
			o.failRecord(&rec, ErrMissingPreimage)
			return PayResult{}, ErrMissingPreimage
		}
	}

	// Step 8: claim on chain.
	rec.AppendHistory("lightning_succeeded", o.now(), map[string]interface{}{"preimage": preimage})
	rec.Status = store.PaymentStatusAwaitingClaim
	_ = o.store.PutPayment(rec)

	preimageBytes, err := hexDecode(preimage)
	if err != nil {
		o.failRecord(&rec, fmt.Errorf("orchestrator: decode preimage: %w", err))
		return PayResult{}, err
	}

	txHash, err := o.chain.SubmitClaim(ctx, hashWord, preimageBytes)
	if err != nil {
		rec.Status = store.PaymentStatusClaimFailed
		rec.MarkErrorOnce("starknet", err.Error())
		rec.AppendHistory("claim_failed", o.now(), map[string]interface{}{"error": err.Error()})
		_ = o.store.PutPayment(rec)
		return PayResult{}, fmt.Errorf("orchestrator: submit_claim: %w", err)
	}

	rec.Status = store.PaymentStatusClaimed
	rec.TransactionHash = txHash
	rec.Starknet.Status = "claimed"
	rec.Starknet.TxHash = txHash
	rec.AppendHistory("claim_confirmed", o.now(), map[string]interface{}{"tx_hash": txHash})
	_ = o.store.PutPayment(rec)
	claimed = true

	return PayResult{Status: "claimed", TxHash: txHash, Hash: hash}, nil
}

func (o *Orchestrator) loadOrInitRecord(hash string, locked chain.LockedPosition) store.PaymentRecord {
	if rec, ok, err := o.store.GetPayment(hash); err == nil && ok {
		return rec
	}
	now := o.now()
	return store.PaymentRecord{
		PaymentHash:         "0x" + hash,
		PaymentHashNoPrefix: hash,
		Status:              store.PaymentStatusReceived,
		User:                locked.User,
		AmountSats:          locked.Amount.AsBigInt().Int64(),
		ExpiresAt:           locked.ExpiresAt,
		LockedAt:            locked.LockedAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// reconcileInvoice implements step 4 of ProcessPaymentRequest.
func (o *Orchestrator) reconcileInvoice(ctx context.Context, hash, bolt11Invoice string) (amountSats int64, targetBolt11 string, alreadyPaid bool, preimage string, err error) {
	invoices, err := o.ln.ListInvoicesByHash(ctx, hash)
	if err == nil && len(invoices) > 0 {
		inv := invoices[0]
		msat := inv.AmountReceivedMsat
		if msat == 0 {
			msat = inv.PaidMsat
		}
		if msat == 0 {
			msat = inv.AmountMsat
		}
		if msat == 0 {
			return 0, "", false, "", ErrInvoiceMissingAmount
		}
		sats, convErr := lightning.MsatToSats(msat)
		if convErr != nil {
			return 0, "", false, "", ErrFractionalSats
		}
		return sats, inv.Bolt11, inv.Status == "paid", inv.PaymentPreimage, nil
	}

	if bolt11Invoice != "" {
		decoded, decodeErr := bolt11.Decode(bolt11Invoice)
		if decodeErr != nil {
			return 0, "", false, "", fmt.Errorf("orchestrator: decode bolt11: %w", decodeErr)
		}
		if decoded.PaymentHash != hash {
			return 0, "", false, "", ErrHashMismatch
		}
		return decoded.AmountSats, bolt11Invoice, false, "", nil
	}

	return 0, "", false, "", ErrInvoiceNotFound
}

func (o *Orchestrator) failRecord(rec *store.PaymentRecord, err error) {
	rec.Status = store.PaymentStatusLightningFail
	rec.MarkErrorOnce("lightning", err.Error())
	rec.AppendHistory("error", o.now(), map[string]interface{}{"error": err.Error()})
	_ = o.store.PutPayment(*rec)
}

func (o *Orchestrator) recordFailure(hash, sub, message string) {
	rec, ok, _ := o.store.GetPayment(hash)
	if !ok {
		rec = store.PaymentRecord{PaymentHash: "0x" + hash, PaymentHashNoPrefix: hash, CreatedAt: o.now()}
	}
	rec.Status = store.PaymentStatusError
	rec.MarkErrorOnce(sub, message)
	rec.AppendHistory("error", o.now(), map[string]interface{}{"error": message})
	_ = o.store.PutPayment(rec)
}
