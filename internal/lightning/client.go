// Package lightning provides a typed client for the Lightning node's REST
// interface consumed by PaymentOrchestrator and CreditMonitor: listing
// invoices and pays, paying a BOLT11 invoice, and normalizing the node's
// dynamically-shaped msat/sat fields. The node itself is a CLN-style daemon
// exposing listinvoices/listpays/pay/invoice over HTTP+bearer-token, rather
// than LND's gRPC surface.
package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Invoice is the normalized shape of a single entry from listinvoices.
type Invoice struct {
	Label              string
	Status             string // unpaid | paid | expired
	AmountMsat         int64
	AmountReceivedMsat int64
	PaidMsat           int64
	PaymentHash        string // lowercased; a 0x prefix is not stripped
	PaymentPreimage    string
	PaidAt             int64
	Bolt11             string
}

// Pay is the normalized shape of a single entry from listpays.
type Pay struct {
	Status          string // complete|completed|paid|succeeded|failed|...
	PaymentPreimage string
}

// PayResult is the normalized shape of the pay RPC's response.
type PayResult struct {
	PaymentHash     string
	PaymentPreimage string
	AmountMsat      int64
	AmountSentMsat  int64
	Status          string
	CreatedAt       int64
}

// InvoiceIssued is the normalized shape of the invoice RPC's response, used
// by the issuance collaborator outside this bridge's scope but kept here
// since it's the same RPC surface.
type InvoiceIssued struct {
	Bolt11    string
	ExpiresAt int64
}

// completePayStatuses are the listpays statuses that indicate a preimage is
// available.
var completePayStatuses = map[string]bool{
	"complete":  true,
	"completed": true,
	"paid":      true,
	"succeeded": true,
}

// Config configures a Client against a CLN-style REST endpoint.
type Config struct {
	RESTURL        string
	AuthTokenPath  string
	RequestTimeout time.Duration
}

// Client is the REST-backed implementation of the Lightning node surface
// this bridge needs.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient builds a Client, reading the bearer token from cfg.AuthTokenPath
// if set (never inline in configuration — see internal/secrets for why).
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.RESTURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.AuthTokenPath != "" {
		token, err := os.ReadFile(cfg.AuthTokenPath)
		if err != nil {
			return nil, fmt.Errorf("lightning: read auth token: %w", err)
		}
		c.authToken = strings.TrimSpace(string(token))
	}
	return c, nil
}

func (c *Client) post(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("lightning: marshal %s params: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("lightning: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lightning: %s transport: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lightning: read %s response: %w", method, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("lightning: %s http status %d: %s", method, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("lightning: decode %s response: %w", method, err)
	}
	return nil
}

type rawInvoice struct {
	Label              string      `json:"label"`
	Status             string      `json:"status"`
	AmountMsat         interface{} `json:"amount_msat"`
	AmountReceivedMsat interface{} `json:"amount_received_msat"`
	PaidMsat           interface{} `json:"paid_msat"`
	PaymentHash        string      `json:"payment_hash"`
	PaymentPreimage    string      `json:"payment_preimage"`
	PaidAt             int64       `json:"paid_at"`
	Bolt11             string      `json:"bolt11"`
}

func (r rawInvoice) normalize() (Invoice, error) {
	inv := Invoice{
		Label:           r.Label,
		Status:          r.Status,
		PaymentHash:     strings.ToLower(r.PaymentHash),
		PaymentPreimage: r.PaymentPreimage,
		PaidAt:          r.PaidAt,
		Bolt11:          r.Bolt11,
	}
	if r.AmountMsat != nil {
		msat, err := ParseMsat(r.AmountMsat)
		if err != nil {
			return Invoice{}, fmt.Errorf("lightning: invoice %s: %w", r.Label, err)
		}
		inv.AmountMsat = msat
	}
	if r.AmountReceivedMsat != nil {
		msat, err := ParseMsat(r.AmountReceivedMsat)
		if err != nil {
			return Invoice{}, fmt.Errorf("lightning: invoice %s: %w", r.Label, err)
		}
		inv.AmountReceivedMsat = msat
	}
	if r.PaidMsat != nil {
		msat, err := ParseMsat(r.PaidMsat)
		if err != nil {
			return Invoice{}, fmt.Errorf("lightning: invoice %s: %w", r.Label, err)
		}
		inv.PaidMsat = msat
	}
	return inv, nil
}

// ListInvoicesByHash queries listinvoices filtered by payment_hash, per
// payment_hash.
func (c *Client) ListInvoicesByHash(ctx context.Context, paymentHash string) ([]Invoice, error) {
	var resp struct {
		Invoices []rawInvoice `json:"invoices"`
	}
	if err := c.post(ctx, "listinvoices", map[string]string{"payment_hash": paymentHash}, &resp); err != nil {
		return nil, err
	}
	return normalizeInvoices(resp.Invoices)
}

// ListInvoicesByLabel queries listinvoices filtered by label.
func (c *Client) ListInvoicesByLabel(ctx context.Context, label string) ([]Invoice, error) {
	var resp struct {
		Invoices []rawInvoice `json:"invoices"`
	}
	if err := c.post(ctx, "listinvoices", map[string]string{"label": label}, &resp); err != nil {
		return nil, err
	}
	return normalizeInvoices(resp.Invoices)
}

func normalizeInvoices(raw []rawInvoice) ([]Invoice, error) {
	out := make([]Invoice, 0, len(raw))
	for _, r := range raw {
		inv, err := r.normalize()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// ListPaysByHash queries listpays filtered by payment_hash.
func (c *Client) ListPaysByHash(ctx context.Context, paymentHash string) ([]Pay, error) {
	var resp struct {
		Pays []struct {
			Status          string `json:"status"`
			PaymentPreimage string `json:"payment_preimage"`
		} `json:"pays"`
	}
	if err := c.post(ctx, "listpays", map[string]string{"payment_hash": paymentHash}, &resp); err != nil {
		return nil, err
	}
	out := make([]Pay, 0, len(resp.Pays))
	for _, p := range resp.Pays {
		out = append(out, Pay{Status: p.Status, PaymentPreimage: p.PaymentPreimage})
	}
	return out, nil
}

// HasCompletedPreimage reports whether pays contains a completed payment
// and returns its preimage.
func HasCompletedPreimage(pays []Pay) (string, bool) {
	for _, p := range pays {
		if completePayStatuses[strings.ToLower(p.Status)] && p.PaymentPreimage != "" {
			return p.PaymentPreimage, true
		}
	}
	return "", false
}

// PayParams are the arguments to the pay RPC.
type PayParams struct {
	Bolt11        string
	RetryFor      int
	MaxFeePercent float64
}

// Pay requests the node pay a BOLT11 invoice.
func (c *Client) Pay(ctx context.Context, params PayParams) (PayResult, error) {
	body := map[string]interface{}{
		"bolt11":    params.Bolt11,
		"retry_for": params.RetryFor,
	}
	if params.MaxFeePercent > 0 {
		body["maxfeepercent"] = params.MaxFeePercent
	}
	var resp struct {
		PaymentHash     string      `json:"payment_hash"`
		PaymentPreimage string      `json:"payment_preimage"`
		AmountMsat      interface{} `json:"amount_msat"`
		AmountSentMsat  interface{} `json:"amount_sent_msat"`
		Status          string      `json:"status"`
		CreatedAt       int64       `json:"created_at"`
	}
	if err := c.post(ctx, "pay", body, &resp); err != nil {
		return PayResult{}, err
	}
	result := PayResult{
		PaymentHash:     strings.ToLower(resp.PaymentHash),
		PaymentPreimage: resp.PaymentPreimage,
		Status:          resp.Status,
		CreatedAt:       resp.CreatedAt,
	}
	if resp.AmountMsat != nil {
		msat, err := ParseMsat(resp.AmountMsat)
		if err != nil {
			return PayResult{}, fmt.Errorf("lightning: pay response: %w", err)
		}
		result.AmountMsat = msat
	}
	if resp.AmountSentMsat != nil {
		msat, err := ParseMsat(resp.AmountSentMsat)
		if err != nil {
			return PayResult{}, fmt.Errorf("lightning: pay response: %w", err)
		}
		result.AmountSentMsat = msat
	}
	return result, nil
}

// InvoiceParams are the arguments to the invoice RPC. This is
// consumed by the issuance collaborator (out of scope for this bridge) but
// the RPC shape lives here since it's the same node surface.
type InvoiceParams struct {
	AmountMsat    string
	Label         string
	Description   string
	ExpirySeconds int
	DeschashOnly  bool
}

// Invoice requests the node mint a new BOLT11 invoice.
func (c *Client) Invoice(ctx context.Context, params InvoiceParams) (InvoiceIssued, error) {
	body := map[string]interface{}{
		"amount_msat": params.AmountMsat,
		"label":       params.Label,
		"description": params.Description,
		"expiry":      params.ExpirySeconds,
	}
	if params.DeschashOnly {
		body["deschashonly"] = true
	}
	var resp struct {
		Bolt11    string `json:"bolt11"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := c.post(ctx, "invoice", body, &resp); err != nil {
		return InvoiceIssued{}, err
	}
	return InvoiceIssued{Bolt11: resp.Bolt11, ExpiresAt: resp.ExpiresAt}, nil
}
