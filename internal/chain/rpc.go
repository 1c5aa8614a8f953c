// Package chain implements ChainGateway: the off-chain typed interface to
// the escrow/token contract. It submits claims and transfers over a generic
// JSON-RPC-over-HTTP transport, in the spirit of glightning's jrpc2 client —
// a named Method paired with a blocking Request(method, &response) call —
// adapted from stdio framing to HTTP POST since the collaborator here is a
// chain node's JSON-RPC endpoint, not a Lightning daemon over a pipe.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Method is a single JSON-RPC call: its Name is the RPC method, and its own
// fields (via its JSON tags) are marshaled as the params object.
type Method interface {
	Name() string
}

// RPCError mirrors a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is a minimal JSON-RPC-over-HTTP client for the chain node.
type Client struct {
	url        string
	httpClient *http.Client
	counter    int64
}

// NewClient builds a Client against the given JSON-RPC endpoint.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Request issues m as a JSON-RPC call and unmarshals the result into resp.
// resp may be nil if the caller doesn't need the result payload.
func (c *Client) Request(ctx context.Context, m Method, resp interface{}) error {
	id := atomic.AddInt64(&c.counter, 1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  m.Name(),
		Params:  m,
	})
	if err != nil {
		return fmt.Errorf("chain: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: transport: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("chain: read response: %w", err)
	}
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("chain: http status %d: %s", httpResp.StatusCode, string(raw))
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fmt.Errorf("chain: decode response: %w", err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if resp == nil || len(rr.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rr.Result, resp); err != nil {
		return fmt.Errorf("chain: decode result: %w", err)
	}
	return nil
}
