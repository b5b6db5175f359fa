package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is a thin JSON-RPC client for the flash-loan node. Methods take the
// endpoint URL explicitly so the resilient executor can rotate endpoints
// between attempts while sharing one client.
type Client struct {
	http   *http.Client
	nextID atomic.Int64
}

// NewClient builds a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GetPool reads the pool snapshot by id.
func (c *Client) GetPool(ctx context.Context, endpoint, poolID string) (*PoolState, error) {
	var result PoolState
	params := []interface{}{map[string]string{"id": poolID}}
	if err := c.call(ctx, endpoint, "flash_getPool", params, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DryRun simulates the signed transaction without committing its effects.
func (c *Client) DryRun(ctx context.Context, endpoint, txBytes string) (*DryRunResult, error) {
	var result DryRunResult
	params := []interface{}{map[string]string{"txBytes": txBytes}}
	if err := c.call(ctx, endpoint, "flash_dryRun", params, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitTransaction commits the signed transaction. Transport failures after
// the request was sent surface as AmbiguousCommitError so the caller never
// double-submits a financial operation.
func (c *Client) SubmitTransaction(ctx context.Context, endpoint, txBytes string) (*ExecuteResult, error) {
	var result ExecuteResult
	params := []interface{}{map[string]string{"txBytes": txBytes}}
	if err := c.call(ctx, endpoint, "flash_execute", params, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats reads the aggregate counters across all pools.
func (c *Client) Stats(ctx context.Context, endpoint string) (*Stats, error) {
	var result Stats
	if err := c.call(ctx, endpoint, "flash_stats", []interface{}{}, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health issues the lightweight read used to probe endpoint reachability.
func (c *Client) Health(ctx context.Context, endpoint string) error {
	return c.call(ctx, endpoint, "flash_health", []interface{}{}, false, nil)
}

func (c *Client) call(ctx context.Context, endpoint, method string, params interface{}, write bool, out interface{}) error {
	id := c.nextID.Add(1)
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err, write)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("node rpc %s failed: status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return &TransientError{Err: statusErr}
		}
		return statusErr
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		if write {
			return &AmbiguousCommitError{Err: err}
		}
		return &TransientError{Err: err}
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// classifyTransport separates failures that provably happened before the
// ledger saw the request from those where the outcome is unknown. A timeout
// on a write means the request may have been delivered, so the error is
// ambiguous rather than retryable.
func classifyTransport(err error, write bool) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if write {
			return &AmbiguousCommitError{Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && write {
		return &AmbiguousCommitError{Err: err}
	}
	return &TransientError{Err: err}
}
