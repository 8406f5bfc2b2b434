package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/observability"
)

// Client defaults
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrRateLimited is returned once retries are exhausted on HTTP 429.
var ErrRateLimited = errors.New("rate limited")

// RPCError is a JSON-RPC error object. RPC errors are never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0 with retries and
// exponential backoff.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	headers     map[string]string
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	logger      zerolog.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = client }
}

// WithHeader adds a header to every request, e.g. a provider API key.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) { c.headers[key] = value }
}

func WithLogger(l *zerolog.Logger) ClientOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l.With().Str("component", "rpc").Logger()
		}
	}
}

// NewHTTPClient creates a new client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		headers:     make(map[string]string),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// retryable marks a transport-level failure worth another attempt.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// call performs method and decodes the result into result.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug().Str("method", method).Int("attempt", attempt).Err(lastErr).Msg("rpc retry")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		raw, err := c.do(ctx, body)
		var rt retryable
		if errors.As(err, &rt) {
			lastErr = rt.err
			continue
		}
		if err != nil {
			return err
		}

		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// do sends one request. Transport failures come back wrapped in retryable.
func (c *HTTPClient) do(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryable{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryable{fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryable{ErrRateLimited}
	case resp.StatusCode >= 500:
		return nil, retryable{fmt.Errorf("unexpected status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Raw wire shapes

type txMeta struct {
	Err         interface{} `json:"err"`
	LogMessages []string    `json:"logMessages"`
}

type txMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

type txBody struct {
	Signatures []string   `json:"signatures"`
	Message    *txMessage `json:"message"`
}

type txEnvelope struct {
	Slot        int64   `json:"slot"`
	BlockTime   *int64  `json:"blockTime"`
	Meta        *txMeta `json:"meta"`
	Transaction *txBody `json:"transaction"`
}

func (e *txEnvelope) toTransaction(slot int64, blockTime *int64, signature string) Transaction {
	tx := Transaction{Slot: slot, Signature: signature}
	if blockTime != nil {
		tx.BlockTime = *blockTime
	}
	if e.Meta != nil {
		tx.Meta = &TransactionMeta{Err: e.Meta.Err, LogMessages: e.Meta.LogMessages}
	}
	if e.Transaction != nil {
		if tx.Signature == "" && len(e.Transaction.Signatures) > 0 {
			tx.Signature = e.Transaction.Signatures[0]
		}
		if e.Transaction.Message != nil {
			tx.Message = &TransactionMessage{AccountKeys: e.Transaction.Message.AccountKeys}
		}
	}
	return tx
}

// GetTransaction retrieves a transaction by signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *txEnvelope
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	tx := result.toTransaction(result.Slot, result.BlockTime, signature)
	return &tx, nil
}

// GetBlock retrieves a block by slot with full transaction details.
func (c *HTTPClient) GetBlock(ctx context.Context, slot int64) (*Block, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"transactionDetails":             "full",
			"rewards":                        false,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result struct {
		BlockTime    *int64       `json:"blockTime"`
		Transactions []txEnvelope `json:"transactions"`
	}
	if err := c.call(ctx, "getBlock", params, &result); err != nil {
		return nil, err
	}

	block := &Block{Slot: slot, BlockTime: result.BlockTime}
	for i := range result.Transactions {
		block.Transactions = append(block.Transactions, result.Transactions[i].toTransaction(slot, result.BlockTime, ""))
	}
	return block, nil
}

// GetSignaturesForAddress retrieves signatures for address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	params := []interface{}{address}
	if opts != nil {
		cfg := make(map[string]interface{})
		if opts.Before != "" {
			cfg["before"] = opts.Before
		}
		if opts.Until != "" {
			cfg["until"] = opts.Until
		}
		if opts.Limit > 0 {
			cfg["limit"] = opts.Limit
		}
		if len(cfg) > 0 {
			params = append(params, cfg)
		}
	}

	var result []struct {
		Signature string      `json:"signature"`
		Slot      int64       `json:"slot"`
		BlockTime *int64      `json:"blockTime"`
		Err       interface{} `json:"err"`
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{Signature: r.Signature, Slot: r.Slot, BlockTime: r.BlockTime, Err: r.Err}
	}
	return sigs, nil
}

// GetAccountInfo retrieves a base64-encoded account.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{"encoding": "base64"},
	}

	var result struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"` // [payload, encoding]
			Executable bool     `json:"executable"`
			RentEpoch  uint64   `json:"rentEpoch"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
		RentEpoch:  result.Value.RentEpoch,
	}
	if len(result.Value.Data) > 0 {
		info.Data = result.Value.Data[0]
	}
	return info, nil
}

// GetSlot retrieves the current confirmed slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var slot int64
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

var _ RPCClient = (*HTTPClient)(nil)
