package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every call with result for the expected method.
func rpcServer(t *testing.T, method string, result interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != method {
			t.Errorf("method = %s, want %s", req.Method, method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	srv := rpcServer(t, "getTransaction", map[string]interface{}{
		"slot":      int64(250000001),
		"blockTime": int64(1700000000),
		"meta": map[string]interface{}{
			"err":         nil,
			"logMessages": []string{"Program log: Instruction: InitializeMint2", "Program log: Instruction: SetAuthority"},
		},
		"transaction": map[string]interface{}{
			"message": map[string]interface{}{
				"accountKeys": []string{"creator", TokenProgramID},
			},
		},
	})

	tx, err := NewHTTPClient(srv.URL).GetTransaction(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected a transaction")
	}
	if tx.Slot != 250000001 || tx.BlockTime != 1700000000 || tx.Signature != "sig-1" {
		t.Errorf("unexpected header fields: %+v", tx)
	}
	if len(tx.Logs()) != 2 || len(tx.AccountKeys()) != 2 {
		t.Errorf("logs=%v keys=%v", tx.Logs(), tx.AccountKeys())
	}
}

func TestHTTPClient_NotFound(t *testing.T) {
	t.Run("transaction", func(t *testing.T) {
		srv := rpcServer(t, "getTransaction", nil)
		tx, err := NewHTTPClient(srv.URL).GetTransaction(context.Background(), "missing")
		if err != nil || tx != nil {
			t.Errorf("expected nil, nil; got %+v, %v", tx, err)
		}
	})
	t.Run("account", func(t *testing.T) {
		srv := rpcServer(t, "getAccountInfo", map[string]interface{}{"value": nil})
		info, err := NewHTTPClient(srv.URL).GetAccountInfo(context.Background(), "missing")
		if err != nil || info != nil {
			t.Errorf("expected nil, nil; got %+v, %v", info, err)
		}
	})
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	bt := int64(1700000000)
	srv := rpcServer(t, "getSignaturesForAddress", []map[string]interface{}{
		{"signature": "sig-new", "slot": int64(101), "blockTime": bt, "err": nil},
		{"signature": "sig-old", "slot": int64(100), "blockTime": bt, "err": nil},
	})

	sigs, err := NewHTTPClient(srv.URL).GetSignaturesForAddress(context.Background(), "mint", &SignaturesOpts{Limit: 4})
	if err != nil {
		t.Fatalf("GetSignaturesForAddress: %v", err)
	}
	if len(sigs) != 2 || sigs[0].Signature != "sig-new" || sigs[1].Slot != 100 {
		t.Errorf("unexpected signatures: %+v", sigs)
	}
}

func TestHTTPClient_GetBlock(t *testing.T) {
	srv := rpcServer(t, "getBlock", map[string]interface{}{
		"blockTime": int64(1700000000),
		"transactions": []map[string]interface{}{{
			"transaction": map[string]interface{}{
				"signatures": []string{"sig-1"},
				"message":    map[string]interface{}{"accountKeys": []string{RaydiumAMMV4ProgramID}},
			},
			"meta": map[string]interface{}{"err": nil, "logMessages": []string{"Program log: initialize2"}},
		}},
	})

	block, err := NewHTTPClient(srv.URL).GetBlock(context.Background(), 12345)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if block.Slot != 12345 || block.BlockTime == nil || *block.BlockTime != 1700000000 {
		t.Errorf("unexpected block header: %+v", block)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(block.Transactions))
	}
	tx := block.Transactions[0]
	if tx.Signature != "sig-1" || tx.Slot != 12345 || tx.BlockTime != 1700000000 {
		t.Errorf("transaction should inherit block slot and time: %+v", tx)
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	srv := rpcServer(t, "getAccountInfo", map[string]interface{}{
		"value": map[string]interface{}{
			"lamports":   uint64(1461600),
			"owner":      TokenProgramID,
			"data":       []string{"AAAA", "base64"},
			"executable": false,
			"rentEpoch":  uint64(361),
		},
	})

	info, err := NewHTTPClient(srv.URL).GetAccountInfo(context.Background(), "mint")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info.Lamports != 1461600 || info.Owner != TokenProgramID || info.Data != "AAAA" {
		t.Errorf("unexpected account: %+v", info)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		status   int
		wantErr  error
	}{
		{"recovers after 429", 2, http.StatusTooManyRequests, nil},
		{"recovers after 503", 1, http.StatusServiceUnavailable, nil},
		{"gives up on 429", 10, http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				var req rpcRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": int64(999)})
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
			slot, err := client.GetSlot(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if attempts.Load() != 4 {
					t.Errorf("attempts = %d, want 4", attempts.Load())
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSlot: %v", err)
			}
			if slot != 999 || attempts.Load() != tt.failures+1 {
				t.Errorf("slot=%d attempts=%d", slot, attempts.Load())
			}
		})
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32009, "message": "Slot was skipped"},
		})
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond)).GetBlock(context.Background(), 7)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T %v", err, err)
	}
	if rpcErr.Code != -32009 {
		t.Errorf("code = %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("rpc errors must not be retried, attempts = %d", attempts.Load())
	}
}

func TestHTTPClient_HeadersAndCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		time.Sleep(50 * time.Millisecond)
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithHeader("x-api-key", "secret"))
	if _, err := client.GetSlot(context.Background()); err != nil {
		t.Fatalf("GetSlot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.GetSlot(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
