package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rpcTestServer(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *jsonRPCErrorObj)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int64           `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientGetPool(t *testing.T) {
	server := rpcTestServer(t, func(method string, params json.RawMessage) (interface{}, *jsonRPCErrorObj) {
		if method != "flash_getPool" {
			t.Fatalf("unexpected method %s", method)
		}
		return PoolState{ID: "pool-1", Balance: "1000000000", FeeRateBps: 50}, nil
	})
	defer server.Close()

	client := NewClient(time.Second)
	pool, err := client.GetPool(context.Background(), server.URL, "pool-1")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if pool.ID != "pool-1" || pool.Balance != "1000000000" {
		t.Fatalf("unexpected pool state: %+v", pool)
	}
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	server := rpcTestServer(t, func(method string, params json.RawMessage) (interface{}, *jsonRPCErrorObj) {
		return nil, &jsonRPCErrorObj{Code: -32000, Message: "pool not found"}
	})
	defer server.Close()

	client := NewClient(time.Second)
	_, err := client.GetPool(context.Background(), server.URL, "missing")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32000 || rpcErr.Message != "pool not found" {
		t.Fatalf("unexpected rpc error: %+v", rpcErr)
	}
	if IsTransient(err) {
		t.Fatal("ledger-reported errors must not be transient")
	}
}

func TestClientClassifiesConnectionRefusedAsTransient(t *testing.T) {
	client := NewClient(time.Second)
	// Port 1 is never listening locally.
	err := client.Health(context.Background(), "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected connection failure")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestClientClassifiesWriteTimeoutAsAmbiguous(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(50 * time.Millisecond)
	_, err := client.SubmitTransaction(context.Background(), server.URL, "dGVzdA==")
	var ambiguous *AmbiguousCommitError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousCommitError, got %v", err)
	}
	if IsTransient(err) {
		t.Fatal("ambiguous writes must not be retried")
	}
}

func TestClientServerErrorStatusIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	err := client.Health(context.Background(), server.URL)
	if !IsTransient(err) {
		t.Fatalf("expected 5xx to be transient, got %v", err)
	}
}

func TestGasBreakdownNet(t *testing.T) {
	cases := []struct {
		breakdown GasBreakdown
		want      uint64
	}{
		{GasBreakdown{Computation: 1000, Storage: 500, StorageRebate: 200}, 1300},
		{GasBreakdown{Computation: 100, Storage: 100, StorageRebate: 500}, 0},
		{GasBreakdown{}, 0},
	}
	for _, tc := range cases {
		if got := tc.breakdown.Net(); got != tc.want {
			t.Fatalf("Net(%+v): expected %d, got %d", tc.breakdown, tc.want, got)
		}
	}
}
