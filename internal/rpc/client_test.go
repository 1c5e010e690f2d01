package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestEndpoint(t *testing.T, handler http.HandlerFunc) *Endpoint {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEndpoint(srv.URL, srv.URL, "", 100)
}

func TestClient_GetAccount_Activated(t *testing.T) {
	ep := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"address": "41abc", "balance": 5_000_000})
	})
	client, err := NewClient(ep)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	activated, balance, err := client.GetAccount(context.Background(), "41abc")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !activated {
		t.Error("expected activated = true")
	}
	if balance != 5_000_000 {
		t.Errorf("expected balance 5000000, got %d", balance)
	}
}

func TestClient_GetAccount_Unactivated(t *testing.T) {
	ep := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	client, _ := NewClient(ep)

	activated, _, err := client.GetAccount(context.Background(), "41abc")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if activated {
		t.Error("expected activated = false for empty account body")
	}
}

func TestClient_FailoverAcrossEndpoints(t *testing.T) {
	failing := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	working := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"address": "41abc", "balance": 42})
	})

	client, err := NewClient(failing, working)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, balance, err := client.GetAccount(ctx, "41abc")
	if err != nil {
		t.Fatalf("GetAccount() should have failed over to the working endpoint, got error = %v", err)
	}
	if balance != 42 {
		t.Errorf("expected balance 42 from working endpoint, got %d", balance)
	}
}

func TestClient_AllEndpointsFail(t *testing.T) {
	failing1 := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	failing2 := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, err := NewClient(failing1, failing2)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, _, err := client.GetAccount(context.Background(), "41abc"); err == nil {
		t.Error("expected error when all endpoints fail")
	}
}

func TestClient_BroadcastTransaction_Rejected(t *testing.T) {
	ep := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": false, "code": "SIGERROR", "message": "bad signature"})
	})
	client, _ := NewClient(ep)

	if _, err := client.BroadcastTransaction(context.Background(), TransactionEnvelope{TxID: "abc"}); err == nil {
		t.Error("expected error for rejected broadcast")
	}
}

func TestClient_TriggerConstantContract(t *testing.T) {
	ep := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result":      map[string]any{"result": true},
			"energy_used": 14650,
		})
	})
	client, _ := NewClient(ep)

	res, err := client.TriggerConstantContract(context.Background(), "41owner", "41contract", "transfer(address,uint256)", "deadbeef")
	if err != nil {
		t.Fatalf("TriggerConstantContract() error = %v", err)
	}
	if !res.Succeeded() {
		t.Error("expected simulation to succeed")
	}
	if res.EnergyUsed != 14650 {
		t.Errorf("expected energy_used 14650, got %d", res.EnergyUsed)
	}
}

func TestNewClient_RequiresEndpoints(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when constructing a client with no endpoints")
	}
}
