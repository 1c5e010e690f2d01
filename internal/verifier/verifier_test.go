package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/rpc"
)

// laggingThenReadyServer returns energy=0 for the first failAttempts polls
// to /wallet/getaccountresource, then energyAfter thereafter.
func laggingThenReadyServer(t *testing.T, failAttempts int, energyAfter int64) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/getaccount":
			json.NewEncoder(w).Encode(map[string]any{"address": "41aaaa", "balance": 0})
		case "/wallet/getaccountresource":
			n := atomic.AddInt32(&calls, 1)
			energy := int64(0)
			if int(n) > failAttempts {
				energy = energyAfter
			}
			json.NewEncoder(w).Encode(map[string]any{"EnergyLimit": energy, "EnergyUsed": 0})
		}
	}))
	return srv, &calls
}

func TestAwaitIncrease_SucceedsAfterLag(t *testing.T) {
	srv, _ := laggingThenReadyServer(t, 3, 90_000)
	defer srv.Close()

	client, err := rpc.NewClient(rpc.NewEndpoint("test", srv.URL, "", 100))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	v := New(client)

	baseline := models.ResourceSnapshot{}
	start := time.Now()
	outcome, err := v.AwaitIncrease(context.Background(), "41target", "ENERGY", baseline)
	if err != nil {
		t.Fatalf("AwaitIncrease() error = %v", err)
	}
	if !outcome.ObservedIncrease {
		t.Error("expected observed increase after initial lag")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took too long: %v", elapsed)
	}
}

func TestAwaitIncrease_TimesOutOnStuckZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/getaccount":
			json.NewEncoder(w).Encode(map[string]any{"address": "41aaaa"})
		case "/wallet/getaccountresource":
			json.NewEncoder(w).Encode(map[string]any{"EnergyLimit": 0, "EnergyUsed": 0})
		}
	}))
	defer srv.Close()

	client, err := rpc.NewClient(rpc.NewEndpoint("test", srv.URL, "", 100))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	v := New(client)

	outcome, err := v.AwaitIncrease(context.Background(), "41target", "ENERGY", models.ResourceSnapshot{})
	if err != nil {
		t.Fatalf("AwaitIncrease() error = %v", err)
	}
	if outcome.ObservedIncrease {
		t.Error("did not expect an observed increase against a stuck-zero mock")
	}
	if !outcome.TimedOut {
		t.Error("expected TimedOut=true")
	}
}

func TestFinalResult_USDTReadyThresholds(t *testing.T) {
	snap := models.ResourceSnapshot{Activated: true, EnergyAvailable: 20_000, BandwidthAvailable: 400}
	result := FinalResult(snap, 90_000, 1_000)
	if !result.Activated {
		t.Error("expected Activated=true")
	}
	if !result.USDTReady {
		t.Error("expected USDTReady=true at 20000/400 against 15000/300 thresholds")
	}
}

func TestFinalResult_AcceptanceRatio(t *testing.T) {
	snap := models.ResourceSnapshot{Activated: true, EnergyAvailable: 81_000, BandwidthAvailable: 900}
	result := FinalResult(snap, 90_000, 1_000)
	if !result.EnergyOK {
		t.Error("expected EnergyOK at exactly 0.9 ratio")
	}
	if !result.BandwidthOK {
		t.Error("expected BandwidthOK at exactly 0.9 ratio")
	}
}
