package delegator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/keys"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/rpc"
	"github.com/fueltron/gasstation/internal/signer"
)

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	kp, err := keys.FromHex("0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("FromHex() error = %v", err)
	}
	perm := models.PermissionSpec{PermissionID: 2, AllowedOps: []string{signer.OpFreezeBalanceV2, signer.OpDelegateResource, signer.OpTransfer}}
	s, err := signer.New(signer.PolicyControlOnly, perm, kp, nil)
	if err != nil {
		t.Fatalf("signer.New() error = %v", err)
	}
	return s
}

func TestPlan_FloorsAtTargetsAndMinimum(t *testing.T) {
	d := New(nil, testSigner(t), "41owner", 90_000, 350)

	sim := models.SimulationResult{EnergyUsed: 1_817, BandwidthUsed: 270}
	plan := d.Plan(sim, 76.28, 200)

	if plan.NeedEnergyUnits != 90_000 {
		t.Errorf("NeedEnergyUnits = %d, want floored to 90000", plan.NeedEnergyUnits)
	}
	if plan.NeedBandwidthUnits != 350 {
		t.Errorf("NeedBandwidthUnits = %d, want floored to 350", plan.NeedBandwidthUnits)
	}
	if plan.EnergyTRXToFreeze < 1 || plan.BandwidthTRXToFreeze < 1 {
		t.Error("TRX to freeze must always be at least 1 TRX per resource")
	}
}

func TestPlan_UsesRawNeedWhenAboveTargets(t *testing.T) {
	d := New(nil, testSigner(t), "41owner", 90_000, 350)

	sim := models.SimulationResult{EnergyUsed: 200_000, BandwidthUsed: 2_000}
	plan := d.Plan(sim, 76.28, 200)

	wantEnergy := int64(200_000*1.15) + 5_000
	if plan.NeedEnergyUnits < wantEnergy-1 || plan.NeedEnergyUnits > wantEnergy+1 {
		t.Errorf("NeedEnergyUnits = %d, want ~%d", plan.NeedEnergyUnits, wantEnergy)
	}
}

func TestPlan_RoundTripAgainstUnitsPerTRX(t *testing.T) {
	d := New(nil, testSigner(t), "41owner", 90_000, 350)
	sim := models.SimulationResult{EnergyUsed: 1_817, BandwidthUsed: 270}
	plan := d.Plan(sim, 76.28, 200)

	// Property 1: freezing at the plan's TRX amount must yield at least the
	// units needed, and never less than 1 TRX per resource.
	if plan.EnergyTRXToFreeze*76.28 < float64(plan.NeedEnergyUnits)-76.28 {
		t.Error("energy freeze amount insufficient to cover need at oracle yield")
	}
	if plan.EnergyTRXToFreeze < 1 || plan.BandwidthTRXToFreeze < 1 {
		t.Error("expected both legs floored at 1 TRX")
	}
}

func newDelegateTestClient(t *testing.T, freezeOK, delegateOK bool) *rpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/freezebalancev2":
			json.NewEncoder(w).Encode(map[string]any{
				"txID":        "freezetx",
				"raw_data":    map[string]any{"contract": []any{map[string]any{"type": "FreezeBalanceV2Contract"}}},
				"raw_data_hex": "0a02aabb",
			})
		case "/wallet/delegateresource":
			json.NewEncoder(w).Encode(map[string]any{
				"txID":        "delegatetx",
				"raw_data":    map[string]any{"contract": []any{map[string]any{"type": "DelegateResourceContract"}}},
				"raw_data_hex": "0a02ccdd",
			})
		case "/wallet/broadcasttransaction":
			var env rpc.TransactionEnvelope
			json.NewDecoder(r.Body).Decode(&env)
			ok := freezeOK
			if env.TxID == "delegatetx" {
				ok = delegateOK
			}
			json.NewEncoder(w).Encode(map[string]any{"result": ok, "txid": env.TxID, "message": "rejected"})
		}
	}))
	t.Cleanup(srv.Close)
	client, err := rpc.NewClient(rpc.NewEndpoint("test", srv.URL, "", 100))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestDelegate_SuccessfulBroadcast(t *testing.T) {
	client := newDelegateTestClient(t, true, true)
	d := New(client, testSigner(t), "41owner", 90_000, 350)

	outcome, err := d.Delegate(context.Background(), "41target", "ENERGY", 94)
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if !outcome.BroadcastOK {
		t.Error("expected BroadcastOK=true")
	}
	if outcome.TxID != "delegatetx" {
		t.Errorf("TxID = %q, want delegatetx", outcome.TxID)
	}
	if outcome.TRXFrozenSun != 94_000_000 {
		t.Errorf("TRXFrozenSun = %d, want 94000000", outcome.TRXFrozenSun)
	}
	if outcome.LockPeriod != config.FreezeLockDuration {
		t.Errorf("LockPeriod = %s, want %s", outcome.LockPeriod, config.FreezeLockDuration)
	}
}

func TestDelegate_RejectedBroadcastRecordsFailure(t *testing.T) {
	client := newDelegateTestClient(t, true, false)
	d := New(client, testSigner(t), "41owner", 90_000, 350)

	outcome, err := d.Delegate(context.Background(), "41target", "BANDWIDTH", 2)
	if outcome.BroadcastOK {
		t.Error("expected BroadcastOK=false when delegateresource broadcast is rejected")
	}
	if err == nil {
		t.Error("expected a non-nil error carrying the node's rejection reason")
	}
}

func TestUnitsNeeded_ByResource(t *testing.T) {
	plan := models.DelegationPlan{NeedEnergyUnits: 90_000, NeedBandwidthUnits: 350}

	energy, err := UnitsNeeded(plan, config.ResourceEnergy)
	if err != nil || energy != 90_000 {
		t.Errorf("UnitsNeeded(ENERGY) = (%d, %v), want (90000, nil)", energy, err)
	}

	bandwidth, err := UnitsNeeded(plan, config.ResourceBandwidth)
	if err != nil || bandwidth != 350 {
		t.Errorf("UnitsNeeded(BANDWIDTH) = (%d, %v), want (350, nil)", bandwidth, err)
	}

	if _, err := UnitsNeeded(plan, "UNKNOWN"); err == nil {
		t.Error("expected error for unknown resource")
	}
}

func TestDelegate_FreezesAtLeastOneTRX(t *testing.T) {
	client := newDelegateTestClient(t, true, true)
	d := New(client, testSigner(t), "41owner", 90_000, 350)

	outcome, err := d.Delegate(context.Background(), "41target", "BANDWIDTH", 0.1)
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if outcome.TRXFrozenSun != 1_000_000 {
		t.Errorf("TRXFrozenSun = %d, want floored to 1000000 (1 TRX)", outcome.TRXFrozenSun)
	}
}
