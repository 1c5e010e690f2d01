// Package delegator sizes and broadcasts the freeze-and-delegate pair that
// moves ENERGY and BANDWIDTH from the pool wallet to a target address.
package delegator

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/rpc"
	"github.com/fueltron/gasstation/internal/signer"
)

// Delegator freezes TRX on the pool wallet and delegates the resulting
// ENERGY/BANDWIDTH to targets, signing every broadcast with the control
// signer.
type Delegator struct {
	client       *rpc.Client
	signer       *signer.Signer
	ownerHex     string
	targetEnergy int64
	targetBandwidth int64
}

// New builds a Delegator. targetEnergy is the configured E_TARGET floor
// (spec §4.7 step 1). targetBandwidth is stored but Plan does not read it:
// bandwidth is floored at config.BandwidthDelegationFloor.
func New(client *rpc.Client, sgn *signer.Signer, ownerHex string, targetEnergy, targetBandwidth int64) *Delegator {
	return &Delegator{client: client, signer: sgn, ownerHex: ownerHex, targetEnergy: targetEnergy, targetBandwidth: targetBandwidth}
}

// Plan computes the DelegationPlan for a simulated USDT transfer, given the
// Oracle's current units-per-TRX yields.
func (d *Delegator) Plan(sim models.SimulationResult, energyPerTRX, bandwidthPerTRX float64) models.DelegationPlan {
	needEnergy := int64(math.Ceil(float64(sim.EnergyUsed)*config.EnergySafetyMultiplier)) + config.EnergyMarginUnits
	if needEnergy < d.targetEnergy {
		needEnergy = d.targetEnergy
	}

	needBandwidth := int64(math.Ceil(float64(sim.BandwidthUsed) * config.BandwidthSafetyMultiplier))
	if needBandwidth < config.BandwidthDelegationFloor {
		needBandwidth = config.BandwidthDelegationFloor
	}

	return models.DelegationPlan{
		NeedEnergyUnits:      needEnergy,
		NeedBandwidthUnits:   needBandwidth,
		EnergyTRXToFreeze:    trxToFreeze(needEnergy, energyPerTRX),
		BandwidthTRXToFreeze: trxToFreeze(needBandwidth, bandwidthPerTRX),
	}
}

// trxToFreeze returns the whole-TRX amount required to yield unitsNeeded at
// the given units-per-TRX rate, floored at the network's 1 TRX minimum.
func trxToFreeze(unitsNeeded int64, unitsPerTRX float64) float64 {
	if unitsPerTRX <= 0 {
		return 1
	}
	trx := math.Ceil(float64(unitsNeeded) / unitsPerTRX)
	if trx < 1 {
		trx = 1
	}
	return trx
}

// Delegate freezes and delegates one resource to targetHex, in that order:
// FreezeBalanceV2 then DelegateResource, both signed and broadcast
// sequentially since the client has no combined builder. Delegations are
// always placed with lock:true, so the receiver cannot UnDelegateResource
// the units back before config.FreezeLockDuration elapses (spec §4.7 step
// 3); LockPeriod on the outcome records that window for the caller/ledger.
// A non-nil error carries the node's own rejection reason (or the
// build/sign failure) so the caller can propagate it into
// PreparationResult.Errors instead of it only reaching a log line.
func (d *Delegator) Delegate(ctx context.Context, targetHex, resource string, trxAmount float64) (models.DelegationOutcome, error) {
	frozenSun := int64(math.Round(trxAmount * config.SunPerTRX))
	if frozenSun < config.MinFreezeSun {
		frozenSun = config.MinFreezeSun
	}

	outcome := models.DelegationOutcome{Resource: resource, TRXFrozenSun: frozenSun, LockPeriod: config.FreezeLockDuration}

	freezePermID, _ := d.signer.PermissionFor(signer.OpFreezeBalanceV2)
	freezeEnv, err := d.client.BuildFreezeBalanceV2(ctx, d.ownerHex, frozenSun, resource, freezePermID)
	if err != nil {
		slog.Warn("delegator: build freeze failed", "resource", resource, "error", err)
		return outcome, fmt.Errorf("build freeze: %w", err)
	}
	signedFreeze, err := d.signer.Sign(freezeEnv, signer.OpFreezeBalanceV2)
	if err != nil {
		slog.Warn("delegator: sign freeze failed", "resource", resource, "error", err)
		return outcome, fmt.Errorf("sign freeze: %w", err)
	}
	if _, err := d.client.BroadcastTransaction(ctx, signedFreeze); err != nil {
		slog.Warn("delegator: broadcast freeze failed", "resource", resource, "error", err)
		return outcome, fmt.Errorf("broadcast freeze: %w", err)
	}

	delegatePermID, _ := d.signer.PermissionFor(signer.OpDelegateResource)
	delegateEnv, err := d.client.BuildDelegateResource(ctx, d.ownerHex, targetHex, frozenSun, resource, true, delegatePermID)
	if err != nil {
		slog.Warn("delegator: build delegate failed", "resource", resource, "error", err)
		return outcome, fmt.Errorf("build delegate: %w", err)
	}
	signedDelegate, err := d.signer.Sign(delegateEnv, signer.OpDelegateResource)
	if err != nil {
		slog.Warn("delegator: sign delegate failed", "resource", resource, "error", err)
		return outcome, fmt.Errorf("sign delegate: %w", err)
	}
	result, err := d.client.BroadcastTransaction(ctx, signedDelegate)
	if err != nil {
		slog.Warn("delegator: broadcast delegate failed", "resource", resource, "error", err)
		return outcome, fmt.Errorf("broadcast delegate: %w", err)
	}

	outcome.TxID = result.TxID
	outcome.BroadcastOK = true
	return outcome, nil
}

// UnitsNeeded returns the required units for resource from a DelegationPlan,
// used by the orchestrator to fill DelegationOutcome.UnitsRequested.
func UnitsNeeded(plan models.DelegationPlan, resource string) (int64, error) {
	switch resource {
	case config.ResourceEnergy:
		return plan.NeedEnergyUnits, nil
	case config.ResourceBandwidth:
		return plan.NeedBandwidthUnits, nil
	default:
		return 0, fmt.Errorf("unknown resource %q", resource)
	}
}
