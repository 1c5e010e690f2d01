// Package verifier confirms that a delegated resource increase is visible
// on-chain within a bounded, multi-endpoint polling window, masking the
// index lag a single full node can show right after a freeze/delegate
// broadcast.
package verifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/polling"
	"github.com/fueltron/gasstation/internal/rpc"
)

// Verifier polls a target address's resource snapshot until an expected
// delta appears or the poll budget is exhausted.
type Verifier struct {
	client *rpc.Client
}

// New builds a Verifier over client.
func New(client *rpc.Client) *Verifier {
	return &Verifier{client: client}
}

// Baseline reads the target's current resource snapshot, to be diffed
// against later polls.
func (v *Verifier) Baseline(ctx context.Context, targetHex string) (models.ResourceSnapshot, error) {
	snap, _, err := v.client.Snapshot(ctx, targetHex)
	return snap, err
}

// Outcome is one delegation's verification result.
type Outcome struct {
	ObservedIncrease bool
	TimedOut         bool
	Snapshot         models.ResourceSnapshot
}

// AwaitIncrease polls targetHex every config.PollInterval, up to
// config.PollMaxAttempts times, accepting as soon as the named resource
// shows any positive increase over baseline. It returns the last observed
// snapshot regardless of outcome.
func (v *Verifier) AwaitIncrease(ctx context.Context, targetHex, resource string, baseline models.ResourceSnapshot) (Outcome, error) {
	value, done, err := polling.Until(ctx, config.PollInterval, config.PollMaxAttempts, func(ctx context.Context, a polling.Attempt) (polling.Result, error) {
		snap, _, snapErr := v.client.Snapshot(ctx, targetHex)
		if snapErr != nil {
			slog.Debug("verifier: snapshot poll failed", "attempt", a.Number, "error", snapErr)
			return polling.Continue(), nil
		}

		if increased(resource, baseline, snap) {
			return polling.Done(snap), nil
		}
		return polling.Result{Done: false, Value: snap}, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("await increase for %s: %w", resource, err)
	}

	snap, _ := value.(models.ResourceSnapshot)
	if done {
		return Outcome{ObservedIncrease: true, Snapshot: snap}, nil
	}
	return Outcome{ObservedIncrease: false, TimedOut: true, Snapshot: snap}, nil
}

func increased(resource string, baseline, current models.ResourceSnapshot) bool {
	switch resource {
	case config.ResourceEnergy:
		return current.EnergyAvailable-baseline.EnergyAvailable > 0
	case config.ResourceBandwidth:
		return current.BandwidthAvailable-baseline.BandwidthAvailable > 0
	default:
		return false
	}
}

// FinalResult builds the VerificationResult against the required units,
// combining the last-observed snapshot with the acceptance ratio rule
// (spec §4.1 step 6) and the USDT-ready thresholds (spec §4.8).
func FinalResult(snap models.ResourceSnapshot, requiredEnergy, requiredBandwidth int64) models.VerificationResult {
	energyOK := float64(snap.EnergyAvailable) >= config.VerificationSuccessRatio*float64(requiredEnergy)
	bandwidthOK := float64(snap.BandwidthAvailable) >= config.VerificationSuccessRatio*float64(requiredBandwidth)
	usdtReady := snap.IsUSDTReady(config.ReadyEnergyThreshold, config.ReadyBandwidthThreshold)

	return models.VerificationResult{
		EnergyOK:    energyOK,
		BandwidthOK: bandwidthOK,
		Activated:   snap.Activated,
		USDTReady:   usdtReady || (snap.Activated && energyOK && bandwidthOK),
	}
}
