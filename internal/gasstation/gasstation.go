// Package gasstation wires the RPC client, Oracle, Simulator, Signer,
// Activator, Delegator, and Verifier into the single public entrypoint,
// prepare_for_usdt, plus its read-only siblings dry_run/health/status.
package gasstation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/fueltron/gasstation/internal/activator"
	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/delegator"
	"github.com/fueltron/gasstation/internal/logging"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/oracle"
	"github.com/fueltron/gasstation/internal/rpc"
	"github.com/fueltron/gasstation/internal/signer"
	"github.com/fueltron/gasstation/internal/simulator"
	"github.com/fueltron/gasstation/internal/tronaddr"
	"github.com/fueltron/gasstation/internal/verifier"
)

// Ledger is the optional audit-trail sink; nil disables it entirely. The
// interface keeps gasstation independent of the storage engine.
type Ledger interface {
	RecordPreparation(ctx context.Context, targetAddress string, result models.PreparationResult)
}

// Service is the injected, dependency-explicit replacement for the source's
// global gas_station singleton (spec §9).
type Service struct {
	client     *rpc.Client
	oracle     *oracle.Oracle
	simulator  *simulator.Simulator
	control    *signer.Signer
	activator  *activator.Activator
	delegator  *delegator.Delegator
	verifier   *verifier.Verifier
	ledger     Ledger

	poolWalletAddress string
	poolWalletHex     string
	permission        models.PermissionSpec
	fallbackToOwner   bool
	profile           models.NetworkProfile

	// locks serializes broadcasts per (pool_wallet, permission_id), the
	// only cross-preparation shared mutable state besides the RPC pool and
	// the (immutable) signer.
	locks sync.Map
}

// Deps bundles everything Service needs, built once at startup.
type Deps struct {
	Client            *rpc.Client
	Oracle            *oracle.Oracle
	Simulator         *simulator.Simulator
	Control           *signer.Signer
	Activator         *activator.Activator
	Delegator         *delegator.Delegator
	Verifier          *verifier.Verifier
	Ledger            Ledger
	PoolWalletAddress string
	Permission        models.PermissionSpec
	FallbackToOwner   bool
	Profile           models.NetworkProfile
}

// New builds a Service from Deps.
func New(d Deps) (*Service, error) {
	poolWalletHex, err := tronaddr.ToHex(d.PoolWalletAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid pool wallet address: %w", err)
	}
	return &Service{
		client:            d.Client,
		oracle:            d.Oracle,
		simulator:         d.Simulator,
		control:           d.Control,
		activator:         d.Activator,
		delegator:         d.Delegator,
		verifier:          d.Verifier,
		ledger:            d.Ledger,
		poolWalletAddress: d.PoolWalletAddress,
		poolWalletHex:     poolWalletHex,
		permission:        d.Permission,
		fallbackToOwner:   d.FallbackToOwner,
		profile:           d.Profile,
	}, nil
}

func (s *Service) broadcastLock() *sync.Mutex {
	key := fmt.Sprintf("%s:%d", s.poolWalletAddress, s.permission.PermissionID)
	l, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// PrepareForUSDT runs the full pipeline for target. It has no error return:
// every fault, including a target that is not a valid TRON address (a
// "config" entry with strategy activation_failed), is recorded as a
// structured entry in the result.
func (s *Service) PrepareForUSDT(ctx context.Context, targetAddress string) models.PreparationResult {
	start := time.Now()
	result := models.PreparationResult{Strategy: config.StrategyPartial}

	targetHex, err := tronaddr.ToHex(targetAddress)
	if err != nil {
		result.AddError(string(config.ErrorKindConfig), "validate_target", err.Error(), false)
		result.Success = false
		result.Strategy = config.StrategyActivationFailed
		return s.finish(ctx, targetAddress, result, start)
	}

	ctx, cancel := context.WithTimeout(ctx, config.PreparationTimeout)
	defer cancel()

	// 1. probe
	baseline, err := s.verifier.Baseline(ctx, targetHex)
	if err != nil {
		result.AddError(string(config.ErrorKindNetwork), "probe", err.Error(), true)
	}
	if baseline.IsUSDTReady(config.ReadyEnergyThreshold, config.ReadyBandwidthThreshold) {
		result.Success = true
		result.Strategy = config.StrategyAlreadyReady
		result.Verification = models.VerificationResult{
			EnergyOK: true, BandwidthOK: true, Activated: true, USDTReady: true,
		}
		return s.finish(ctx, targetAddress, result, start)
	}

	// 2. simulate
	proxyHex := targetHex
	newHolderPenalty := false
	if !baseline.Activated {
		proxyHex = s.poolWalletHex
		newHolderPenalty = true
	}
	sim, err := s.simulator.Simulate(ctx, proxyHex, targetHex, big.NewInt(1), baseline.Activated)
	if err != nil {
		result.AddError(string(config.ErrorKindSimulation), "simulate", err.Error(), true)
	}
	if sim.UsedFallback {
		result.AddWarning("simulation used category fallback estimate, not a live triggerconstantcontract result")
	}
	if newHolderPenalty {
		sim.EnergyUsed = int64(float64(sim.EnergyUsed) * config.NewHolderPenaltyMultiplier)
	}

	// 3. plan
	yields, err := s.oracle.Compute(ctx, s.poolWalletHex)
	if err != nil {
		result.AddError(string(config.ErrorKindNetwork), "oracle", err.Error(), true)
	}
	plan := s.delegator.Plan(sim, yields.EnergyPerTRX, yields.BandwidthPerTRX)
	result.RequiredEnergy = plan.NeedEnergyUnits
	result.RequiredBandwidth = plan.NeedBandwidthUnits

	feasible, _, feasErr := s.checkFeasibility(ctx, plan, baseline.Activated)
	if feasErr != nil {
		result.AddError(string(config.ErrorKindNetwork), "check_feasibility", feasErr.Error(), true)
	} else if !feasible {
		result.AddError(string(config.ErrorKindInsufficientFunds), "check_feasibility", config.ErrInsufficientFunds.Error(), false)
		result.Success = false
		result.Strategy = config.StrategyActivationFailed
		return s.finish(ctx, targetAddress, result, start)
	}

	// 4. activate if needed
	if !baseline.Activated {
		lock := s.broadcastLock()
		lock.Lock()
		outcome, actErr := s.activator.Activate(ctx, targetHex)
		lock.Unlock()

		if actErr != nil {
			kind := config.KindOf(actErr)
			result.AddError(string(kind), "activate", actErr.Error(), config.IsTransient(actErr))
			result.Success = false
			result.Strategy = config.StrategyActivationFailed
			return s.finish(ctx, targetAddress, result, start)
		}
		if outcome.Warning != "" {
			result.AddWarning(outcome.Warning)
		}
	}

	// 5. delegate: ENERGY then BANDWIDTH, independent broadcasts.
	energyOutcome, energyErr := s.broadcastDelegation(ctx, targetHex, config.ResourceEnergy, plan.EnergyTRXToFreeze)
	energyOutcome.UnitsRequested, _ = delegator.UnitsNeeded(plan, config.ResourceEnergy)
	if energyErr != nil {
		result.AddError(string(config.ErrorKindBroadcast), "delegate:"+config.ResourceEnergy, energyErr.Error(), false)
	}

	bandwidthOutcome, bandwidthErr := s.broadcastDelegation(ctx, targetHex, config.ResourceBandwidth, plan.BandwidthTRXToFreeze)
	bandwidthOutcome.UnitsRequested, _ = delegator.UnitsNeeded(plan, config.ResourceBandwidth)
	if bandwidthErr != nil {
		result.AddError(string(config.ErrorKindBroadcast), "delegate:"+config.ResourceBandwidth, bandwidthErr.Error(), false)
	}

	// 6. verify — updates ObservedIncrease on the outcomes in place before
	// they're appended, so PreparationResult.Delegations reflects the
	// Verifier's per-resource finding rather than always reading false.
	verification, warnings := s.verifyDelegations(ctx, targetHex, baseline, plan, &energyOutcome, &bandwidthOutcome)
	result.Delegations = append(result.Delegations, energyOutcome, bandwidthOutcome)
	for _, w := range warnings {
		result.AddWarning(w)
	}
	result.Verification = verification
	result.Success = verification.USDTReady || (verification.EnergyOK && verification.BandwidthOK && verification.Activated)

	if result.Success {
		result.Strategy = config.StrategyCompletePreparation
	} else {
		result.Strategy = config.StrategyPartial
	}

	return s.finish(ctx, targetAddress, result, start)
}

// checkFeasibility reports whether the pool wallet's TRX balance covers
// plan's freeze cost plus, when the target isn't yet activated, the
// activation transfer cost (spec §7's insufficient_funds check).
func (s *Service) checkFeasibility(ctx context.Context, plan models.DelegationPlan, targetActivated bool) (bool, int64, error) {
	_, poolBalanceSun, err := s.client.GetAccount(ctx, s.poolWalletHex)
	if err != nil {
		return false, 0, fmt.Errorf("pool balance check: %w", err)
	}

	requiredSun := int64(plan.TotalTRXToFreeze() * config.SunPerTRX)
	if !targetActivated {
		requiredSun += int64(s.profile.ActivationCostTRX * config.SunPerTRX)
	}
	return poolBalanceSun >= requiredSun, poolBalanceSun, nil
}

func (s *Service) broadcastDelegation(ctx context.Context, targetHex, resource string, trxAmount float64) (models.DelegationOutcome, error) {
	lock := s.broadcastLock()
	lock.Lock()
	defer lock.Unlock()
	return s.delegator.Delegate(ctx, targetHex, resource, trxAmount)
}

// verifyDelegations polls the target after both broadcasts, treating a
// verification timeout as success (with a warning) whenever the freeze math
// already guarantees coverage (spec §4.7 step 5 / §8 property 6). It writes
// the Verifier's per-resource ObservedIncrease finding back into
// energyOutcome/bandwidthOutcome, since those are §3's DelegationOutcome
// records and must reflect what was actually observed on-chain, not just
// whether the broadcast itself succeeded.
func (s *Service) verifyDelegations(ctx context.Context, targetHex string, baseline models.ResourceSnapshot, plan models.DelegationPlan, energyOutcome, bandwidthOutcome *models.DelegationOutcome) (models.VerificationResult, []string) {
	var warnings []string
	var energyCovered, bandwidthCovered bool

	if energyOutcome.BroadcastOK {
		energyResult, err := s.verifier.AwaitIncrease(ctx, targetHex, config.ResourceEnergy, baseline)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("verification_timeout:energy: %v", err))
		} else {
			energyOutcome.ObservedIncrease = energyResult.ObservedIncrease
			if energyResult.TimedOut && plan.EnergyTRXToFreeze >= 1 {
				warnings = append(warnings, "verification_timeout:energy")
				energyCovered = true
			}
		}
	}

	if bandwidthOutcome.BroadcastOK {
		bandwidthResult, err := s.verifier.AwaitIncrease(ctx, targetHex, config.ResourceBandwidth, baseline)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("verification_timeout:bandwidth: %v", err))
		} else {
			bandwidthOutcome.ObservedIncrease = bandwidthResult.ObservedIncrease
			if bandwidthResult.TimedOut && plan.BandwidthTRXToFreeze >= 1 {
				warnings = append(warnings, "verification_timeout:bandwidth")
				bandwidthCovered = true
			}
		}
	}

	finalSnap, _, err := s.client.Snapshot(ctx, targetHex)
	if err != nil {
		slog.Warn("gasstation: final snapshot read failed", "target", targetHex, "error", err)
		finalSnap = baseline
	}

	final := verifier.FinalResult(finalSnap, plan.NeedEnergyUnits, plan.NeedBandwidthUnits)
	if energyCovered {
		final.EnergyOK = true
	}
	if bandwidthCovered {
		final.BandwidthOK = true
	}
	return final, warnings
}

func (s *Service) finish(ctx context.Context, targetAddress string, result models.PreparationResult, start time.Time) models.PreparationResult {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		result.Success = false
		result.Strategy = config.StrategyTimeout
	case context.Canceled:
		result.Success = false
		result.Strategy = config.StrategyCancelled
	}

	result.ExecutionTimeMS = time.Since(start).Milliseconds()

	log := logging.WithTarget(targetAddress, result.Strategy)
	if result.Success {
		log.Info("preparation finished", "durationMs", result.ExecutionTimeMS, "warnings", len(result.Warnings))
	} else {
		log.Warn("preparation finished without success", "durationMs", result.ExecutionTimeMS, "errors", len(result.Errors))
	}

	if s.ledger != nil {
		s.ledger.RecordPreparation(ctx, targetAddress, result)
	}
	return result
}

// DryRun computes the delegation plan and estimated cost without
// broadcasting anything.
func (s *Service) DryRun(ctx context.Context, targetAddress string) (models.DryRunResult, error) {
	targetHex, err := tronaddr.ToHex(targetAddress)
	if err != nil {
		return models.DryRunResult{}, err
	}

	baseline, err := s.verifier.Baseline(ctx, targetHex)
	var warnings []string
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("probe failed: %v", err))
	}

	proxyHex := targetHex
	newHolderPenalty := false
	if !baseline.Activated {
		proxyHex = s.poolWalletHex
		newHolderPenalty = true
	}
	sim, err := s.simulator.Simulate(ctx, proxyHex, targetHex, big.NewInt(1), baseline.Activated)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("simulation failed: %v", err))
	}
	if sim.UsedFallback {
		warnings = append(warnings, "simulation used category fallback estimate, not a live triggerconstantcontract result")
	}
	if newHolderPenalty {
		sim.EnergyUsed = int64(float64(sim.EnergyUsed) * config.NewHolderPenaltyMultiplier)
	}

	yields, err := s.oracle.Compute(ctx, s.poolWalletHex)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("oracle failed: %v", err))
	}
	plan := s.delegator.Plan(sim, yields.EnergyPerTRX, yields.BandwidthPerTRX)

	feasible, _, err := s.checkFeasibility(ctx, plan, baseline.Activated)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("pool balance check failed: %v", err))
		feasible = true
	}

	estimatedCost := plan.TotalTRXToFreeze()
	if !baseline.Activated {
		estimatedCost += s.profile.ActivationCostTRX
	}

	return models.DryRunResult{
		Plan:             plan,
		EstimatedCostTRX: estimatedCost,
		Feasible:         feasible,
		Warnings:         warnings,
	}, nil
}

// Health probes connectivity by fetching the latest block through the RPC
// client, which tries the configured endpoints in round-robin order until
// one answers; it reports that single probe, not a per-endpoint breakdown.
func (s *Service) Health(ctx context.Context) models.HealthResult {
	start := time.Now()
	block, err := s.client.LatestBlockNumber(ctx)
	latency := time.Since(start).Milliseconds()

	result := models.HealthResult{
		NodeType:    "full",
		Connected:   err == nil,
		LatestBlock: block,
		LatencyMS:   latency,
	}
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("connectivity probe failed: %v", err))
	}
	return result
}

// Status reports the pool wallet's current resource state and signing
// configuration.
func (s *Service) Status(ctx context.Context) (models.StatusResult, error) {
	snap, _, err := s.client.Snapshot(ctx, s.poolWalletHex)
	if err != nil {
		return models.StatusResult{}, fmt.Errorf("status snapshot: %w", err)
	}

	return models.StatusResult{
		PoolWalletAddress:  s.poolWalletAddress,
		BalanceTRX:         float64(snap.BalanceSun) / config.SunPerTRX,
		EnergyAvailable:    snap.EnergyAvailable,
		BandwidthAvailable: snap.BandwidthAvailable,
		PermissionID:       s.permission.PermissionID,
		ControlOpsAllowed:  s.permission.AllowedOps,
		FallbackToOwner:    s.fallbackToOwner,
	}, nil
}
