// Package oracle computes live units-per-TRX yields for ENERGY and
// BANDWIDTH from chain parameters, falling back to configured constants
// when the network does not expose them.
package oracle

import (
	"context"
	"log/slog"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/rpc"
)

const (
	chainParamEnergyFee = "getEnergyFee"
	chainParamTxFee     = "getTransactionFee"
)

// Oracle re-reads chain parameters on every call; it never caches beyond a
// single preparation, since energy fee and net weight can shift between
// blocks.
type Oracle struct {
	client  *rpc.Client
	network string

	energyFallback     float64
	bandwidthFallback  float64
	bandwidthFloorAt   float64
	bandwidthFloorTo   float64
}

// New builds an Oracle. energyOverride/bandwidthOverride, if > 0, take
// precedence over the network's baked-in fallback constants (spec's
// ENERGY_UNITS_PER_TRX_ESTIMATE / BANDWIDTH_UNITS_PER_TRX_ESTIMATE knobs).
func New(client *rpc.Client, network string, energyOverride, bandwidthOverride float64) *Oracle {
	energyFallback := config.FallbackEnergyPerTRXMainnet
	if energyOverride > 0 {
		energyFallback = energyOverride
	}
	var bandwidthFallback float64 = config.TestnetBandwidthFloorValue
	if bandwidthOverride > 0 {
		bandwidthFallback = bandwidthOverride
	}

	return &Oracle{
		client:            client,
		network:           network,
		energyFallback:    energyFallback,
		bandwidthFallback: float64(bandwidthFallback),
		bandwidthFloorAt:  config.TestnetBandwidthFloorTrigger,
		bandwidthFloorTo:  float64(config.TestnetBandwidthFloorValue),
	}
}

// Yields is the Oracle's per-call output.
type Yields struct {
	EnergyPerTRX    float64
	BandwidthPerTRX float64
	UsedEnergyFallback    bool
	UsedBandwidthFallback bool
	AppliedTestnetFloor   bool
}

// Compute derives current ENERGY and BANDWIDTH yields. ownerAddressHex is
// any activated address whose account-resource response carries the
// network-wide TotalNetLimit/TotalNetWeight fields (the pool wallet is used
// in practice, since it is queried anyway).
func (o *Oracle) Compute(ctx context.Context, ownerAddressHex string) (Yields, error) {
	var y Yields

	params, err := o.client.GetChainParameters(ctx)
	if err != nil {
		slog.Warn("oracle: getchainparameters failed, using energy fallback", "error", err)
		y.EnergyPerTRX = o.energyFallback
		y.UsedEnergyFallback = true
	} else if fee := lookupParam(params, chainParamEnergyFee); fee > 0 {
		y.EnergyPerTRX = 1_000_000.0 / float64(fee)
	} else {
		slog.Warn("oracle: getEnergyFee absent or zero, using fallback")
		y.EnergyPerTRX = o.energyFallback
		y.UsedEnergyFallback = true
	}

	resource, err := o.client.GetAccountResource(ctx, ownerAddressHex)
	switch {
	case err != nil:
		slog.Warn("oracle: getaccountresource failed, using bandwidth fallback", "error", err)
		y.BandwidthPerTRX = o.bandwidthFallback
		y.UsedBandwidthFallback = true
	case resource.TotalNetWeight > 0:
		y.BandwidthPerTRX = float64(resource.TotalNetLimit) / float64(resource.TotalNetWeight)
	default:
		if txFee := lookupParam(params, chainParamTxFee); txFee > 0 {
			y.BandwidthPerTRX = 1_000_000.0 / float64(txFee)
		} else {
			y.BandwidthPerTRX = o.bandwidthFallback
			y.UsedBandwidthFallback = true
		}
	}

	if o.network == config.NetworkTestnet && y.BandwidthPerTRX < o.bandwidthFloorAt {
		slog.Info("oracle: testnet bandwidth floor applied", "raw", y.BandwidthPerTRX, "floor", o.bandwidthFloorTo)
		y.BandwidthPerTRX = o.bandwidthFloorTo
		y.AppliedTestnetFloor = true
	}

	slog.Debug("oracle yields computed",
		"energyPerTRX", y.EnergyPerTRX,
		"bandwidthPerTRX", y.BandwidthPerTRX,
		"usedEnergyFallback", y.UsedEnergyFallback,
		"usedBandwidthFallback", y.UsedBandwidthFallback,
		"appliedTestnetFloor", y.AppliedTestnetFloor,
	)

	return y, nil
}

func lookupParam(params []rpc.ChainParameter, key string) int64 {
	for _, p := range params {
		if p.Key == key {
			return p.Value
		}
	}
	return 0
}
