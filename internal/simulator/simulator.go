// Package simulator estimates the ENERGY and BANDWIDTH cost of a USDT
// TRC20 transfer by encoding and simulating the transfer(address,uint256)
// call, falling back to category-based estimates when simulation fails.
package simulator

import (
	"context"
	"encoding/hex"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/rpc"
	"github.com/fueltron/gasstation/internal/tronaddr"
)

// transferSelector is the 4-byte selector for transfer(address,uint256),
// computed rather than hardcoded so the encoding path is exercised the same
// way for any future ABI additions.
var transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// Simulator estimates USDT transfer resource cost against the configured
// TRC20 contract for the active network.
type Simulator struct {
	client   *rpc.Client
	contract string // hex address, 41-prefixed
}

// New builds a Simulator against contractAddr (base58check TRON address).
func New(client *rpc.Client, contractAddr string) (*Simulator, error) {
	contractHex, err := tronaddr.ToHex(contractAddr)
	if err != nil {
		return nil, err
	}
	return &Simulator{client: client, contract: contractHex}, nil
}

// EncodeTransfer ABI-encodes a transfer(address,uint256) call for a TRC20
// contract. recipientHex is the 21-byte TRON hex address (41-prefixed); the
// leading prefix byte is dropped and the remaining 20 bytes are left-padded
// to 32, matching EVM address encoding.
func EncodeTransfer(recipientHex string, amount *big.Int) ([]byte, error) {
	raw, err := hex.DecodeString(recipientHex)
	if err != nil {
		return nil, err
	}
	if len(raw) != 21 {
		raw = append([]byte{tronaddr.AddressPrefix}, raw...)
	}

	data := make([]byte, 0, 68)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(raw[1:], 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data, nil
}

// Simulate estimates the resource cost of transferring amount (in the
// token's smallest unit) from ownerHex to recipientHex. recipientActivated
// tells the category-fallback path (used when recipientHex is not valid hex
// or the live simulation call fails) whether recipientHex already exists
// on-chain: an
// unactivated account can never have received USDT before, so it is
// classified as a new holder in that case rather than defaulting to the
// cheaper existing-holder estimate.
func (s *Simulator) Simulate(ctx context.Context, ownerHex, recipientHex string, amount *big.Int, recipientActivated bool) (models.SimulationResult, error) {
	payload, err := EncodeTransfer(recipientHex, amount)
	if err != nil {
		return s.fallback(recipientActivated), nil
	}
	// payload = selector(4) || param1(32) || param2(32); TriggerConstantContract
	// takes the selector and the parameter blob separately.
	parameterHex := hex.EncodeToString(payload[4:])
	selectorStr := "transfer(address,uint256)"

	result, err := s.client.TriggerConstantContract(ctx, ownerHex, s.contract, selectorStr, parameterHex)
	if err != nil {
		slog.Warn("simulator: constant-contract call failed, using category fallback", "error", err)
		return s.fallback(recipientActivated), nil
	}

	if !result.Succeeded() || len(result.ConstantResult) == 0 {
		slog.Warn("simulator: simulation reported failure, using category fallback", "message", result.Result.Message)
		return s.fallback(recipientActivated), nil
	}

	bandwidthUsed := estimateSignedTxSize(result.Transaction.RawDataHex)
	isExisting := result.EnergyUsed < config.HolderClassificationEnergyThreshold

	return models.SimulationResult{
		EnergyUsed:                result.EnergyUsed,
		BandwidthUsed:             bandwidthUsed,
		WouldSucceed:              true,
		RecipientIsExistingHolder: &isExisting,
		UsedFallback:              false,
	}, nil
}

// fallback returns the category-based estimate. assumeExistingHolder governs
// which of the two flat energy figures is used; callers pass the
// recipient's known activation state since simulation itself can no longer
// observe holder status once it has failed.
func (s *Simulator) fallback(assumeExistingHolder bool) models.SimulationResult {
	energy := int64(config.FallbackEnergyExistingHolder)
	if !assumeExistingHolder {
		energy = int64(config.FallbackEnergyNewHolder)
	}
	return models.SimulationResult{
		EnergyUsed:                energy,
		BandwidthUsed:             int64(config.FallbackBandwidthUnits),
		WouldSucceed:              true,
		RecipientIsExistingHolder: nil,
		UsedFallback:              true,
	}
}

// estimateSignedTxSize returns the serialized length of the would-be signed
// transaction: the raw data plus one signature placeholder.
func estimateSignedTxSize(rawDataHex string) int64 {
	rawBytes := len(rawDataHex) / 2
	return int64(rawBytes) + config.SignaturePlaceholderBytes
}
