// Package activator brings a non-existent TRON address into existence,
// either by sending it a small TRX transfer or by issuing a dedicated
// AccountCreateContract, then waits for the activation to become visible.
package activator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/polling"
	"github.com/fueltron/gasstation/internal/rpc"
	"github.com/fueltron/gasstation/internal/signer"
)

// Activator drives the probe → choose_mode → build → sign → broadcast →
// wait_conf state machine (spec §4.6).
type Activator struct {
	client                  *rpc.Client
	control                 *signer.Signer
	// dedicated is an optional signer built from a separate activation key,
	// used when the control key's allow-set excludes Transfer TRX. Nil means
	// the control signer handles activation itself.
	dedicated               *signer.Signer
	ownerHex                string
	mode                    string
	activationCostTRX       float64
	createAccountSupported  bool
}

// New builds an Activator. dedicated may be nil.
func New(client *rpc.Client, control, dedicated *signer.Signer, ownerHex, mode string, activationCostTRX float64, createAccountSupported bool) *Activator {
	return &Activator{
		client:                 client,
		control:                control,
		dedicated:              dedicated,
		ownerHex:               ownerHex,
		mode:                   mode,
		activationCostTRX:      activationCostTRX,
		createAccountSupported: createAccountSupported,
	}
}

// Outcome reports how activation went.
type Outcome struct {
	Activated bool
	TxID      string
	Warning   string
}

// Activate creates targetHex on-chain per the configured mode, then waits
// up to the shared poll budget for the activation to become visible.
func (a *Activator) Activate(ctx context.Context, targetHex string) (Outcome, error) {
	switch a.mode {
	case config.ActivationModeTransfer:
		return a.activateByTransfer(ctx, targetHex)
	case config.ActivationModeCreateAccount:
		return a.activateByCreateAccount(ctx, targetHex)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown activation mode %q", config.ErrConfigInvalid, a.mode)
	}
}

func (a *Activator) activateByTransfer(ctx context.Context, targetHex string) (Outcome, error) {
	amountSun := int64(a.activationCostTRX * config.SunPerTRX)

	signed, err := a.buildAndSignWithFallback(ctx, signer.OpTransfer, func(permissionID uint8) (rpc.TransactionEnvelope, error) {
		return a.client.BuildTransferTx(ctx, a.ownerHex, targetHex, amountSun, permissionID)
	})
	if err != nil {
		return Outcome{}, err
	}

	result, err := a.client.BroadcastTransaction(ctx, signed)
	if err != nil {
		return Outcome{}, fmt.Errorf("broadcast activation transfer: %w", err)
	}

	return a.waitForActivation(ctx, targetHex, result.TxID)
}

func (a *Activator) activateByCreateAccount(ctx context.Context, targetHex string) (Outcome, error) {
	if !a.createAccountSupported {
		return Outcome{}, fmt.Errorf("%w: create_account mode requested", config.ErrCreateAccountUnsupported)
	}

	signed, err := a.buildAndSignWithFallback(ctx, signer.OpCreateAccount, func(permissionID uint8) (rpc.TransactionEnvelope, error) {
		return a.client.BuildAccountCreate(ctx, a.ownerHex, targetHex, permissionID)
	})
	if err != nil {
		return Outcome{}, err
	}

	result, err := a.client.BroadcastTransaction(ctx, signed)
	if err != nil {
		return Outcome{}, fmt.Errorf("broadcast create_account: %w", err)
	}

	return a.waitForActivation(ctx, targetHex, result.TxID)
}

// buildAndSignWithFallback asks each candidate signer, in priority order,
// what permission id (if any) its Sign call will need embedded in raw_data
// before build — TRON bakes Permission_id into the protobuf raw_data the
// node serializes, so it must be known at build time, not patched in after.
// It tries the dedicated activation signer first when configured, building
// and signing a fresh envelope for it; on failure it rebuilds for the
// control signer's own policy (which may itself fall back to the owner key).
func (a *Activator) buildAndSignWithFallback(ctx context.Context, op string, build func(permissionID uint8) (rpc.TransactionEnvelope, error)) (rpc.TransactionEnvelope, error) {
	if a.dedicated != nil {
		permissionID, _ := a.dedicated.PermissionFor(op)
		env, err := build(permissionID)
		if err != nil {
			return rpc.TransactionEnvelope{}, fmt.Errorf("build %s for dedicated signer: %w", op, err)
		}
		signed, err := a.dedicated.Sign(env, op)
		if err == nil {
			return signed, nil
		}
		slog.Warn("activator: dedicated activation key failed to sign, falling back to control signer", "op", op, "error", err)
	}

	permissionID, _ := a.control.PermissionFor(op)
	env, err := build(permissionID)
	if err != nil {
		return rpc.TransactionEnvelope{}, fmt.Errorf("build %s: %w", op, err)
	}
	signed, err := a.control.Sign(env, op)
	if err != nil {
		return env, fmt.Errorf("sign %s: %w", op, err)
	}
	return signed, nil
}

// waitForActivation polls until the target's account is visible on-chain,
// declaring success as soon as get_account reports a non-empty address or a
// positive balance — even before the transaction itself reports confirmed,
// downgrading a wait_conf timeout to a warning rather than a hard error.
func (a *Activator) waitForActivation(ctx context.Context, targetHex, txID string) (Outcome, error) {
	value, done, err := polling.Until(ctx, config.PollInterval, config.PollMaxAttempts, func(ctx context.Context, at polling.Attempt) (polling.Result, error) {
		activated, balance, err := a.client.GetAccount(ctx, targetHex)
		if err != nil {
			slog.Debug("activator: probe failed during wait_conf", "attempt", at.Number, "error", err)
			return polling.Continue(), nil
		}
		if activated || balance > 0 {
			return polling.Done(true), nil
		}
		return polling.Continue(), nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return Outcome{}, fmt.Errorf("wait_conf: %w", err)
	}
	if err != nil {
		return Outcome{}, err
	}

	if done {
		activated, _ := value.(bool)
		return Outcome{Activated: activated, TxID: txID}, nil
	}

	return Outcome{
		Activated: false,
		TxID:      txID,
		Warning:   fmt.Sprintf("activation of %s not confirmed within poll budget; broadcast %s accepted", targetHex, txID),
	}, nil
}
