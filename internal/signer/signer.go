// Package signer resolves which key signs a TRON transaction envelope
// (a permission-scoped control key, with an optional owner-key fallback)
// and signs the resulting raw_data_hex.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/fueltron/gasstation/internal/config"
	"github.com/fueltron/gasstation/internal/keys"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/rpc"
)

// Op names, used against the control PermissionSpec's allow-set.
const (
	OpTransfer          = "Transfer"
	OpFreezeBalanceV2   = "FreezeBalanceV2"
	OpDelegateResource  = "DelegateResource"
	OpUnDelegateResource = "UnDelegateResource"
	OpCreateAccount     = "CreateAccount"
)

// Policy is the process-wide switch governing what happens when a signing
// request targets an op outside the control key's allow-set.
type Policy string

const (
	// PolicyControlOnly fails fast for any op outside the allow-set.
	PolicyControlOnly Policy = "control_only"
	// PolicyControlWithOwnerFallback signs with the owner key when the op
	// falls outside the control allow-set and an owner key is configured.
	PolicyControlWithOwnerFallback Policy = "control_with_owner_fallback"
	// PolicyOwnerOnly always signs with the owner key, bypassing permission
	// stamping entirely. Not recommended; exists for bootstrap scenarios.
	PolicyOwnerOnly Policy = "owner_only"
)

// NewPolicy constructs the SigningPolicy sum type from configuration: an
// owner-only signer if no control key exists, control-with-fallback if
// fallbackToOwner is set and an owner key exists, control-only otherwise.
func NewPolicy(hasControlKey, hasOwnerKey, fallbackToOwner bool) (Policy, error) {
	switch {
	case !hasControlKey && hasOwnerKey:
		return PolicyOwnerOnly, nil
	case hasControlKey && fallbackToOwner && hasOwnerKey:
		return PolicyControlWithOwnerFallback, nil
	case hasControlKey:
		return PolicyControlOnly, nil
	default:
		return "", config.ErrKeyNotConfigured
	}
}

// Signer signs TRON transaction envelopes, choosing the control key when the
// requested op is within the control key's allow-set. It does not modify
// raw_data; PermissionFor tells callers which permission id to pass at build
// time.
type Signer struct {
	policy     Policy
	permission models.PermissionSpec
	control    *keys.KeyPair
	owner      *keys.KeyPair
}

// New builds a Signer. control may be nil only under PolicyOwnerOnly; owner
// may be nil only under PolicyControlOnly.
func New(policy Policy, permission models.PermissionSpec, control, owner *keys.KeyPair) (*Signer, error) {
	if policy != PolicyOwnerOnly && control == nil {
		return nil, fmt.Errorf("%w: control key required for policy %q", config.ErrKeyNotConfigured, policy)
	}
	if policy != PolicyControlOnly && owner == nil {
		return nil, fmt.Errorf("%w: owner key required for policy %q", config.ErrKeyNotConfigured, policy)
	}
	return &Signer{policy: policy, permission: permission, control: control, owner: owner}, nil
}

// Sign signs the SHA-256 of the raw transaction bytes with the chosen key,
// appending a 65-byte (r‖s‖v) signature. Callers that intend to sign with
// the control key must have already asked PermissionFor before building
// env, so the node embeds Permission_id in raw_data itself: TRON serializes
// raw_data_hex as the protobuf encoding of raw_data, so a Permission_id
// stamped in after the fact by patching decoded JSON would not appear in
// the bytes actually signed.
func (s *Signer) Sign(env rpc.TransactionEnvelope, op string) (rpc.TransactionEnvelope, error) {
	key, usedOwner, err := s.selectKey(op)
	if err != nil {
		return env, err
	}

	rawBytes, err := hex.DecodeString(env.RawDataHex)
	if err != nil {
		return env, fmt.Errorf("decode raw_data_hex: %w", err)
	}
	digest := sha256.Sum256(rawBytes)

	sig, err := signDigest(key, digest[:])
	if err != nil {
		return env, fmt.Errorf("sign transaction: %w", err)
	}

	env.Signature = append(env.Signature, hex.EncodeToString(sig))

	slog.Debug("transaction signed", "op", op, "usedOwnerKey", usedOwner, "txID", env.TxID)
	return env, nil
}

// selectKey resolves which key to use for op under the signer's policy,
// enforcing the permission allow-set.
func (s *Signer) selectKey(op string) (key *keys.KeyPair, usedOwner bool, err error) {
	switch s.policy {
	case PolicyOwnerOnly:
		return s.owner, true, nil

	case PolicyControlOnly:
		if !s.permission.Allows(op) {
			return nil, false, fmt.Errorf("%w: op %q not in control allow-set", config.ErrPermissionDenied, op)
		}
		return s.control, false, nil

	case PolicyControlWithOwnerFallback:
		if s.permission.Allows(op) {
			return s.control, false, nil
		}
		slog.Warn("op outside control allow-set, falling back to owner key", "op", op)
		return s.owner, true, nil

	default:
		return nil, false, fmt.Errorf("%w: unknown signing policy %q", config.ErrConfigInvalid, s.policy)
	}
}

// PermissionFor reports, for op, whether signing will use the control key
// and, if so, the permission id that must be passed to the transaction's
// build call (createtransaction/freezebalancev2/delegateresource/...) so
// the node bakes Permission_id into raw_data before serializing raw_data_hex.
// It mirrors selectKey's routing without needing the private key material,
// so a caller can decide the permission id before Build, not after Sign.
func (s *Signer) PermissionFor(op string) (permissionID uint8, usesControl bool) {
	switch s.policy {
	case PolicyOwnerOnly:
		return 0, false
	case PolicyControlOnly:
		if !s.permission.Allows(op) {
			return 0, false
		}
		return s.permission.PermissionID, true
	case PolicyControlWithOwnerFallback:
		if s.permission.Allows(op) {
			return s.permission.PermissionID, true
		}
		return 0, false
	default:
		return 0, false
	}
}
