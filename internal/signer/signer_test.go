package signer

import (
	"testing"

	"github.com/fueltron/gasstation/internal/keys"
	"github.com/fueltron/gasstation/internal/models"
	"github.com/fueltron/gasstation/internal/rpc"
)

func testKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.FromHex("0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("FromHex() error = %v", err)
	}
	return kp
}

func testEnvelope() rpc.TransactionEnvelope {
	return rpc.TransactionEnvelope{
		TxID: "abc123",
		RawData: map[string]any{
			"contract": []any{
				map[string]any{"type": "TransferContract"},
			},
		},
		RawDataHex: "0a02aabb",
	}
}

func TestNewPolicy_OwnerOnlyWhenNoControlKey(t *testing.T) {
	p, err := NewPolicy(false, true, false)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	if p != PolicyOwnerOnly {
		t.Errorf("expected PolicyOwnerOnly, got %s", p)
	}
}

func TestNewPolicy_ControlWithFallback(t *testing.T) {
	p, err := NewPolicy(true, true, true)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	if p != PolicyControlWithOwnerFallback {
		t.Errorf("expected PolicyControlWithOwnerFallback, got %s", p)
	}
}

func TestNewPolicy_ControlOnly(t *testing.T) {
	p, err := NewPolicy(true, false, false)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	if p != PolicyControlOnly {
		t.Errorf("expected PolicyControlOnly, got %s", p)
	}
}

func TestNewPolicy_NoKeysErrors(t *testing.T) {
	if _, err := NewPolicy(false, false, false); err == nil {
		t.Error("expected error when no keys are configured")
	}
}

func TestSign_ControlOnlyAllowedOp(t *testing.T) {
	control := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2, AllowedOps: []string{OpTransfer, OpFreezeBalanceV2, OpDelegateResource}}

	s, err := New(PolicyControlOnly, perm, control, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	signed, err := s.Sign(testEnvelope(), OpTransfer)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(signed.Signature) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(signed.Signature))
	}
	if len(signed.Signature[0]) != 130 { // 65 bytes hex-encoded
		t.Errorf("expected 130-char hex signature, got %d chars", len(signed.Signature[0]))
	}
}

func TestSign_ControlOnlyDeniedOp(t *testing.T) {
	control := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2, AllowedOps: []string{OpFreezeBalanceV2}}

	s, err := New(PolicyControlOnly, perm, control, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := s.Sign(testEnvelope(), OpTransfer); err == nil {
		t.Error("expected permission error for op outside allow-set under control-only policy")
	}
}

func TestSign_FallsBackToOwnerWhenDenied(t *testing.T) {
	control := testKeyPair(t)
	owner := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2, AllowedOps: []string{OpFreezeBalanceV2}}

	s, err := New(PolicyControlWithOwnerFallback, perm, control, owner)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	signed, err := s.Sign(testEnvelope(), OpTransfer)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(signed.Signature) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(signed.Signature))
	}
}

func TestSign_OwnerOnlySkipsPermissionStamp(t *testing.T) {
	owner := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2}

	s, err := New(PolicyOwnerOnly, perm, nil, owner)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	env := testEnvelope()
	originalHex := env.RawDataHex
	signed, err := s.Sign(env, OpCreateAccount)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if signed.RawDataHex != originalHex {
		t.Error("owner-only signing should not stamp a permission id or rewrite raw_data_hex")
	}
}

func TestNew_RejectsMissingControlKey(t *testing.T) {
	perm := models.PermissionSpec{PermissionID: 2}
	if _, err := New(PolicyControlOnly, perm, nil, nil); err == nil {
		t.Error("expected error when control key is nil under PolicyControlOnly")
	}
}

func TestPermissionFor_ControlOnlyAllowedOp(t *testing.T) {
	control := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2, AllowedOps: []string{OpTransfer}}
	s, err := New(PolicyControlOnly, perm, control, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id, usesControl := s.PermissionFor(OpTransfer)
	if !usesControl || id != 2 {
		t.Errorf("PermissionFor() = (%d, %v), want (2, true)", id, usesControl)
	}
}

func TestPermissionFor_FallsBackToOwnerWhenDenied(t *testing.T) {
	control := testKeyPair(t)
	owner := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2, AllowedOps: []string{OpFreezeBalanceV2}}
	s, err := New(PolicyControlWithOwnerFallback, perm, control, owner)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id, usesControl := s.PermissionFor(OpTransfer)
	if usesControl || id != 0 {
		t.Errorf("PermissionFor() = (%d, %v), want (0, false) for op outside allow-set", id, usesControl)
	}
}

func TestPermissionFor_OwnerOnlyNeverUsesControl(t *testing.T) {
	owner := testKeyPair(t)
	perm := models.PermissionSpec{PermissionID: 2}
	s, err := New(PolicyOwnerOnly, perm, nil, owner)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, usesControl := s.PermissionFor(OpCreateAccount); usesControl {
		t.Error("PolicyOwnerOnly should never route through the control key")
	}
}

func TestNew_RejectsMissingOwnerKey(t *testing.T) {
	perm := models.PermissionSpec{PermissionID: 2}
	control := testKeyPair(t)
	if _, err := New(PolicyOwnerOnly, perm, control, nil); err == nil {
		t.Error("expected error when owner key is nil under PolicyOwnerOnly")
	}
}
