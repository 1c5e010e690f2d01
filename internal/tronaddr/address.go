// Package tronaddr validates and derives TRON base58check addresses.
package tronaddr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// AddressPrefix is the single byte TRON prepends to the 20-byte hash before
// base58check encoding. Every mainnet and testnet address shares it; TRON
// does not use separate address version bytes per network the way BTC does.
const AddressPrefix byte = 0x41

// Validate decodes addr as base58check and verifies its length and prefix.
// It does not verify the address is activated on-chain — that is an RPC
// concern.
func Validate(addr string) error {
	_, err := Decode(addr)
	return err
}

// Decode base58check-decodes a TRON address and returns its 21-byte payload
// (prefix + 20-byte hash), verifying the checksum.
func Decode(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid TRON address %q: base58 decode failed: %w", addr, err)
	}
	if len(raw) != 25 {
		return nil, fmt.Errorf("invalid TRON address %q: decoded to %d bytes, expected 25", addr, len(raw))
	}

	payload, checksum := raw[:21], raw[21:]
	if !bytes.Equal(checksum, checksum4(payload)) {
		return nil, fmt.Errorf("invalid TRON address %q: checksum mismatch", addr)
	}
	if payload[0] != AddressPrefix {
		return nil, fmt.Errorf("invalid TRON address %q: unexpected prefix 0x%02x", addr, payload[0])
	}

	return payload, nil
}

// Encode base58check-encodes a 21-byte TRON payload (prefix + hash) into its
// address string.
func Encode(payload []byte) (string, error) {
	if len(payload) != 21 {
		return "", fmt.Errorf("payload must be 21 bytes, got %d", len(payload))
	}
	full := append(append([]byte{}, payload...), checksum4(payload)...)
	return base58.Encode(full), nil
}

// FromHex converts a TRON hex address (41-prefixed, 21 bytes as 42 hex
// chars) into its base58check form.
func FromHex(hexAddr string) (string, error) {
	payload, err := decodeHex(hexAddr)
	if err != nil {
		return "", err
	}
	return Encode(payload)
}

// ToHex converts a base58check address into its hex form (41 + 40 hex
// chars), as used in TRON's HTTP API request/response bodies.
func ToHex(addr string) (string, error) {
	payload, err := Decode(addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", payload), nil
}

// FromPubKey derives the TRON address for an uncompressed secp256k1 public
// key, following the same Keccak256-of-uncompressed-point-minus-prefix
// scheme as Ethereum: the top 12 bytes of the hash are discarded and the
// TRON 0x41 prefix is prepended to the remaining 20.
func FromPubKey(pubKeyUncompressed []byte) (string, error) {
	if len(pubKeyUncompressed) != 65 || pubKeyUncompressed[0] != 0x04 {
		return "", fmt.Errorf("expected 65-byte uncompressed public key, got %d bytes", len(pubKeyUncompressed))
	}
	hash := crypto.Keccak256(pubKeyUncompressed[1:])
	payload := append([]byte{AddressPrefix}, hash[12:]...)
	return Encode(payload)
}

func checksum4(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func decodeHex(s string) ([]byte, error) {
	if len(s) != 42 {
		return nil, fmt.Errorf("expected 42-char hex address, got %d chars", len(s))
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	return out, nil
}
