package signer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fueltron/gasstation/internal/keys"
)

// signDigest produces a 65-byte recoverable secp256k1 signature (r‖s‖v)
// over a 32-byte digest, the same shape go-ethereum's crypto.Sign returns
// for EVM transactions; TRON's signature verification accepts the identical
// encoding.
func signDigest(key *keys.KeyPair, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, key.PrivateKey.ToECDSA())
	if err != nil {
		return nil, fmt.Errorf("secp256k1 sign: %w", err)
	}
	return sig, nil
}
