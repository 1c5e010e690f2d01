// Package keys loads secp256k1 signing keys for the gas station: either a
// raw hex private key, or a BIP-39 mnemonic walked down a BIP-32 path,
// following TRON's coin type 195 (SLIP-44).
package keys

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// KeyPair is a loaded secp256k1 signing key plus its 65-byte uncompressed
// public key (tronaddr.FromPubKey derives the TRON address from it).
type KeyPair struct {
	PrivateKey *btcec.PrivateKey
	PubKeyUncompressed []byte
}

// FromHex parses a raw hex-encoded secp256k1 private key (with or without a
// leading 0x).
func FromHex(hexKey string) (*KeyPair, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte private key, got %d bytes", len(raw))
	}

	priv, pub := btcec.PrivKeyFromBytes(raw)
	return &KeyPair{PrivateKey: priv, PubKeyUncompressed: pub.SerializeUncompressed()}, nil
}

// FromMnemonicFile reads a BIP-39 mnemonic from path, derives the seed, and
// walks derivationPath (e.g. "m/44'/195'/0'/0/0") to produce a KeyPair.
func FromMnemonicFile(path, derivationPath string) (*KeyPair, error) {
	mnemonic, err := readMnemonicFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mnemonic: %w", err)
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("mnemonic to seed: %w", err)
	}

	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	child, err := deriveByPath(masterKey, derivationPath)
	if err != nil {
		return nil, fmt.Errorf("derive path %q: %w", derivationPath, err)
	}

	privKey, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key at path %q: %w", derivationPath, err)
	}

	slog.Debug("key derived from mnemonic", "path", derivationPath)
	return &KeyPair{PrivateKey: privKey, PubKeyUncompressed: privKey.PubKey().SerializeUncompressed()}, nil
}

func readMnemonicFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read mnemonic file %q: %w", path, err)
	}
	mnemonic := strings.TrimSpace(string(data))
	if mnemonic == "" {
		return "", fmt.Errorf("mnemonic file %q is empty", path)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", fmt.Errorf("mnemonic file %q contains an invalid BIP-39 phrase", path)
	}
	return mnemonic, nil
}

// deriveByPath walks a BIP-32 path string like "m/44'/195'/0'/0/0" from
// masterKey, hardening segments that end in '.
func deriveByPath(masterKey *hdkeychain.ExtendedKey, path string) (*hdkeychain.ExtendedKey, error) {
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] != "m" {
		return nil, fmt.Errorf("path must start with \"m\"")
	}

	key := masterKey
	for _, seg := range segments[1:] {
		hardened := strings.HasSuffix(seg, "'")
		seg = strings.TrimSuffix(seg, "'")

		index, err := strconv.ParseUint(seg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", seg, err)
		}

		childIndex := uint32(index)
		if hardened {
			childIndex += hdkeychain.HardenedKeyStart
		}

		key, err = key.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("derive segment %q: %w", seg, err)
		}
	}

	return key, nil
}
