// Package signer abstracts the key that authorizes Safe transactions. The
// engine never generates key material; it is handed in at startup.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Provider signs Safe transaction digests for a chain.
type Provider interface {
	// Sign produces an owner signature over a Safe transaction hash in the
	// 65-byte r||s||v format execTransaction expects.
	Sign(ctx context.Context, chainID int64, digest common.Hash) ([]byte, error)
	// Address returns the signing address for a chain.
	Address(chainID int64) (common.Address, error)
}

// LocalProvider signs with a single in-process key used on every chain.
type LocalProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalProvider loads a hex-encoded private key.
func NewLocalProvider(privateKeyHex string) (*LocalProvider, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return &LocalProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Sign signs the digest directly (the digest is already the EIP-712 Safe
// transaction hash, so no prefixing is applied) and normalizes the recovery
// id to the 27/28 convention.
func (p *LocalProvider) Sign(_ context.Context, _ int64, digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Address returns the signer address.
func (p *LocalProvider) Address(_ int64) (common.Address, error) {
	return p.address, nil
}
