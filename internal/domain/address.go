package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidateAddress checks that addr is a well-formed Solana address:
// base58 text decoding to exactly 32 bytes.
func ValidateAddress(addr string) error {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("address %q: expected 32 bytes, got %d", addr, len(decoded))
	}
	return nil
}

// IsOnCurve reports whether addr is a valid ed25519 curve point.
// Wallet addresses are on-curve; program-derived addresses (pools,
// vaults) are off-curve. The watcher proxy uses this to separate
// human observers from program accounts.
func IsOnCurve(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
