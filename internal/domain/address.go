package domain

import (
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// NormalizeAddress returns the canonical form of a token or wallet address.
// Every cache key, index key, store query and idempotency key goes through it.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress reports whether two addresses are equal after normalization.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ValidateTokenAddress accepts a 0x-prefixed EVM address or a base58 Solana address.
func ValidateTokenAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ErrEmptyAddress
	}
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		if !common.IsHexAddress(addr) {
			return ErrInvalidAddress
		}
		return nil
	}
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return ErrInvalidAddress
	}
	return nil
}

// IsOnCurve reports whether a base58 Solana address is a valid ed25519 point.
// Program-derived addresses are off-curve and cannot sign, so they are never wallets.
// EVM addresses are always reported as on-curve.
func IsOnCurve(addr string) bool {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return true
	}
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
