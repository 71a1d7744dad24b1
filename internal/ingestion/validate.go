package ingestion

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// isValidSignature checks that a transaction signature is base58 and the
// right length (64 bytes).
func isValidSignature(sig string) bool {
	decoded, err := base58.Decode(sig)
	if err != nil {
		return false
	}
	return len(decoded) == 64
}

// isOnCurveAddress checks that an address is a 32-byte base58 key on the
// ed25519 curve. Program-derived addresses are deliberately off-curve, so
// this distinguishes wallet senders from PDAs and multisig authorities,
// which the tracker does not support.
func isOnCurveAddress(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
