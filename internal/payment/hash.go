package payment

import (
	"encoding/hex"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ComputeHash returns the correlation key carried on-chain as the paymentId
// argument. It equals Solidity keccak256(abi.encodePacked(paymentID, tariffID, uint256(amount))).
func ComputeHash(paymentID, tariffID string, amount uint64) string {
	var word [32]byte
	new(big.Int).SetUint64(amount).FillBytes(word[:])

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(paymentID))
	h.Write([]byte(tariffID))
	h.Write(word[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// NormalizeHash lowercases a hash and makes sure it has the 0x prefix
func NormalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	return h
}
