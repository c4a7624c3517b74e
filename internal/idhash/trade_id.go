package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SyntheticTradeID computes a deterministic trade_id for upstream trades that
// carry no transaction hash. Formula: SHA256(wallet|market|timestamp_ms).
// Returns hex-encoded hash (64 characters).
func SyntheticTradeID(wallet, market string, timestampMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", wallet, market, timestampMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// TradeID resolves the identity of a trade: the upstream tx hash when present,
// else the synthetic tuple id.
func TradeID(txHash, wallet, market string, timestampMs int64) string {
	if txHash != "" {
		return txHash
	}
	return SyntheticTradeID(wallet, market, timestampMs)
}
