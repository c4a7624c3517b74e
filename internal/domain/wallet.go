package domain

import (
	"fmt"
	"strings"
)

const walletHexLen = 40

// NormalizeWallet lowercases and validates an EVM wallet address. Every
// wallet entering the pipeline passes through here so that set membership
// and store keys compare case-insensitively.
func NormalizeWallet(raw string) (string, error) {
	w := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(w, "0x") {
		return "", fmt.Errorf("wallet %q: missing 0x prefix", raw)
	}
	hexPart := w[2:]
	if len(hexPart) != walletHexLen {
		return "", fmt.Errorf("wallet %q: want %d hex chars, got %d", raw, walletHexLen, len(hexPart))
	}
	for _, r := range hexPart {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("wallet %q: invalid hex", raw)
		}
	}
	return w, nil
}

// NormalizeWallets normalizes a list, dropping invalid entries and
// duplicates while preserving first-seen order.
func NormalizeWallets(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		w, err := NormalizeWallet(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
