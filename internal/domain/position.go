package domain

import "encoding/json"

// Position is a wallet's currently-held stake on a market at the most recent
// observation. At most one row per (wallet, market_id); a row disappears from
// the upstream snapshot when the position is closed, which is the trigger for
// reconciliation.
type Position struct {
	Wallet     string
	MarketID   string // condition id, or asset id when the upstream omits it
	Size       float64
	Redeemable bool
	LastSeenAt int64           // ms
	Raw        json.RawMessage // raw upstream payload
}

// Close reasons for PositionClose.Reason.
const (
	CloseReasonManual       = "manual_close"
	CloseReasonMarketClosed = "market_closed"
	CloseReasonRedeemed     = "redeemed"
	CloseReasonPartial      = "partial" // reserved
)

// PositionClose records that a (wallet, market_id) position ceased to exist.
// Identity is (wallet, market_id, closed_at); emission is idempotent on that
// triple, so replaying reconciliation cannot duplicate events.
type PositionClose struct {
	Wallet   string
	MarketID string
	ClosedAt int64           // observation time in ms, not upstream settlement time
	Reason   string          // one of the CloseReason constants
	Raw      json.RawMessage // last-seen payload of the position
}
