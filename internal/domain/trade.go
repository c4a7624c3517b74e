package domain

import "encoding/json"

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade represents one fill on one market by one wallet.
// Identity is TradeID: the upstream transaction hash when present, otherwise
// a deterministic synthetic id (see idhash.SyntheticTradeID).
// Rows are upserted latest-wins on non-identity columns and never deleted.
type Trade struct {
	TradeID      string  // identity
	Wallet       string  // canonical lowercase hex
	TraderID     *string // internal trader id (nullable)
	TxHash       string  // upstream transaction hash, may be empty
	ConditionID  string  // market condition id (required)
	Title        string  // market title passthrough
	MarketSlug   string
	EventSlug    string
	Side         string  // BUY | SELL
	Outcome      *string // YES | NO (nullable)
	OutcomeIndex *int
	Size         float64         // shares, non-negative
	Price        float64         // in [0,1]
	TradeTime    int64           // Unix timestamp in milliseconds
	Raw          json.RawMessage // raw upstream payload for forensic replay

	SourceUpdatedAt int64 // ms, refreshed on every upsert
	CreatedAt       int64 // ms, set by the store on first insert
}
