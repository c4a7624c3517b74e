package domain

// PollState tracks per-wallet ingestion cursors.
//
// LastTradeTimeSeen is the watermark: a monotone non-decreasing upper bound
// (ms) on trades already accounted for. Trades with timestamp <= watermark
// are discarded during a poll cycle. Tier is not stored; a wallet is hot iff
// it appears in the active-follow set at read time.
type PollState struct {
	Wallet              string
	LastTradeTimeSeen   int64 // ms
	LastPositionCheckAt int64 // ms, last completed reconciliation
	UpdatedAt           int64 // ms
}
