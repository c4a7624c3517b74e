package domain

// MarketStatus is the authoritative closed/resolved state of a market as
// reported by the upstream market lookup.
type MarketStatus int

const (
	// MarketStatusUnknown means the lookup could not confirm either way.
	// The reconciler treats unknown as "not closed".
	MarketStatusUnknown MarketStatus = iota
	MarketStatusOpen
	MarketStatusClosed
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusOpen:
		return "open"
	case MarketStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
