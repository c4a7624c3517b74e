package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"polycopy/internal/domain"
	"polycopy/internal/idhash"
)

// apiTrade mirrors one element of the venue's /trades response and the
// payload of activity-feed trade events.
type apiTrade struct {
	ProxyWallet     string    `json:"proxyWallet"`
	TransactionHash string    `json:"transactionHash"`
	ConditionID     string    `json:"conditionId"`
	Asset           string    `json:"asset"`
	Side            string    `json:"side"`
	Outcome         string    `json:"outcome"`
	OutcomeIndex    *int      `json:"outcomeIndex"`
	Size            Float     `json:"size"`
	Price           Float     `json:"price"`
	Timestamp       Timestamp `json:"timestamp"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	EventSlug       string    `json:"eventSlug"`
}

// apiPosition mirrors one element of the venue's /positions response.
type apiPosition struct {
	ConditionID string `json:"conditionId"`
	Asset       string `json:"asset"`
	Size        Float  `json:"size"`
	Redeemable  bool   `json:"redeemable"`
}

// apiMarket mirrors the market-status lookup response.
type apiMarket struct {
	Closed   *bool `json:"closed"`
	Resolved *bool `json:"resolved"`
}

// ParseTrade converts a raw upstream trade object into a domain.Trade.
// The raw payload is retained verbatim on the row.
func ParseTrade(raw json.RawMessage) (*domain.Trade, error) {
	var at apiTrade
	if err := json.Unmarshal(raw, &at); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}

	wallet, err := domain.NormalizeWallet(at.ProxyWallet)
	if err != nil {
		return nil, fmt.Errorf("trade wallet: %w", err)
	}
	if at.ConditionID == "" {
		return nil, fmt.Errorf("trade for %s: missing conditionId", wallet)
	}
	if !at.Timestamp.Set {
		return nil, fmt.Errorf("trade for %s on %s: missing timestamp", wallet, at.ConditionID)
	}
	if !at.Size.Set || at.Size.Value < 0 {
		return nil, fmt.Errorf("trade for %s on %s: missing or negative size", wallet, at.ConditionID)
	}
	if !at.Price.Set || at.Price.Value < 0 || at.Price.Value > 1 {
		return nil, fmt.Errorf("trade for %s on %s: price out of [0,1]", wallet, at.ConditionID)
	}

	side := strings.ToUpper(at.Side)
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, fmt.Errorf("trade for %s on %s: unknown side %q", wallet, at.ConditionID, at.Side)
	}

	t := &domain.Trade{
		TradeID:      idhash.TradeID(at.TransactionHash, wallet, at.ConditionID, at.Timestamp.Ms),
		Wallet:       wallet,
		TxHash:       at.TransactionHash,
		ConditionID:  at.ConditionID,
		Title:        at.Title,
		MarketSlug:   at.Slug,
		EventSlug:    at.EventSlug,
		Side:         side,
		OutcomeIndex: at.OutcomeIndex,
		Size:         at.Size.Value,
		Price:        at.Price.Value,
		TradeTime:    at.Timestamp.Ms,
		Raw:          raw,
	}
	if at.Outcome != "" {
		outcome := at.Outcome
		t.Outcome = &outcome
	}
	return t, nil
}

// parsePosition converts a raw upstream position object into a domain.Position.
func parsePosition(wallet string, raw json.RawMessage, seenAt int64) (*domain.Position, error) {
	var ap apiPosition
	if err := json.Unmarshal(raw, &ap); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}

	marketID := ap.ConditionID
	if marketID == "" {
		marketID = ap.Asset
	}
	if marketID == "" {
		return nil, fmt.Errorf("position for %s: neither conditionId nor asset present", wallet)
	}
	if !ap.Size.Set {
		return nil, fmt.Errorf("position for %s on %s: missing size", wallet, marketID)
	}

	return &domain.Position{
		Wallet:     wallet,
		MarketID:   marketID,
		Size:       ap.Size.Value,
		Redeemable: ap.Redeemable,
		LastSeenAt: seenAt,
		Raw:        raw,
	}, nil
}
