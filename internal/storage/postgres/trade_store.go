package postgres

import (
	"context"
	"fmt"
	"time"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const upsertTradeQuery = `
	INSERT INTO trades (
		trade_id, wallet, trader_id, tx_hash, condition_id, title,
		market_slug, event_slug, side, outcome, outcome_index,
		size, price, trade_time, raw, source_updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (trade_id) DO UPDATE SET
		wallet            = EXCLUDED.wallet,
		trader_id         = COALESCE(EXCLUDED.trader_id, trades.trader_id),
		tx_hash           = EXCLUDED.tx_hash,
		condition_id      = EXCLUDED.condition_id,
		title             = EXCLUDED.title,
		market_slug       = EXCLUDED.market_slug,
		event_slug        = EXCLUDED.event_slug,
		side              = EXCLUDED.side,
		outcome           = EXCLUDED.outcome,
		outcome_index     = EXCLUDED.outcome_index,
		size              = EXCLUDED.size,
		price             = EXCLUDED.price,
		trade_time        = GREATEST(trades.trade_time, EXCLUDED.trade_time),
		raw               = EXCLUDED.raw,
		source_updated_at = EXCLUDED.source_updated_at
	RETURNING (xmax = 0) AS inserted
`

// UpsertTrades batch-upserts rows keyed on trade_id, chunked at
// storage.MaxTradeBatch rows per transaction. Latest-wins on non-identity
// columns; trade_time is guarded monotone. Returns the count of new rows.
func (s *TradeStore) UpsertTrades(ctx context.Context, rows []*domain.Trade) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	for start := 0; start < len(rows); start += storage.MaxTradeBatch {
		end := start + storage.MaxTradeBatch
		if end > len(rows) {
			end = len(rows)
		}
		n, err := s.upsertChunk(ctx, rows[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (s *TradeStore) upsertChunk(ctx context.Context, rows []*domain.Trade) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	nowMs := time.Now().UnixMilli()
	inserted := 0

	for _, t := range rows {
		if t == nil || t.TradeID == "" || t.Wallet == "" || t.ConditionID == "" {
			return 0, storage.ErrInvalidInput
		}
		sourceUpdated := t.SourceUpdatedAt
		if sourceUpdated == 0 {
			sourceUpdated = nowMs
		}

		var isNew bool
		err := tx.QueryRow(ctx, upsertTradeQuery,
			t.TradeID,
			t.Wallet,
			t.TraderID,
			nullIfEmpty(t.TxHash),
			t.ConditionID,
			t.Title,
			t.MarketSlug,
			t.EventSlug,
			t.Side,
			t.Outcome,
			t.OutcomeIndex,
			t.Size,
			t.Price,
			t.TradeTime,
			rawOrNil(t.Raw),
			sourceUpdated,
		).Scan(&isNew)
		if err != nil {
			return 0, fmt.Errorf("upsert trade %s: %w", t.TradeID, err)
		}
		if isNew {
			inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOrNil(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
