package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polycopy/internal/domain"
)

func testTrade(id, wallet string, tradeTime int64) *domain.Trade {
	return &domain.Trade{
		TradeID:     id,
		Wallet:      wallet,
		TxHash:      "0x" + id,
		ConditionID: "0xcond1",
		Title:       "Will it rain tomorrow?",
		Side:        domain.SideBuy,
		Size:        10,
		Price:       0.42,
		TradeTime:   tradeTime,
		Raw:         []byte(`{"side":"BUY"}`),
	}
}

func TestTradeStore_UpsertIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	rows := []*domain.Trade{
		testTrade("t1", "0xaaa", 1000),
		testTrade("t2", "0xaaa", 2000),
	}

	inserted, err := store.UpsertTrades(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Replaying the same batch inserts nothing new.
	inserted, err = store.UpsertTrades(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	var count int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM trades`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTradeStore_LatestWinsExceptTradeTime(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	first := testTrade("t1", "0xaaa", 5000)
	_, err := store.UpsertTrades(ctx, []*domain.Trade{first})
	require.NoError(t, err)

	update := testTrade("t1", "0xaaa", 3000)
	update.Price = 0.55
	update.Side = domain.SideSell
	_, err = store.UpsertTrades(ctx, []*domain.Trade{update})
	require.NoError(t, err)

	var price float64
	var side string
	var tradeTime int64
	err = pool.QueryRow(ctx,
		`SELECT price, side, trade_time FROM trades WHERE trade_id = $1`, "t1",
	).Scan(&price, &side, &tradeTime)
	require.NoError(t, err)

	assert.InDelta(t, 0.55, price, 0.0001)
	assert.Equal(t, domain.SideSell, side)
	assert.Equal(t, int64(5000), tradeTime, "trade_time must never move backwards")
}

func TestTradeStore_TraderIDNotClobbered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	withTrader := testTrade("t1", "0xaaa", 1000)
	withTrader.TraderID = ptr("trader-42")
	_, err := store.UpsertTrades(ctx, []*domain.Trade{withTrader})
	require.NoError(t, err)

	// A later row without trader attribution keeps the existing value.
	_, err = store.UpsertTrades(ctx, []*domain.Trade{testTrade("t1", "0xaaa", 1000)})
	require.NoError(t, err)

	var traderID *string
	err = pool.QueryRow(ctx, `SELECT trader_id FROM trades WHERE trade_id = $1`, "t1").Scan(&traderID)
	require.NoError(t, err)
	require.NotNil(t, traderID)
	assert.Equal(t, "trader-42", *traderID)
}

func TestTradeStore_LargeBatchChunked(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	rows := make([]*domain.Trade, 0, 750)
	for i := 0; i < 750; i++ {
		rows = append(rows, testTrade(fmt.Sprintf("t-%04d", i), "0xaaa", int64(1000+i)))
	}

	inserted, err := store.UpsertTrades(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 750, inserted)
}
