package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polycopy/internal/domain"
)

// stubOracle serves market statuses from a fixed map; anything absent is
// unknown. Calls are recorded for assertion.
type stubOracle struct {
	mu     sync.Mutex
	closed map[string]domain.MarketStatus
	err    error
	calls  []string
}

func (o *stubOracle) MarketStatus(_ context.Context, marketID string) (domain.MarketStatus, error) {
	o.mu.Lock()
	o.calls = append(o.calls, marketID)
	o.mu.Unlock()
	if o.err != nil {
		return domain.MarketStatusUnknown, o.err
	}
	return o.closed[marketID], nil
}

func pos(marketID string, size float64) *domain.Position {
	return &domain.Position{MarketID: marketID, Size: size, LastSeenAt: 1000}
}

func TestReconcile_MarketCloseClassification(t *testing.T) {
	oracle := &stubOracle{closed: map[string]domain.MarketStatus{"0xm2": domain.MarketStatusClosed}}
	r := New(oracle, 0)

	prev := []*domain.Position{pos("0xm1", 5), pos("0xm2", 3)}
	curr := []*domain.Position{pos("0xm1", 5)}

	res, err := r.Reconcile(t.Context(), "0xw", prev, curr, 9000)
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, "0xw", res.Closed[0].Wallet)
	assert.Equal(t, "0xm2", res.Closed[0].MarketID)
	assert.Equal(t, int64(9000), res.Closed[0].ClosedAt)
	assert.Equal(t, domain.CloseReasonMarketClosed, res.Closed[0].Reason)
	assert.Empty(t, res.Changed)
	assert.Equal(t, []string{"0xm2"}, oracle.calls, "surviving positions never hit the oracle")
}

func TestReconcile_OpenMarketIsManualClose(t *testing.T) {
	oracle := &stubOracle{closed: map[string]domain.MarketStatus{"0xm1": domain.MarketStatusOpen}}
	r := New(oracle, 0)

	res, err := r.Reconcile(t.Context(), "0xw", []*domain.Position{pos("0xm1", 5)}, nil, 9000)
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, domain.CloseReasonManual, res.Closed[0].Reason)
}

func TestReconcile_UnknownMarketIsManualClose(t *testing.T) {
	oracle := &stubOracle{}
	r := New(oracle, 0)

	res, err := r.Reconcile(t.Context(), "0xw", []*domain.Position{pos("0xm9", 5)}, nil, 9000)
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, domain.CloseReasonManual, res.Closed[0].Reason)
}

func TestReconcile_RedeemableSkipsOracle(t *testing.T) {
	oracle := &stubOracle{}
	r := New(oracle, 0)

	p := pos("0xm1", 5)
	p.Redeemable = true

	res, err := r.Reconcile(t.Context(), "0xw", []*domain.Position{p}, nil, 9000)
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, domain.CloseReasonRedeemed, res.Closed[0].Reason)
	assert.Empty(t, oracle.calls)
}

func TestReconcile_PartialReductionIsNotAClose(t *testing.T) {
	oracle := &stubOracle{}
	r := New(oracle, 0)

	res, err := r.Reconcile(t.Context(), "0xw",
		[]*domain.Position{pos("0xm1", 5)},
		[]*domain.Position{pos("0xm1", 2)},
		9000)
	require.NoError(t, err)

	assert.Empty(t, res.Closed)
	require.Len(t, res.Changed, 1)
	assert.Equal(t, "0xm1", res.Changed[0].MarketID)
	assert.Equal(t, 2.0, res.Changed[0].Size)
	assert.Empty(t, oracle.calls)
}

func TestReconcile_DeltaWithinToleranceIgnored(t *testing.T) {
	r := New(&stubOracle{}, 0)

	res, err := r.Reconcile(t.Context(), "0xw",
		[]*domain.Position{pos("0xm1", 5.000)},
		[]*domain.Position{pos("0xm1", 5.005)},
		9000)
	require.NoError(t, err)

	assert.Empty(t, res.Closed)
	assert.Empty(t, res.Changed)
}

func TestReconcile_EmptyCurrentClosesEverything(t *testing.T) {
	oracle := &stubOracle{closed: map[string]domain.MarketStatus{"0xm2": domain.MarketStatusClosed}}
	r := New(oracle, 0)

	prev := []*domain.Position{pos("0xm1", 1), pos("0xm2", 2), pos("0xm3", 3)}

	res, err := r.Reconcile(t.Context(), "0xw", prev, nil, 9000)
	require.NoError(t, err)

	require.Len(t, res.Closed, 3)
	assert.Equal(t, "0xm1", res.Closed[0].MarketID)
	assert.Equal(t, "0xm2", res.Closed[1].MarketID)
	assert.Equal(t, "0xm3", res.Closed[2].MarketID)
	assert.Equal(t, domain.CloseReasonMarketClosed, res.Closed[1].Reason)
}

func TestReconcile_Deterministic(t *testing.T) {
	oracle := &stubOracle{closed: map[string]domain.MarketStatus{"0xm2": domain.MarketStatusClosed}}
	r := New(oracle, 0)

	prev := []*domain.Position{pos("0xm3", 3), pos("0xm1", 1), pos("0xm2", 2)}

	first, err := r.Reconcile(t.Context(), "0xw", prev, nil, 9000)
	require.NoError(t, err)

	second, err := r.Reconcile(t.Context(), "0xw", prev, nil, 9000)
	require.NoError(t, err)

	assert.Equal(t, first.Closed, second.Closed)
}

func TestReconcile_OracleFailureAbortsPass(t *testing.T) {
	oracle := &stubOracle{err: errors.New("gamma unreachable")}
	r := New(oracle, 0)

	_, err := r.Reconcile(t.Context(), "0xw", []*domain.Position{pos("0xm1", 5)}, nil, 9000)
	assert.Error(t, err)
}

func TestReconcile_CarriesLastSeenRaw(t *testing.T) {
	r := New(&stubOracle{}, 0)

	p := pos("0xm1", 5)
	p.Raw = []byte(`{"size":5,"conditionId":"0xm1"}`)

	res, err := r.Reconcile(t.Context(), "0xw", []*domain.Position{p}, nil, 9000)
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.JSONEq(t, string(p.Raw), string(res.Closed[0].Raw))
}
