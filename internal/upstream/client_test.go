package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polycopy/internal/domain"
	"polycopy/internal/ratelimit"
	"polycopy/internal/retry"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func testLimiter() *ratelimit.Limiter { return ratelimit.New(10000, 10000) }

func tradeJSON(ts int64) string {
	return fmt.Sprintf(`{
		"proxyWallet": %q,
		"transactionHash": "0xhash%d",
		"conditionId": "0xcond1",
		"side": "SELL",
		"size": 2,
		"price": 0.4,
		"timestamp": %d
	}`, testWallet, ts, ts)
}

func TestClient_TradesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, testWallet, r.URL.Query().Get("user"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		fmt.Fprintf(w, "[%s,%s]", tradeJSON(1700000002), tradeJSON(1700000001))
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithDataBase(srv.URL))
	trades, err := c.TradesPage(t.Context(), testWallet, 200, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1700000002000), trades[0].TradeTime)
}

func TestClient_TradesPage_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithDataBase(srv.URL))
	trades, err := c.TradesPage(t.Context(), testWallet, 200, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_TradesPage_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithDataBase(srv.URL))
	_, err := c.TradesPage(t.Context(), testWallet, 200, 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var he *retry.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.Status)
}

func TestClient_Positions_PaginatesUntilShortPage(t *testing.T) {
	position := func(i int) string {
		return fmt.Sprintf(`{"conditionId":"0xcond%d","size":1,"redeemable":false}`, i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		offset := r.URL.Query().Get("offset")

		w.Write([]byte("["))
		switch offset {
		case "0":
			for i := 0; i < 500; i++ {
				if i > 0 {
					w.Write([]byte(","))
				}
				fmt.Fprint(w, position(i))
			}
		case "500":
			fmt.Fprint(w, position(500))
		default:
			t.Errorf("unexpected offset %s", offset)
		}
		w.Write([]byte("]"))
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithDataBase(srv.URL))
	positions, err := c.Positions(t.Context(), testWallet)
	require.NoError(t, err)
	assert.Len(t, positions, 501)
}

func TestClient_Positions_NotFoundMeansEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusBadRequest} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(testLimiter(), WithDataBase(srv.URL))
		positions, err := c.Positions(t.Context(), testWallet)
		srv.Close()
		require.NoError(t, err, "status %d", status)
		assert.Empty(t, positions)
	}
}

func TestClient_MarketStatus(t *testing.T) {
	cases := []struct {
		body   string
		status int
		want   domain.MarketStatus
	}{
		{body: `{"closed":true,"resolved":false}`, status: 200, want: domain.MarketStatusClosed},
		{body: `{"closed":false,"resolved":true}`, status: 200, want: domain.MarketStatusClosed},
		{body: `{"closed":false,"resolved":false}`, status: 200, want: domain.MarketStatusOpen},
		{body: `{}`, status: 200, want: domain.MarketStatusUnknown},
		{body: ``, status: 404, want: domain.MarketStatusUnknown},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/markets/0xcond1", r.URL.Path)
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		}))
		c := NewClient(testLimiter(), WithGammaBase(srv.URL))
		got, err := c.MarketStatus(t.Context(), "0xcond1")
		srv.Close()
		require.NoError(t, err, "case %+v", tc)
		assert.Equal(t, tc.want, got, "case %+v", tc)
	}
}

func TestClient_MarketStatus_ErrorIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithGammaBase(srv.URL))
	got, err := c.MarketStatus(t.Context(), "0xcond1")
	require.Error(t, err)
	assert.Equal(t, domain.MarketStatusUnknown, got)
}

func TestClient_MalformedTradeIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"proxyWallet":%q,"conditionId":"0xcond1","side":"BUY","size":"oops","price":0.5,"timestamp":1700000000}]`, testWallet)
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithDataBase(srv.URL))
	_, err := c.TradesPage(t.Context(), testWallet, 200, 0)
	require.Error(t, err)
	assert.False(t, retry.IsRetryable(err))
}

// Decoding the trade page into raw messages first keeps the original payload
// attached to each row.
func TestClient_RawPayloadPreserved(t *testing.T) {
	body := tradeJSON(1700000009)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s]", body)
	}))
	defer srv.Close()

	c := NewClient(testLimiter(), WithDataBase(srv.URL))
	trades, err := c.TradesPage(t.Context(), testWallet, 200, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	var got, want map[string]any
	require.NoError(t, json.Unmarshal(trades[0].Raw, &got))
	require.NoError(t, json.Unmarshal([]byte(body), &want))
	assert.Equal(t, want, got)
}
