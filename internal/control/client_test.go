package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polycopy/internal/retry"
)

func TestClient_TargetTraders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/copy/target-traders", r.URL.Path)
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"traders":["0xaaa","0xbbb"],"has_leaderboard_wallets":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	traders, leaderboard, err := client.TargetTraders(t.Context())
	require.NoError(t, err)
	assert.True(t, leaderboard)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, traders)
}

func TestClient_FollowersAndPendingOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/copy/followers":
			_, _ = w.Write([]byte(`{"wallets":["0xccc"]}`))
		case "/api/copy/pending-orders":
			_, _ = w.Write([]byte(`{"order_ids":["order-1","order-2"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	followers, err := client.Followers(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xccc"}, followers)

	pending, err := client.PendingOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"order-1", "order-2"}, pending)
}

func TestClient_SyncTrade(t *testing.T) {
	raw := json.RawMessage(`{"side":"BUY","size":"10"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/copy/sync-trade", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Trade json.RawMessage `json:"trade"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, string(raw), string(req.Trade))

		_, _ = w.Write([]byte(`{"inserted":1}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	inserted, err := client.SyncTrade(t.Context(), raw)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestClient_SyncTradeDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"inserted":0,"message":"already known"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	inserted, err := client.SyncTrade(t.Context(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestClient_ServerErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	_, err := client.SyncTrade(t.Context(), json.RawMessage(`{}`))
	require.Error(t, err)

	var he *retry.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadGateway, he.Status)
}

func TestClient_WSFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/copy/ws-fill", r.URL.Path)

		var req struct {
			OrderID string `json:"order_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-7", req.OrderID)

		_, _ = w.Write([]byte(`{"updated":true,"new_status":"filled","fill_rate":1.0}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	res, err := client.WSFill(t.Context(), "order-7")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, "filled", res.NewStatus)
	assert.InDelta(t, 1.0, res.FillRate, 0.0001)
}

func TestClient_Execute(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/copy/execute", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekret")

	require.NoError(t, client.Execute(t.Context()))
	assert.True(t, called)
}
