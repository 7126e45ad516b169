package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"TradeSentry/internal/model"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestExchange points a BinanceFutures client at an httptest server
// that routes canned JSON per API path.
func setupTestExchange(t *testing.T, handlers map[string]interface{}) (*httptest.Server, *BinanceFutures) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response, ok := handlers[r.URL.Path]
		require.True(t, ok, "unexpected request path %s", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(response)
		require.NoError(t, err)
	}))

	client := futures.NewClient("test-key", "test-secret")
	client.BaseURL = server.URL
	client.HTTPClient = server.Client()

	return server, &BinanceFutures{
		client: client,
		logger: log.NewHelper(log.DefaultLogger),
	}
}

func TestOpenMarketPosition_FeeFromNotional(t *testing.T) {
	server, b := setupTestExchange(t, map[string]interface{}{
		"/fapi/v1/premiumIndex": map[string]interface{}{
			"symbol":    "BTCUSDT",
			"markPrice": "50000.00",
		},
		"/fapi/v1/leverage": map[string]interface{}{
			"symbol":           "BTCUSDT",
			"leverage":         10,
			"maxNotionalValue": "1000000",
		},
		"/fapi/v1/order": map[string]interface{}{
			"orderId": 12345,
			"symbol":  "BTCUSDT",
			"status":  "FILLED",
		},
	})
	defer server.Close()

	order, err := b.OpenMarketPosition(context.Background(), "BTCUSDT", "long", 1000, 10)
	require.NoError(t, err)

	assert.Equal(t, "12345", order.OrderID)
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.InDelta(t, 50000.0, order.Price, 1e-9)
	assert.InDelta(t, 0.02, order.Quantity, 1e-9)
	// 1000 USD notional at the 0.05% taker rate
	assert.InDelta(t, 0.5, order.Fee, 1e-9)
}

func TestCloseMarketPosition_FeeFromNotional(t *testing.T) {
	server, b := setupTestExchange(t, map[string]interface{}{
		"/fapi/v1/order": map[string]interface{}{
			"orderId": 67890,
			"symbol":  "ETHUSDT",
			"status":  "FILLED",
		},
		"/fapi/v1/premiumIndex": map[string]interface{}{
			"symbol":    "ETHUSDT",
			"markPrice": "2000.00",
		},
	})
	defer server.Close()

	order, err := b.CloseMarketPosition(context.Background(), &model.OpenPosition{
		Symbol:     "ETHUSDT",
		Side:       "long",
		EntryPrice: 1900,
		Quantity:   0.5,
		Leverage:   5,
	})
	require.NoError(t, err)

	assert.Equal(t, "67890", order.OrderID)
	assert.InDelta(t, 2000.0, order.Price, 1e-9)
	// 0.5 ETH at mark 2000 is 1000 USD notional, 0.05% taker
	assert.InDelta(t, 0.5, order.Fee, 1e-9)
}
