package stoploss

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx_stop_go/exchange"
	"okx_stop_go/position"
)

func newTestSynchronizer() (*Synchronizer, *exchange.MockClient) {
	mock := exchange.NewMockClient()
	return NewSynchronizer(mock, 5*time.Second), mock
}

func TestReplaceStop_FirstPlacementSkipsCancel(t *testing.T) {
	sync, mock := newTestSynchronizer()

	err := sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 10)
	require.NoError(t, err)

	assert.Empty(t, mock.CancelledOrders())

	orders := mock.PlacedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "ETH-USDT-SWAP", orders[0].Symbol)
	assert.Equal(t, exchange.Sell, orders[0].Side)
	assert.Equal(t, exchange.StopLoss, orders[0].Kind)
	assert.Equal(t, 1960.0, orders[0].TriggerPrice)
	assert.Equal(t, 10.0, orders[0].Size)

	id, ok := sync.StopOrderID("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.Equal(t, "mock-algo-1", id)
}

func TestReplaceStop_ShortUsesBuySide(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.NoError(t, sync.ReplaceStop("BTC-USDT-SWAP", position.Short, 103, 2))

	orders := mock.PlacedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, exchange.Buy, orders[0].Side)
}

func TestReplaceStop_CancelsStaleOrderFirst(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.NoError(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 10))
	require.NoError(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 2004, 10))

	assert.Equal(t, []string{"mock-algo-1"}, mock.CancelledOrders())

	id, ok := sync.StopOrderID("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.Equal(t, "mock-algo-2", id)
}

func TestReplaceStop_CancelFailureIsBenign(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.NoError(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 10))

	// The stale order raced us and already filled or expired.
	mock.SetCancelError(errors.New("order not found"))

	err := sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 2004, 10)
	require.NoError(t, err)

	require.Len(t, mock.PlacedOrders(), 2)
	id, ok := sync.StopOrderID("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.Equal(t, "mock-algo-2", id)
}

func TestReplaceStop_FailedSubmissionKeepsOldID(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.NoError(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 10))

	mock.SetPlaceError(errors.New("rate limited"))
	err := sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 2004, 10)
	require.Error(t, err)

	// The cache still points at the first order, so a later retry cancels it.
	id, ok := sync.StopOrderID("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.Equal(t, "mock-algo-1", id)
}

func TestReplaceStop_RejectsNonPositiveSize(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.Error(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 0))
	require.Error(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, -1))
	assert.Empty(t, mock.PlacedOrders())
}

func TestTakeProfitCacheIsIndependent(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.NoError(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 10))
	require.NoError(t, sync.ReplaceTakeProfit("ETH-USDT-SWAP", position.Long, 2200, 10))

	// Replacing the take-profit never cancelled the stop order.
	assert.Empty(t, mock.CancelledOrders())

	slID, ok := sync.StopOrderID("ETH-USDT-SWAP")
	require.True(t, ok)
	tpID, ok := sync.TakeProfitOrderID("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.NotEqual(t, slID, tpID)

	orders := mock.PlacedOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, exchange.StopLoss, orders[0].Kind)
	assert.Equal(t, exchange.TakeProfit, orders[1].Kind)
}

func TestForget_DropsBothCaches(t *testing.T) {
	sync, mock := newTestSynchronizer()

	require.NoError(t, sync.ReplaceStop("ETH-USDT-SWAP", position.Long, 1960, 10))
	require.NoError(t, sync.ReplaceTakeProfit("ETH-USDT-SWAP", position.Long, 2200, 10))

	sync.Forget("ETH-USDT-SWAP")

	_, ok := sync.StopOrderID("ETH-USDT-SWAP")
	assert.False(t, ok)
	_, ok = sync.TakeProfitOrderID("ETH-USDT-SWAP")
	assert.False(t, ok)

	// Forget never touches the exchange.
	assert.Empty(t, mock.CancelledOrders())
}
