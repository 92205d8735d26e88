package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

//
// Mock client for running and testing the engine without a real API.
//

// Ensure MockClient implements Client interface
var _ Client = (*MockClient)(nil)

// MockClient is a mock implementation of the exchange.Client interface.
// Prices are scripted by the caller; order placement and cancellation record
// their arguments and can be made to fail on demand.
type MockClient struct {
	mu          sync.Mutex
	prices      map[string]float64
	priceErrs   map[string]error
	instruments map[string]InstrumentInfo
	positions   []PositionInfo

	nextAlgoID int64
	placeErr   error
	cancelErr  error

	placedOrders    []TriggerOrderRequest
	placedIDs       []string
	cancelledOrders []string
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		prices:      make(map[string]float64),
		priceErrs:   make(map[string]error),
		instruments: make(map[string]InstrumentInfo),
		nextAlgoID:  1,
	}
}

// SetPrice sets the last-traded price the mock will report for a contract.
func (c *MockClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
	delete(c.priceErrs, symbol)
}

// SetPriceError makes price fetches for a contract fail with the given error.
func (c *MockClient) SetPriceError(symbol string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priceErrs[symbol] = err
}

// SetPlaceError makes all subsequent order submissions fail.
func (c *MockClient) SetPlaceError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placeErr = err
}

// SetCancelError makes all subsequent cancellations fail.
func (c *MockClient) SetCancelError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelErr = err
}

// SetPositions sets the open positions returned by GetPositions.
func (c *MockClient) SetPositions(positions []PositionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = positions
}

// SetInstrument registers contract rule information for a symbol.
func (c *MockClient) SetInstrument(info InstrumentInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[info.Symbol] = info
}

// PlacedOrders returns a copy of every submitted trigger order, oldest first.
func (c *MockClient) PlacedOrders() []TriggerOrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TriggerOrderRequest, len(c.placedOrders))
	copy(out, c.placedOrders)
	return out
}

// PlacedIDs returns the algo ids handed out for successful submissions.
func (c *MockClient) PlacedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.placedIDs))
	copy(out, c.placedIDs)
	return out
}

// CancelledOrders returns the algo ids cancellation was requested for.
func (c *MockClient) CancelledOrders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.cancelledOrders))
	copy(out, c.cancelledOrders)
	return out
}

// --- Client interface implementation ---

func (c *MockClient) GetLastPrice(symbol string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.priceErrs[symbol]; ok {
		return 0, err
	}
	price, ok := c.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price configured for %s", symbol)
	}
	return price, nil
}

func (c *MockClient) PlaceTriggerOrder(_ context.Context, req *TriggerOrderRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.placeErr != nil {
		return "", c.placeErr
	}
	c.placedOrders = append(c.placedOrders, *req)
	id := "mock-algo-" + strconv.FormatInt(c.nextAlgoID, 10)
	c.nextAlgoID++
	c.placedIDs = append(c.placedIDs, id)
	return id, nil
}

func (c *MockClient) CancelTriggerOrder(_ context.Context, orderID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelledOrders = append(c.cancelledOrders, orderID)
	if c.cancelErr != nil {
		return c.cancelErr
	}
	return nil
}

func (c *MockClient) GetPositions(_ context.Context) ([]PositionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PositionInfo, len(c.positions))
	copy(out, c.positions)
	return out, nil
}

func (c *MockClient) GetInstrument(symbol string) (InstrumentInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.instruments[symbol]
	return info, ok
}
