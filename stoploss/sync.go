// stoploss/sync.go
package stoploss

import (
	"context"
	"fmt"
	"sync"
	"time"

	"okx_stop_go/exchange"
	"okx_stop_go/logs"
	"okx_stop_go/position"
)

// Synchronizer owns the mapping from symbol to live conditional-order id and
// runs the cancel-and-replace protocol against the exchange. Stop-loss and
// take-profit orders use independent caches.
//
// The protocol is best-effort cancel, unconditional-attempt replace: a failed
// cancellation (order already filled or expired) is logged and ignored, and a
// brief window with zero live orders can exist between the cancel and a
// successful replacement. A cached id is overwritten only after a verified
// successful submission, never speculatively.
type Synchronizer struct {
	client       exchange.Client
	orderTimeout time.Duration

	mu       sync.Mutex
	slOrders map[string]string // symbol -> live stop-loss algo id
	tpOrders map[string]string // symbol -> live take-profit algo id
}

// NewSynchronizer creates a synchronizer. orderTimeout bounds every cancel
// and submit call so one hung request cannot stall the whole cycle.
func NewSynchronizer(client exchange.Client, orderTimeout time.Duration) *Synchronizer {
	return &Synchronizer{
		client:       client,
		orderTimeout: orderTimeout,
		slOrders:     make(map[string]string),
		tpOrders:     make(map[string]string),
	}
}

// ReplaceStop cancels any cached stop order for the symbol and submits a new
// reduce-only trigger order at newPrice, sized to the position. On success the
// returned algo id replaces the cached one. On failure the cache keeps the old
// id and the caller must leave the position's stop price unchanged.
func (s *Synchronizer) ReplaceStop(symbol string, side position.Side, newPrice, size float64) error {
	return s.replace(s.slOrders, exchange.StopLoss, symbol, side, newPrice, size)
}

// ReplaceTakeProfit follows the identical protocol for the profit-target
// order, against its own order-id cache.
func (s *Synchronizer) ReplaceTakeProfit(symbol string, side position.Side, newPrice, size float64) error {
	return s.replace(s.tpOrders, exchange.TakeProfit, symbol, side, newPrice, size)
}

func (s *Synchronizer) replace(cache map[string]string, kind exchange.TriggerKind, symbol string, side position.Side, newPrice, size float64) error {
	if size <= 0 {
		return fmt.Errorf("cannot place %s order for %s: size %.8f is not positive", kind, symbol, size)
	}

	s.mu.Lock()
	oldOrderID, hasOld := cache[symbol]
	s.mu.Unlock()

	// (a) Best-effort cancel of the stale order. Not finding it on the
	// exchange is expected when it already filled or expired.
	if hasOld {
		ctx, cancel := context.WithTimeout(context.Background(), s.orderTimeout)
		err := s.client.CancelTriggerOrder(ctx, oldOrderID, symbol)
		cancel()
		if err != nil {
			logs.Warnf("[Synchronizer] Failed to cancel old %s order %s for %s (may already be filled): %v",
				kind, oldOrderID, symbol, err)
		} else {
			logs.Debugf("[Synchronizer] Cancelled old %s order %s for %s.", kind, oldOrderID, symbol)
		}
	}

	// (b) Submit the replacement: reduce-only, triggered on last price, on
	// the side opposite the position.
	orderSide := exchange.Sell
	if side == position.Short {
		orderSide = exchange.Buy
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.orderTimeout)
	defer cancel()
	newOrderID, err := s.client.PlaceTriggerOrder(ctx, &exchange.TriggerOrderRequest{
		Symbol:       symbol,
		Side:         orderSide,
		Size:         size,
		TriggerPrice: newPrice,
		Kind:         kind,
	})
	if err != nil {
		return fmt.Errorf("failed to place %s order for %s at %.6f: %w", kind, symbol, newPrice, err)
	}

	// (c) Cache the id only now that the submission is confirmed.
	s.mu.Lock()
	cache[symbol] = newOrderID
	s.mu.Unlock()

	logs.Infof("[Synchronizer] New %s order for %s: %s @%.6f", kind, symbol, newOrderID, newPrice)
	return nil
}

// Forget drops the cached order ids for a symbol, e.g. after untracking.
// Live orders on the exchange are left alone; being reduce-only they become
// inert once the position is gone.
func (s *Synchronizer) Forget(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slOrders, symbol)
	delete(s.tpOrders, symbol)
}

// StopOrderID returns the cached live stop-order id for a symbol, if any.
func (s *Synchronizer) StopOrderID(symbol string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.slOrders[symbol]
	return id, ok
}

// TakeProfitOrderID returns the cached live take-profit order id for a symbol.
func (s *Synchronizer) TakeProfitOrderID(symbol string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tpOrders[symbol]
	return id, ok
}
