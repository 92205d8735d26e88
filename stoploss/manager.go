// stoploss/manager.go
package stoploss

import (
	"fmt"
	"math"
	"sync"
	"time"

	"okx_stop_go/config"
	"okx_stop_go/exchange"
	"okx_stop_go/logs"
	"okx_stop_go/position"
	"okx_stop_go/state"
)

// Manager is the stop-loss management engine: it owns the position registry,
// the order synchronizer and the background management loop that re-evaluates
// every tracked position at a fixed interval.
//
// Lifecycle is stopped -> running -> stopped. Start and Stop are idempotent.
// The worker goroutine is the only mutator of market and stop fields; caller
// goroutines interact through Track/Untrack/Status, which are safe to call
// while a cycle is in flight.
type Manager struct {
	client   exchange.Client
	registry *position.Registry
	sync     *Synchronizer
	exitCfg  *config.ExitConfig
	interval time.Duration
	store    state.StoreInterface // optional; nil disables persistence

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates the engine. Malformed exit thresholds are rejected here,
// at construction time, never clamped during operation. store may be nil.
func NewManager(client exchange.Client, exitCfg *config.ExitConfig, interval, orderTimeout time.Duration, store state.StoreInterface) (*Manager, error) {
	if exitCfg == nil {
		return nil, fmt.Errorf("exit configuration must not be nil")
	}
	if err := exitCfg.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("check interval must be positive, got %v", interval)
	}
	if orderTimeout <= 0 {
		return nil, fmt.Errorf("order timeout must be positive, got %v", orderTimeout)
	}

	return &Manager{
		client:   client,
		registry: position.NewRegistry(),
		sync:     NewSynchronizer(client, orderTimeout),
		exitCfg:  exitCfg,
		interval: interval,
		store:    store,
	}, nil
}

// Track begins managing a symbol's stop. Re-tracking an already tracked
// symbol replaces the record, resetting watermarks and latches.
func (m *Manager) Track(symbol string, side position.Side, entryPrice, slPrice, tpPrice, contracts float64, leverage int) {
	m.registry.Track(symbol, side, entryPrice, slPrice, tpPrice, contracts, leverage)
	logs.Infof("[Stop-Engine] Tracking position: %s %s @%.6f | SL: %.6f | TP: %.6f",
		symbol, side, entryPrice, slPrice, tpPrice)
	m.persist()
}

// Restore re-registers a previously persisted record, keeping its watermarks,
// latches and current stop. Used by startup reconciliation.
func (m *Manager) Restore(rec position.Position) {
	// Snapshots written from net-mode accounts may carry the size with the
	// direction sign still on it; the side field already holds the direction
	// and order sizes must be positive.
	rec.Contracts = math.Abs(rec.Contracts)
	m.registry.Restore(rec)
	logs.Infof("[Stop-Engine] Restored position: %s %s @%.6f | SL: %.6f (trailing activated: %v, breakeven activated: %v)",
		rec.Symbol, rec.Side, rec.EntryPrice, rec.CurrentSLPrice, rec.TrailingStopActivated, rec.BreakevenStopActivated)
	m.persist()
}

// Untrack stops managing a symbol. The current management cycle, if one is
// running, simply skips the symbol from the moment the record is gone.
func (m *Manager) Untrack(symbol string) bool {
	removed := m.registry.Untrack(symbol)
	if removed {
		m.sync.Forget(symbol)
		logs.Infof("[Stop-Engine] Stopped tracking: %s", symbol)
		m.persist()
	}
	return removed
}

// Status returns a read-only snapshot of one tracked position.
func (m *Manager) Status(symbol string) (position.Position, bool) {
	return m.registry.Get(symbol)
}

// Statuses returns snapshots of all tracked positions, ordered by symbol.
func (m *Manager) Statuses() []position.Position {
	return m.registry.All()
}

// UpdateTakeProfit replaces the profit-target order for a symbol at the given
// trigger price. The recorded target moves only if the exchange accepted the
// replacement.
func (m *Manager) UpdateTakeProfit(symbol string, newTP float64) error {
	pos, ok := m.registry.Get(symbol)
	if !ok {
		return fmt.Errorf("position %s is not tracked", symbol)
	}
	if err := m.sync.ReplaceTakeProfit(symbol, pos.Side, newTP, pos.Contracts); err != nil {
		return err
	}
	m.registry.CommitTakeProfit(symbol, newTP)
	logs.Infof("[Stop-Engine] Take-profit updated: %s %.6f -> %.6f", symbol, pos.CurrentTPPrice, newTP)
	m.persist()
	return nil
}

// Start launches the background management loop. Starting a running engine is
// a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		logs.Warn("[Stop-Engine] Management loop already running, skipping start.")
		return
	}
	m.stopCh = make(chan struct{})
	m.isRunning = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		logs.Infof("[Stop-Engine] Management loop started (checking every %v).", m.interval)
		for {
			select {
			case <-ticker.C:
				m.runCycle()
			case <-m.stopCh:
				logs.Info("[Stop-Engine] Management loop received stop signal, exiting.")
				return
			}
		}
	}()
}

// Stop signals the worker to exit at the next safe point and blocks until it
// has. Stopping a stopped engine is a no-op. An in-flight exchange call is
// waited out, never aborted mid-update.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		logs.Warn("[Stop-Engine] Management loop not running, skipping stop.")
		return
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	logs.Info("[Stop-Engine] Management loop stopped.")
}

// IsRunning reports whether the management loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// runCycle performs one management pass over a snapshot of the tracked
// symbol set. A failure while processing one symbol never aborts the rest.
func (m *Manager) runCycle() {
	for _, symbol := range m.registry.Symbols() {
		m.checkSymbol(symbol)
	}
}

// checkSymbol refreshes one position's market state and runs the breakeven
// policy followed by the trailing policy. Breakeven is the coarser, earlier
// protective move; trailing then continues ratcheting from whatever stop is
// in force, including one breakeven just set this cycle.
func (m *Manager) checkSymbol(symbol string) {
	price, err := m.client.GetLastPrice(symbol)
	if err != nil {
		logs.Errorf("[Stop-Engine] Failed to get price for %s, skipping this cycle: %v", symbol, err)
		return
	}

	pos, ok := m.registry.Refresh(symbol, price)
	if !ok {
		// Untracked between the snapshot and now.
		return
	}

	m.applyBreakeven(pos)

	// Re-read so trailing compares against a stop breakeven may have moved.
	if pos, ok = m.registry.Get(symbol); ok {
		m.applyTrailing(pos)
	}
}

func (m *Manager) applyBreakeven(pos position.Position) {
	newSL, ok := EvaluateBreakeven(pos, m.exitCfg)
	if !ok {
		return
	}

	logs.Infof("[Stop-Engine] Breakeven stop for %s: profit %+.2f%%, stop %.6f -> %.6f",
		pos.Symbol, pos.UnrealizedPnlPct*100, pos.CurrentSLPrice, newSL)

	if err := m.sync.ReplaceStop(pos.Symbol, pos.Side, newSL, pos.Contracts); err != nil {
		logs.Errorf("[Stop-Engine] Breakeven stop update failed for %s, will retry next cycle: %v", pos.Symbol, err)
		return
	}
	if m.registry.MarkBreakeven(pos.Symbol, newSL) {
		m.persist()
	}
}

func (m *Manager) applyTrailing(pos position.Position) {
	if ShouldActivateTrailing(pos, m.exitCfg) {
		if m.registry.ActivateTrailing(pos.Symbol) {
			logs.Infof("[Stop-Engine] Trailing stop activated for %s (profit %+.2f%%).",
				pos.Symbol, pos.UnrealizedPnlPct*100)
			m.persist()
		}
	}

	candidate, ok := EvaluateTrailing(pos, m.exitCfg)
	if !ok {
		return
	}

	logs.Infof("[Stop-Engine] Trailing stop for %s: watermark %.6f, stop %.6f -> %.6f",
		pos.Symbol, pos.Watermark(), pos.CurrentSLPrice, candidate)

	if err := m.sync.ReplaceStop(pos.Symbol, pos.Side, candidate, pos.Contracts); err != nil {
		logs.Errorf("[Stop-Engine] Trailing stop update failed for %s, will retry next cycle: %v", pos.Symbol, err)
		return
	}
	if m.registry.CommitStop(pos.Symbol, candidate) {
		m.persist()
	}
}

// persist saves the current registry snapshot. Persistence failures are
// logged, never propagated: the engine keeps managing from memory.
func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.registry.All()); err != nil {
		logs.Errorf("[Stop-Engine] Failed to persist position state: %v", err)
	}
}
