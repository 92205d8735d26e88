// position/registry.go
package position

import (
	"sort"
	"sync"
	"time"
)

// Registry is the thread-safe store of tracked positions. Caller goroutines
// create, replace and delete whole records; the management worker is the only
// mutator of market and stop fields, which it reaches through the commit
// methods below. Every read hands out a value snapshot, never an aliased
// pointer into the map.
type Registry struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{positions: make(map[string]*Position)}
}

// Track creates or replaces the record for a symbol. Re-tracking a symbol
// overwrites the previous record entirely, including watermarks and latches.
func (r *Registry) Track(symbol string, side Side, entryPrice, slPrice, tpPrice, contracts float64, leverage int) Position {
	pos := &Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entryPrice,
		CurrentPrice:    entryPrice,
		Contracts:       contracts,
		Leverage:        leverage,
		CurrentSLPrice:  slPrice,
		CurrentTPPrice:  tpPrice,
		OriginalSLPrice: slPrice,
		OriginalTPPrice: tpPrice,
		HighestPrice:    entryPrice,
		LowestPrice:     entryPrice,
		LastUpdate:      time.Now(),
	}

	r.mu.Lock()
	r.positions[symbol] = pos
	r.mu.Unlock()
	return *pos
}

// Restore inserts a previously persisted record verbatim, keeping its
// watermarks and latches. Used by startup reconciliation.
func (r *Registry) Restore(rec Position) {
	copied := rec
	r.mu.Lock()
	r.positions[rec.Symbol] = &copied
	r.mu.Unlock()
}

// Untrack removes the record for a symbol. Returns false when it was not tracked.
func (r *Registry) Untrack(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[symbol]; !ok {
		return false
	}
	delete(r.positions, symbol)
	return true
}

// Get returns a read-only snapshot of a tracked position.
func (r *Registry) Get(symbol string) (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Symbols returns the sorted set of tracked symbols. The management loop
// iterates over this snapshot, so symbols untracked mid-cycle simply turn
// every later commit for them into a no-op.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.positions))
	for symbol := range r.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// All returns snapshots of every tracked position, ordered by symbol.
func (r *Registry) All() []Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of tracked positions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// Refresh records a new market price: updates the current price, recomputes
// the unrealized P&L fraction and advances the favorable-price watermark.
// Returns the post-update snapshot.
func (r *Registry) Refresh(symbol string, price float64) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[symbol]
	if !ok {
		return Position{}, false
	}

	pos.CurrentPrice = price
	pos.UnrealizedPnlPct = pos.PnlPct(price)
	if pos.Side == Long {
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}
	} else {
		if price < pos.LowestPrice {
			pos.LowestPrice = price
		}
	}
	pos.LastUpdate = time.Now()
	return *pos, true
}

// ActivateTrailing sets the trailing activation latch. The latch is
// informational and one-way; repeated calls are harmless.
func (r *Registry) ActivateTrailing(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[symbol]
	if !ok {
		return false
	}
	pos.TrailingStopActivated = true
	return true
}

// CommitStop records a successfully synchronized stop price.
func (r *Registry) CommitStop(symbol string, newSL float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[symbol]
	if !ok {
		return false
	}
	pos.CurrentSLPrice = newSL
	pos.LastUpdate = time.Now()
	return true
}

// MarkBreakeven records a successfully synchronized breakeven stop and sets
// the breakeven latch permanently.
func (r *Registry) MarkBreakeven(symbol string, newSL float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[symbol]
	if !ok {
		return false
	}
	pos.CurrentSLPrice = newSL
	pos.BreakevenStopActivated = true
	pos.LastUpdate = time.Now()
	return true
}

// CommitTakeProfit records a successfully synchronized take-profit price.
func (r *Registry) CommitTakeProfit(symbol string, newTP float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[symbol]
	if !ok {
		return false
	}
	pos.CurrentTPPrice = newTP
	pos.LastUpdate = time.Now()
	return true
}
