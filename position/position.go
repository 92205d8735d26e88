// position/position.go
package position

import "time"

// Side defines the position direction.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Position holds the trading and stop state for one tracked contract.
// Symbol is the unique key; Symbol and Side are immutable after creation.
// Original stop/target prices are audit baselines and never change.
type Position struct {
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`

	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	Contracts        float64 `json:"contracts"`
	Leverage         int     `json:"leverage"`
	UnrealizedPnlPct float64 `json:"unrealized_pnl_pct"`

	CurrentSLPrice  float64 `json:"current_sl_price"`
	CurrentTPPrice  float64 `json:"current_tp_price"`
	OriginalSLPrice float64 `json:"original_sl_price"`
	OriginalTPPrice float64 `json:"original_tp_price"`

	// Favorable-price watermarks, both initialized to the entry price.
	// HighestPrice never decreases (long), LowestPrice never increases (short).
	HighestPrice float64 `json:"highest_price"`
	LowestPrice  float64 `json:"lowest_price"`

	// One-way activation latches; each transitions false->true at most once
	// for the life of the tracked position.
	TrailingStopActivated  bool `json:"trailing_stop_activated"`
	BreakevenStopActivated bool `json:"breakeven_stop_activated"`

	LastUpdate time.Time `json:"last_update"`
}

// PnlPct returns the signed unrealized P&L fraction at the given price.
func (p *Position) PnlPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == Long {
		return (price - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - price) / p.EntryPrice
}

// Watermark returns the favorable-price extremum used by trailing logic.
func (p *Position) Watermark() float64 {
	if p.Side == Long {
		return p.HighestPrice
	}
	return p.LowestPrice
}
