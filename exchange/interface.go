package exchange

import "context"

// OrderSide defines the order direction on the exchange (OKX lower-case style).
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// TriggerKind distinguishes the two conditional order flavours the engine places.
type TriggerKind string

const (
	StopLoss   TriggerKind = "stop_loss"
	TakeProfit TriggerKind = "take_profit"
)

// TriggerOrderRequest describes a reduce-only conditional order triggered on
// the last-traded price. Size is in contracts.
type TriggerOrderRequest struct {
	Symbol        string
	Side          OrderSide
	Size          float64
	TriggerPrice  float64
	Kind          TriggerKind
	ClientOrderID string // optional; generated when empty
}

// InstrumentInfo holds the trading-rule subset the engine needs per contract.
type InstrumentInfo struct {
	Symbol   string
	TickSize float64
	LotSize  float64
}

// PositionInfo contains key position information for a single contract.
type PositionInfo struct {
	Symbol           string
	Side             string // "long" or "short"
	Contracts        float64
	EntryPrice       float64
	Leverage         int
	UnrealizedProfit float64
}

// Client defines the interface the stop-loss engine requires from the venue.
type Client interface {
	// GetLastPrice gets the last-traded price for a contract.
	GetLastPrice(symbol string) (float64, error)

	// PlaceTriggerOrder submits a reduce-only trigger (algo) order and returns
	// the exchange-assigned algo order id.
	PlaceTriggerOrder(ctx context.Context, req *TriggerOrderRequest) (string, error)

	// CancelTriggerOrder cancels an active trigger order. An error on an
	// already-filled or expired order is expected and benign for the caller.
	CancelTriggerOrder(ctx context.Context, orderID, symbol string) error

	// GetPositions lists the account's open swap positions, used by the
	// startup reconciliation.
	GetPositions(ctx context.Context) ([]PositionInfo, error)

	// GetInstrument gets contract rule information, cached after first fetch.
	GetInstrument(symbol string) (InstrumentInfo, bool)
}
