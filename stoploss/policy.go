// stoploss/policy.go
package stoploss

import (
	"okx_stop_go/config"
	"okx_stop_go/position"
)

// The two policies below are pure decision functions over a position snapshot
// and the exit configuration. They never touch the exchange or the registry;
// the Manager commits a returned price only after the order synchronizer
// confirms the exchange accepted it.

// EvaluateBreakeven decides whether the stop should be relocated to the
// no-loss level: cost plus the buffer for longs, cost minus the buffer for
// shorts. It fires at most once per position (the caller latches it on a
// committed update), but keeps retrying every cycle until the relocation is
// strictly more favorable than the stop currently in force.
func EvaluateBreakeven(pos position.Position, cfg *config.ExitConfig) (float64, bool) {
	if !cfg.BreakevenStop || pos.BreakevenStopActivated {
		return 0, false
	}
	if pos.UnrealizedPnlPct < cfg.BreakevenActivationPct {
		return 0, false
	}

	if pos.Side == position.Long {
		newSL := pos.EntryPrice * (1 + cfg.BreakevenBufferPct)
		if newSL <= pos.CurrentSLPrice {
			return 0, false
		}
		return newSL, true
	}

	newSL := pos.EntryPrice * (1 - cfg.BreakevenBufferPct)
	if newSL >= pos.CurrentSLPrice {
		return 0, false
	}
	return newSL, true
}

// ShouldActivateTrailing reports whether the informational trailing latch
// should be set this cycle. The latch never gates later candidate updates.
func ShouldActivateTrailing(pos position.Position, cfg *config.ExitConfig) bool {
	return cfg.TrailingStop &&
		!pos.TrailingStopActivated &&
		pos.UnrealizedPnlPct >= cfg.TrailingActivationPct
}

// EvaluateTrailing decides whether the stop should ratchet toward the
// favorable-price watermark. Three gates apply, in order:
//   - the candidate's improvement over the current stop, as a fraction of the
//     entry price, must reach the step threshold (churn protection);
//   - the candidate must move the stop strictly in the favorable direction
//     (a stop never retreats);
//   - the candidate must stay on the protective side of the market price
//     (a stop at or through the market would trigger immediately).
func EvaluateTrailing(pos position.Position, cfg *config.ExitConfig) (float64, bool) {
	if !cfg.TrailingStop || pos.EntryPrice == 0 {
		return 0, false
	}
	if pos.UnrealizedPnlPct < cfg.TrailingActivationPct {
		return 0, false
	}

	if pos.Side == position.Long {
		candidate := pos.HighestPrice * (1 - cfg.TrailingDistancePct)
		if (candidate-pos.CurrentSLPrice)/pos.EntryPrice < cfg.TrailingStepPct {
			return 0, false
		}
		if candidate <= pos.CurrentSLPrice {
			return 0, false
		}
		if candidate >= pos.CurrentPrice {
			return 0, false
		}
		return candidate, true
	}

	candidate := pos.LowestPrice * (1 + cfg.TrailingDistancePct)
	if (pos.CurrentSLPrice-candidate)/pos.EntryPrice < cfg.TrailingStepPct {
		return 0, false
	}
	if candidate >= pos.CurrentSLPrice {
		return 0, false
	}
	if candidate <= pos.CurrentPrice {
		return 0, false
	}
	return candidate, true
}
