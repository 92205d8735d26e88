package stoploss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okx_stop_go/config"
	"okx_stop_go/position"
)

func trailingConfig() *config.ExitConfig {
	return &config.ExitConfig{
		TrailingStop:          true,
		TrailingActivationPct: 0.01,
		TrailingDistancePct:   0.005,
		TrailingStepPct:       0.005,
	}
}

func breakevenConfig() *config.ExitConfig {
	return &config.ExitConfig{
		BreakevenStop:          true,
		BreakevenActivationPct: 0.01,
		BreakevenBufferPct:     0.002,
	}
}

func longAt(entry, current, highest, sl float64) position.Position {
	pos := position.Position{
		Symbol:         "ETH-USDT-SWAP",
		Side:           position.Long,
		EntryPrice:     entry,
		CurrentPrice:   current,
		HighestPrice:   highest,
		LowestPrice:    entry,
		CurrentSLPrice: sl,
	}
	pos.UnrealizedPnlPct = pos.PnlPct(current)
	return pos
}

func shortAt(entry, current, lowest, sl float64) position.Position {
	pos := position.Position{
		Symbol:         "ETH-USDT-SWAP",
		Side:           position.Short,
		EntryPrice:     entry,
		CurrentPrice:   current,
		HighestPrice:   entry,
		LowestPrice:    lowest,
		CurrentSLPrice: sl,
	}
	pos.UnrealizedPnlPct = pos.PnlPct(current)
	return pos
}

func TestEvaluateTrailing_LongRatchet(t *testing.T) {
	cfg := trailingConfig()

	// Entry 2000, stop 1960, price at 2025 (1.25% profit).
	pos := longAt(2000, 2025, 2025, 1960)

	candidate, ok := EvaluateTrailing(pos, cfg)
	require.True(t, ok)
	assert.InDelta(t, 2014.875, candidate, 1e-9)
}

func TestEvaluateTrailing_DisabledOrBelowActivation(t *testing.T) {
	cfg := trailingConfig()

	t.Run("disabled", func(t *testing.T) {
		off := *cfg
		off.TrailingStop = false
		_, ok := EvaluateTrailing(longAt(2000, 2025, 2025, 1960), &off)
		assert.False(t, ok)
	})

	t.Run("profit below activation", func(t *testing.T) {
		_, ok := EvaluateTrailing(longAt(2000, 2010, 2010, 1960), cfg)
		assert.False(t, ok)
	})

	t.Run("pullback below activation suspends evaluation", func(t *testing.T) {
		// The watermark alone does not qualify a cycle; the current profit must.
		_, ok := EvaluateTrailing(longAt(2000, 2005, 2100, 1960), cfg)
		assert.False(t, ok)
	})

	t.Run("zero entry price", func(t *testing.T) {
		_, ok := EvaluateTrailing(longAt(0, 2025, 2025, 1960), cfg)
		assert.False(t, ok)
	})
}

func TestEvaluateTrailing_StepGateBlocksSmallMoves(t *testing.T) {
	cfg := trailingConfig()
	cfg.TrailingStepPct = 0.07

	// Short at 100, stop 102, low watermark 95 puts the candidate at 95.475.
	// The 6.525% improvement over entry is under the 7% step, so no update.
	pos := shortAt(100, 95, 95, 102)
	_, ok := EvaluateTrailing(pos, cfg)
	assert.False(t, ok)

	// With the step relaxed the same snapshot ratchets.
	cfg.TrailingStepPct = 0.005
	candidate, ok := EvaluateTrailing(pos, cfg)
	require.True(t, ok)
	assert.InDelta(t, 95.475, candidate, 1e-9)
}

func TestEvaluateTrailing_StopNeverRetreats(t *testing.T) {
	cfg := trailingConfig()
	cfg.TrailingStepPct = 0

	// Stop already above the candidate; the direction gate holds even with
	// the step gate disabled.
	pos := longAt(2000, 2025, 2025, 2016)
	_, ok := EvaluateTrailing(pos, cfg)
	assert.False(t, ok)

	short := shortAt(100, 95, 95, 95.2)
	_, ok = EvaluateTrailing(short, cfg)
	assert.False(t, ok)
}

func TestEvaluateTrailing_CandidateNeverCrossesMarket(t *testing.T) {
	cfg := trailingConfig()
	cfg.TrailingDistancePct = 0.02

	// Watermark 2100 puts the candidate at 2058, above the 2045 market after
	// a pullback. Placing it would trigger the stop immediately.
	pos := longAt(2000, 2045, 2100, 1900)
	_, ok := EvaluateTrailing(pos, cfg)
	assert.False(t, ok)

	// Mirror for shorts: candidate 96.9 below the 97.5 market.
	short := shortAt(100, 97.5, 95, 103)
	_, ok = EvaluateTrailing(short, cfg)
	assert.False(t, ok)
}

func TestShouldActivateTrailing(t *testing.T) {
	cfg := trailingConfig()

	pos := longAt(2000, 2025, 2025, 1960)
	assert.True(t, ShouldActivateTrailing(pos, cfg))

	pos.TrailingStopActivated = true
	assert.False(t, ShouldActivateTrailing(pos, cfg))

	below := longAt(2000, 2010, 2010, 1960)
	assert.False(t, ShouldActivateTrailing(below, cfg))

	off := *cfg
	off.TrailingStop = false
	assert.False(t, ShouldActivateTrailing(pos, &off))
}

func TestEvaluateBreakeven_Long(t *testing.T) {
	cfg := breakevenConfig()

	pos := longAt(2000, 2025, 2025, 1960)
	candidate, ok := EvaluateBreakeven(pos, cfg)
	require.True(t, ok)
	assert.InDelta(t, 2004.0, candidate, 1e-9)
}

func TestEvaluateBreakeven_Short(t *testing.T) {
	cfg := breakevenConfig()

	pos := shortAt(100, 98, 98, 102)
	candidate, ok := EvaluateBreakeven(pos, cfg)
	require.True(t, ok)
	assert.InDelta(t, 99.8, candidate, 1e-9)
}

func TestEvaluateBreakeven_Gates(t *testing.T) {
	cfg := breakevenConfig()

	t.Run("disabled", func(t *testing.T) {
		off := *cfg
		off.BreakevenStop = false
		_, ok := EvaluateBreakeven(longAt(2000, 2025, 2025, 1960), &off)
		assert.False(t, ok)
	})

	t.Run("latched never fires again", func(t *testing.T) {
		pos := longAt(2000, 2025, 2025, 1960)
		pos.BreakevenStopActivated = true
		_, ok := EvaluateBreakeven(pos, cfg)
		assert.False(t, ok)
	})

	t.Run("profit below activation", func(t *testing.T) {
		_, ok := EvaluateBreakeven(longAt(2000, 2010, 2010, 1960), cfg)
		assert.False(t, ok)
	})

	t.Run("relocation must improve the stop", func(t *testing.T) {
		// Trailing already carried the stop past the breakeven level.
		_, ok := EvaluateBreakeven(longAt(2000, 2025, 2025, 2010), cfg)
		assert.False(t, ok)

		_, ok = EvaluateBreakeven(shortAt(100, 98, 98, 99.5), cfg)
		assert.False(t, ok)
	})

	t.Run("unlatched candidate persists for retry", func(t *testing.T) {
		// A failed sync leaves the latch unset; the next cycle re-offers the
		// same relocation.
		pos := longAt(2000, 2025, 2025, 1960)
		first, ok := EvaluateBreakeven(pos, cfg)
		require.True(t, ok)
		second, ok := EvaluateBreakeven(pos, cfg)
		require.True(t, ok)
		assert.Equal(t, first, second)
	})
}
