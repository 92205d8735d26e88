package position

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_InitializesRecord(t *testing.T) {
	r := NewRegistry()

	pos := r.Track("ETH-USDT-SWAP", Long, 2000, 1960, 2200, 10, 5)

	assert.Equal(t, "ETH-USDT-SWAP", pos.Symbol)
	assert.Equal(t, Long, pos.Side)
	assert.Equal(t, 2000.0, pos.EntryPrice)
	assert.Equal(t, 2000.0, pos.CurrentPrice)
	assert.Equal(t, 1960.0, pos.CurrentSLPrice)
	assert.Equal(t, 1960.0, pos.OriginalSLPrice)
	assert.Equal(t, 2200.0, pos.CurrentTPPrice)
	assert.Equal(t, 2200.0, pos.OriginalTPPrice)

	// Both watermarks start at entry regardless of side.
	assert.Equal(t, 2000.0, pos.HighestPrice)
	assert.Equal(t, 2000.0, pos.LowestPrice)
	assert.False(t, pos.TrailingStopActivated)
	assert.False(t, pos.BreakevenStopActivated)
	assert.Equal(t, 1, r.Len())
}

func TestTrack_ReplaceResetsEverything(t *testing.T) {
	r := NewRegistry()

	r.Track("ETH-USDT-SWAP", Long, 2000, 1960, 2200, 10, 5)
	r.Refresh("ETH-USDT-SWAP", 2100)
	r.ActivateTrailing("ETH-USDT-SWAP")
	r.MarkBreakeven("ETH-USDT-SWAP", 2004)

	r.Track("ETH-USDT-SWAP", Short, 2100, 2180, 1900, 4, 3)

	pos, ok := r.Get("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.Equal(t, Short, pos.Side)
	assert.Equal(t, 2100.0, pos.HighestPrice)
	assert.Equal(t, 2100.0, pos.LowestPrice)
	assert.False(t, pos.TrailingStopActivated)
	assert.False(t, pos.BreakevenStopActivated)
	assert.Equal(t, 1, r.Len())
}

func TestRefresh_WatermarksAreMonotonic(t *testing.T) {
	r := NewRegistry()

	t.Run("long highest never decreases", func(t *testing.T) {
		r.Track("ETH-USDT-SWAP", Long, 2000, 1960, 0, 10, 5)

		pos, ok := r.Refresh("ETH-USDT-SWAP", 2050)
		require.True(t, ok)
		assert.Equal(t, 2050.0, pos.HighestPrice)

		pos, _ = r.Refresh("ETH-USDT-SWAP", 2010)
		assert.Equal(t, 2050.0, pos.HighestPrice)
		assert.Equal(t, 2010.0, pos.CurrentPrice)
		assert.InDelta(t, 0.005, pos.UnrealizedPnlPct, 1e-9)
	})

	t.Run("short lowest never increases", func(t *testing.T) {
		r.Track("BTC-USDT-SWAP", Short, 100, 103, 0, 2, 3)

		pos, _ := r.Refresh("BTC-USDT-SWAP", 95)
		assert.Equal(t, 95.0, pos.LowestPrice)

		pos, _ = r.Refresh("BTC-USDT-SWAP", 98)
		assert.Equal(t, 95.0, pos.LowestPrice)
		assert.InDelta(t, 0.02, pos.UnrealizedPnlPct, 1e-9)
	})
}

func TestPnlPct_SignedBySide(t *testing.T) {
	long := Position{Side: Long, EntryPrice: 2000}
	assert.InDelta(t, 0.0125, long.PnlPct(2025), 1e-9)
	assert.InDelta(t, -0.01, long.PnlPct(1980), 1e-9)

	short := Position{Side: Short, EntryPrice: 100}
	assert.InDelta(t, 0.05, short.PnlPct(95), 1e-9)
	assert.InDelta(t, -0.02, short.PnlPct(102), 1e-9)

	zero := Position{Side: Long}
	assert.Equal(t, 0.0, zero.PnlPct(100))
}

func TestWatermark_BySide(t *testing.T) {
	long := Position{Side: Long, HighestPrice: 2050, LowestPrice: 1990}
	assert.Equal(t, 2050.0, long.Watermark())

	short := Position{Side: Short, HighestPrice: 105, LowestPrice: 95}
	assert.Equal(t, 95.0, short.Watermark())
}

func TestCommits_NoOpWhenUntracked(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Refresh("GHOST-USDT-SWAP", 100)
	assert.False(t, ok)
	assert.False(t, r.ActivateTrailing("GHOST-USDT-SWAP"))
	assert.False(t, r.CommitStop("GHOST-USDT-SWAP", 99))
	assert.False(t, r.MarkBreakeven("GHOST-USDT-SWAP", 100.2))
	assert.False(t, r.CommitTakeProfit("GHOST-USDT-SWAP", 110))
	assert.False(t, r.Untrack("GHOST-USDT-SWAP"))
}

func TestGet_ReturnsSnapshotNotAlias(t *testing.T) {
	r := NewRegistry()
	r.Track("ETH-USDT-SWAP", Long, 2000, 1960, 0, 10, 5)

	pos, _ := r.Get("ETH-USDT-SWAP")
	pos.CurrentSLPrice = 1

	fresh, _ := r.Get("ETH-USDT-SWAP")
	assert.Equal(t, 1960.0, fresh.CurrentSLPrice)
}

func TestSymbolsAndAll_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Track("SOL-USDT-SWAP", Long, 150, 140, 0, 1, 2)
	r.Track("BTC-USDT-SWAP", Long, 50000, 49000, 0, 1, 2)
	r.Track("ETH-USDT-SWAP", Long, 2000, 1960, 0, 1, 2)

	assert.Equal(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP"}, r.Symbols())

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "BTC-USDT-SWAP", all[0].Symbol)
	assert.Equal(t, "SOL-USDT-SWAP", all[2].Symbol)
}

func TestRestore_KeepsLatchesAndWatermarks(t *testing.T) {
	r := NewRegistry()

	r.Restore(Position{
		Symbol:                 "ETH-USDT-SWAP",
		Side:                   Long,
		EntryPrice:             2000,
		CurrentSLPrice:         2014.875,
		HighestPrice:           2025,
		LowestPrice:            2000,
		TrailingStopActivated:  true,
		BreakevenStopActivated: true,
	})

	pos, ok := r.Get("ETH-USDT-SWAP")
	require.True(t, ok)
	assert.True(t, pos.TrailingStopActivated)
	assert.True(t, pos.BreakevenStopActivated)
	assert.Equal(t, 2025.0, pos.HighestPrice)
	assert.Equal(t, 2014.875, pos.CurrentSLPrice)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			symbol := fmt.Sprintf("SYM%d-USDT-SWAP", n)
			for j := 0; j < 100; j++ {
				r.Track(symbol, Long, 100, 95, 0, 1, 2)
				r.Refresh(symbol, 100+float64(j))
				r.CommitStop(symbol, 96)
				r.Get(symbol)
				r.Symbols()
				r.All()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, r.Len())
}
