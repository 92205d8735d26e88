// monitor/status.go
package monitor

import (
	"time"

	"okx_stop_go/config"
	"okx_stop_go/logs"
	"okx_stop_go/stoploss"
)

// Start starts the status reporting loop. It periodically logs a heartbeat
// and, at the configured status interval, a summary block of every tracked
// position with its live stop levels. Runs until stopChan is closed.
func Start(
	engine *stoploss.Manager,
	cfg *config.Config,
	stopChan <-chan struct{},
) {
	ticker := time.NewTicker(time.Duration(cfg.Normal.CheckIntervalSeconds) * time.Second)
	defer ticker.Stop()

	lastHeartbeat := time.Now()
	lastStatus := time.Now()

	heartbeatInterval := time.Duration(cfg.Normal.HeartbeatIntervalMinutes) * time.Minute
	statusInterval := time.Duration(cfg.Normal.StatusIntervalMinutes) * time.Minute

	for {
		select {
		case <-stopChan:
			logs.Info("Monitor received stop signal, exiting.")
			return
		case <-ticker.C:
			if time.Since(lastHeartbeat) >= heartbeatInterval {
				logs.Infof("[Heartbeat] Stop engine still running, %d position(s) tracked...", len(engine.Statuses()))
				lastHeartbeat = time.Now()
			}

			if time.Since(lastStatus) >= statusInterval {
				ReportStatus(engine)
				lastStatus = time.Now()
			}
		}
	}
}

// ReportStatus logs a summary block of all tracked positions. Also called
// once during shutdown for a final snapshot.
func ReportStatus(engine *stoploss.Manager) {
	positions := engine.Statuses()
	if len(positions) == 0 {
		logs.Info("[Monitor] No positions currently tracked.")
		return
	}

	logs.Infof("[Monitor] ===== Position status (%d tracked) =====", len(positions))
	for _, pos := range positions {
		logs.Infof("[Monitor] %s %s | entry: %.6f | last: %.6f | PnL: %+.2f%% | SL: %.6f | TP: %.6f | watermark: %.6f | trailing: %v | breakeven: %v",
			pos.Symbol, pos.Side, pos.EntryPrice, pos.CurrentPrice, pos.UnrealizedPnlPct*100,
			pos.CurrentSLPrice, pos.CurrentTPPrice, pos.Watermark(),
			pos.TrailingStopActivated, pos.BreakevenStopActivated)
	}
	logs.Info("[Monitor] =====================================")
}
