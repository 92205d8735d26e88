// orchestrator.go
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"okx_stop_go/config"
	"okx_stop_go/exchange"
	"okx_stop_go/logs"
	"okx_stop_go/monitor"
	"okx_stop_go/position"
	"okx_stop_go/state"
	"okx_stop_go/stoploss"
)

type Orchestrator struct {
	client        exchange.Client
	engine        *stoploss.Manager
	store         *state.FileStore
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	cfg           *config.Config
	stateFilePath string
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, stateFilePath string) (*Orchestrator, error) {
	var client exchange.Client
	if cfg.UseSimulation {
		mockClient := exchange.NewMockClient()
		// Configure mock client here as needed
		client = mockClient
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")
	} else {
		if envCfg.ApiKey == "" || envCfg.ApiSecret == "" || envCfg.Passphrase == "" {
			return nil, fmt.Errorf("OKX_API_KEY, OKX_SECRET_KEY and OKX_PASSPHRASE must be set when use_simulation is false")
		}
		client = exchange.NewAPIClient(
			envCfg.ApiKey, envCfg.ApiSecret, envCfg.Passphrase, envCfg.BaseURL,
			cfg.Normal.HTTPTimeoutSeconds,
			cfg.Normal.RateLimitPerSecond, cfg.Normal.RateLimitBurst,
			false,
		)
	}

	store, err := state.NewFileStore(stateFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	logs.Infof("State store initialized successfully, state will be persisted to: %s", stateFilePath)

	engine, err := stoploss.NewManager(
		client,
		cfg.Exit,
		time.Duration(cfg.Normal.CheckIntervalSeconds)*time.Second,
		time.Duration(cfg.Normal.OrderTimeoutSeconds)*time.Second,
		store,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stop-loss engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		client:        client,
		engine:        engine,
		store:         store,
		ctx:           ctx,
		cancel:        cancel,
		cfg:           cfg,
		stateFilePath: stateFilePath,
	}

	if err := o.reconcilePositionsOnStartup(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to reconcile positions on startup: %w", err)
	}

	return o, nil
}

// reconcilePositionsOnStartup restores persisted records whose positions are
// still open on the exchange. The exchange is the ground truth: a saved
// record with no live position is stale and dropped, while a live position
// with no saved record is reported but left unmanaged until tracked
// explicitly.
func (o *Orchestrator) reconcilePositionsOnStartup() error {
	logs.Info("[Orchestrator] Starting position reconciliation on startup...")

	saved, err := o.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load saved position state: %w", err)
	}
	logs.Infof("[Orchestrator] Loaded %d saved position record(s) from state file.", len(saved))

	ctx, cancel := context.WithTimeout(o.ctx, time.Duration(o.cfg.Normal.HTTPTimeoutSeconds)*time.Second)
	defer cancel()

	live, err := o.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get open positions at startup: %w", err)
	}
	logs.Infof("[Orchestrator] Retrieved %d open position(s) from exchange.", len(live))

	liveBySymbol := make(map[string]exchange.PositionInfo, len(live))
	for _, p := range live {
		liveBySymbol[p.Symbol] = p
	}

	restored := 0
	for _, rec := range saved {
		info, ok := liveBySymbol[rec.Symbol]
		if !ok {
			logs.Warnf("[Orchestrator-Reconciliation] Saved record for %s has no open position on the exchange, dropping stale record.", rec.Symbol)
			continue
		}
		if string(rec.Side) != info.Side {
			logs.Warnf("[Orchestrator-Reconciliation] Saved record for %s is %s but exchange position is %s, dropping stale record.",
				rec.Symbol, rec.Side, info.Side)
			continue
		}
		// The exchange position size may have changed while we were down.
		if rec.Contracts != info.Contracts {
			logs.Warnf("[Orchestrator-Reconciliation] Position size for %s changed while offline (%.4f -> %.4f), using exchange size.",
				rec.Symbol, rec.Contracts, info.Contracts)
			rec.Contracts = info.Contracts
		}
		o.engine.Restore(rec)
		restored++
		delete(liveBySymbol, rec.Symbol)
	}

	for symbol := range liveBySymbol {
		logs.Warnf("[Orchestrator-Reconciliation] Exchange position %s has no saved record and will not be managed until tracked explicitly.", symbol)
	}

	logs.Infof("[Orchestrator] Reconciliation complete, %d position(s) restored.", restored)
	return nil
}

// Track hands a position to the engine for stop management.
func (o *Orchestrator) Track(symbol string, side position.Side, entryPrice, slPrice, tpPrice, contracts float64, leverage int) {
	o.engine.Track(symbol, side, entryPrice, slPrice, tpPrice, contracts, leverage)
}

// Engine exposes the stop-loss engine for callers embedding the orchestrator.
func (o *Orchestrator) Engine() *stoploss.Manager {
	return o.engine
}

func (o *Orchestrator) Start() {
	o.engine.Start()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		monitor.Start(o.engine, o.cfg, o.ctx.Done())
	}()
	logs.Info("Stop-loss engine started, press Ctrl+C to exit.")
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	// Stop the engine first so no cancel-and-replace is left half done.
	o.engine.Stop()

	// Final snapshot of the stops in force.
	monitor.ReportStatus(o.engine)

	if err := o.store.Save(o.engine.Statuses()); err != nil {
		logs.Errorf("Failed to save final position state: %v", err)
	} else {
		logs.Infof("[Orchestrator] Final position state saved to %s.", o.stateFilePath)
	}

	// Send cancellation signal to all goroutines
	o.cancel()
	// Wait for all goroutines to complete
	o.wg.Wait()
	logs.Info("All services stopped successfully.")
}
