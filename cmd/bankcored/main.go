package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bankcore/config"
	"bankcore/controller"
	"bankcore/gateway"
	"bankcore/observability/logging"
	"bankcore/observability/metrics"
	"bankcore/state"
	"bankcore/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("bankcored", cfg.Environment, cfg.VerboseLogging)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "controller"))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	ctrl, err := loadController(cfg, manager)
	if err != nil {
		logger.Error("initialise controller", "error", err)
		os.Exit(1)
	}
	ctrl.SetLogger(logger)
	ctrl.SetMetrics(metrics.Controller())

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      gateway.New(ctrl, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	if err := manager.Save(ctrl.Snapshot()); err != nil {
		logger.Error("persist snapshot", "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot persisted, shutting down")
}

// loadController restores the persisted snapshot when one exists; otherwise
// it bootstraps a fresh controller from the config seeds and persists the
// initial snapshot so subsequent boots ignore the seeds.
func loadController(cfg *config.Config, manager *state.Manager) (*controller.Controller, error) {
	params, err := cfg.Controller.Parameters()
	if err != nil {
		return nil, err
	}

	snap, ok, err := manager.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		return controller.FromSnapshot(params.Address, snap)
	}

	seed := &controller.Snapshot{
		Admin:                params.Admin,
		Guardian:             params.Guardian,
		CreditLimitManager:   params.CreditLimitManager,
		CloseFactor:          params.CloseFactor,
		LiquidationIncentive: params.LiquidationIncentive,
	}
	for _, mc := range cfg.Markets {
		mp, err := mc.Parameters()
		if err != nil {
			return nil, err
		}
		seed.Markets = append(seed.Markets, controller.MarketSnapshot{
			Market:           mp.Address,
			Listed:           true,
			CollateralFactor: mp.CollateralFactor,
			Version:          uint8(mp.Version),
		})
		if mp.SupplyCap.Sign() > 0 {
			seed.SupplyCaps = append(seed.SupplyCaps, controller.CapSnapshot{Market: mp.Address, Cap: mp.SupplyCap})
		}
		if mp.BorrowCap.Sign() > 0 {
			seed.BorrowCaps = append(seed.BorrowCaps, controller.CapSnapshot{Market: mp.Address, Cap: mp.BorrowCap})
		}
	}
	ctrl, err := controller.FromSnapshot(params.Address, seed)
	if err != nil {
		return nil, err
	}
	if err := manager.Save(ctrl.Snapshot()); err != nil {
		return nil, err
	}
	return ctrl, nil
}
