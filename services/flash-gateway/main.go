package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/gateway/ratelimit"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/observability/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to gateway configuration")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	logger := logging.Setup("flash-gateway", env)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	client := ledger.NewClient(cfg.Ledger.RequestTimeout())

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := ledger.NewEndpointPool(probeCtx, cfg.Ledger.Endpoints, client.Health)
	cancelProbe()
	if err != nil {
		logger.Error("probe ledger endpoints", "error", err)
		os.Exit(1)
	}
	logger.Info("ledger endpoint selected", "endpoint", pool.Current(), "candidates", pool.Len())

	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	gate := ratelimit.NewGate(ratelimit.NewMemoryCounterStore(), cfg.Limits.GateConfig())
	server := NewServer(cfg, logger, client, pool, gate, store)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
