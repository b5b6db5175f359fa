package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/config"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/core"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/observability/logging"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/rpc"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/storage"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to node configuration")
	env := flag.String("env", "development", "deployment environment")
	flag.Parse()

	logger := logging.Setup("flashnoded", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	store, err := storage.OpenBolt(filepath.Join(cfg.DataDir, "pools.db"))
	if err != nil {
		logger.Error("open pool store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	node := core.NewNode(store, logger)
	if cfg.FeeCeilingBps > 0 {
		node.SetFeeCeiling(cfg.FeeCeilingBps)
	}
	if err := seedGenesisPools(node, cfg.GenesisPools, logger); err != nil {
		logger.Error("seed genesis pools", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpc.NewServer(node, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("node listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
		errCh <- server.ListenAndServe()
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
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// seedGenesisPools creates each configured pool the first time the node
// boots. Existing pools are left untouched so restarts are idempotent.
func seedGenesisPools(node *core.Node, pools []config.GenesisPool, logger *slog.Logger) error {
	for _, genesis := range pools {
		if _, err := node.GetPool(genesis.ID); err == nil {
			continue
		}
		envelope, err := core.EncodeTransaction(&core.Transaction{
			Action:     core.ActionCreatePool,
			PoolID:     genesis.ID,
			Sender:     genesis.Owner,
			Amount:     genesis.Deposit,
			FeeRateBps: genesis.FeeRateBps,
			MaxLoan:    genesis.MaxLoanAmount,
			Nonce:      "genesis-" + genesis.ID,
		})
		if err != nil {
			return err
		}
		result, err := node.Execute(envelope)
		if err != nil {
			return err
		}
		logger.Info("genesis pool created", "poolId", genesis.ID, "digest", result.Digest)
	}
	return nil
}
