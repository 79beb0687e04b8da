// ====================================
// File: cmd/sender/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/app"
	"github.com/rovshanmuradov/wallet-adapter/internal/config"
	"github.com/rovshanmuradov/wallet-adapter/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to config file")
	walletsPath := flag.String("wallets", "configs/wallets.csv", "path to wallets CSV")
	planPath := flag.String("plan", "configs/plan.yaml", "path to batch plan")
	mode := flag.String("mode", "chunked", "submission mode: batch, chunked or retry")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	m, err := app.ParseMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting sender", zap.String("mode", string(m)), zap.Strings("rpc", cfg.RPCList))

	runner := app.NewRunner(cfg, log, app.Options{
		WalletsPath: *walletsPath,
		PlanPath:    *planPath,
		Mode:        m,
	})
	if err := runner.Run(context.Background()); err != nil {
		log.Error("Sender finished with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("✅ All transactions processed")
}
