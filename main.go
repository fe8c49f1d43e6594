package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/wx-shi/memo-wallet/internal/chain"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/db"
	"github.com/wx-shi/memo-wallet/internal/indexer"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/internal/server"
	"github.com/wx-shi/memo-wallet/internal/wallet"
	"github.com/wx-shi/memo-wallet/internal/workflow"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

var (
	flagconf    string
	flagmessage string
)

func init() {
	flag.StringVar(&flagconf, "conf", "./config.yaml", "config path, eg: -conf config.yaml")
	flag.StringVar(&flagmessage, "message", "", "memo text, default \"TEST MESSAGE: <time>\"")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [run|serve]\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	os.Exit(realMain())
}

// realMain returns the exit status so deferred cleanup runs before exit.
func realMain() int {
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if cmd != "run" && cmd != "serve" {
		flag.Usage()
		return 2
	}

	// Load configuration
	cfg, err := config.LoadConfig(flagconf)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return 1
	}

	// Initialize logger
	logger, err := pkg.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	net, err := network.ByName(cfg.Network)
	if err != nil {
		logger.Error("Error selecting network", zap.Error(err))
		return 1
	}

	// Initialize state store
	store, err := db.Open(cfg.Store, logger)
	if err != nil {
		logger.Error("Error opening state store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Store::Close", zap.Error(err))
		}
	}()

	if cmd == "serve" {
		return serve(cfg, logger, store, net)
	}
	return run(cfg, logger, store, net)
}

func run(cfg *config.Config, logger *zap.Logger, store db.Store, net *network.Network) int {
	// Cancel the workflow on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch, err := chain.New(cfg.Chain, net, logger)
	if err != nil {
		logger.Error("Error initializing chain client", zap.Error(err))
		return 1
	}
	if n, ok := ch.(*chain.NodeClient); ok {
		defer n.Shutdown()
	}

	marker, err := cfg.Wallet.Marker()
	if err != nil {
		logger.Error("Error decoding data marker", zap.Error(err))
		return 1
	}
	w, err := wallet.NewManager(wallet.Params{
		Network:          net,
		MnemonicLanguage: cfg.Wallet.MnemonicLanguage,
		FeeSatoshis:      cfg.Wallet.FeeSatoshis,
		DataMarker:       marker,
		MaxPayloadBytes:  cfg.Wallet.MaxPayloadBytes,
		RelayFeePerKb:    btcutil.Amount(cfg.Wallet.RelayFeePerKb),
		StrictOwner:      cfg.Wallet.StrictOwner,
	}, store, ch, logger)
	if err != nil {
		logger.Error("Error initializing wallet", zap.Error(err))
		return 1
	}

	message := flagmessage
	if message == "" {
		message = cfg.Wallet.MemoMessage
	}
	runner := workflow.NewRunner(store, w, ch, indexer.NewIndexer(cfg.Indexer, net, store, logger), workflow.Options{
		Message:     message,
		FaucetURL:   cfg.Wallet.FaucetURL,
		ExplorerURL: cfg.Wallet.ExplorerURL,
	}, logger)

	report, err := runner.Run(ctx)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if errors.Is(err, model.ErrInsufficientFunds) && report != nil && report.Identity != nil {
			fields = append(fields, zap.String("address", report.Identity.CashAddress), zap.String("faucet", cfg.Wallet.FaucetURL))
		}
		logger.Error("Workflow failed", fields...)
		return 1
	}

	for _, warn := range report.Warnings {
		logger.Warn("Workflow warning", zap.Error(warn))
	}
	logger.Info("Workflow finished",
		zap.String("cashAddress", report.Identity.CashAddress),
		zap.String("txid", report.Memo.TxID),
		zap.Bool("posted", report.Posted))
	return 0
}

func serve(cfg *config.Config, logger *zap.Logger, store db.Store, net *network.Network) int {
	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	httpServer := server.NewServer(cfg.Server, logger, store, net)
	httpServer.Run()

	// Wait for signal
	<-sigCh
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
		return 1
	}
	return 0
}
