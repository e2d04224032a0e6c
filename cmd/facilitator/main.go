// Command facilitator runs the upto facilitator HTTP service: it verifies
// payment authorizations, settles them on-chain, and records both in a
// Postgres-backed audit store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/upto-protocol/upto-go/config"
	"github.com/upto-protocol/upto-go/facilitatorhttp"
	signerevm "github.com/upto-protocol/upto-go/signers/evm"
	"github.com/upto-protocol/upto-go/store"
)

func main() {
	cfg, err := config.LoadFacilitatorConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "upto facilitator: "+err.Error())
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := signerevm.NewFacilitatorSigner(ctx, cfg.PrivateKey, cfg.RPCURL)
	if err != nil {
		logger.Error("failed to initialize facilitator signer", "error", err)
		os.Exit(1)
	}

	auditStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize audit store", "error", err)
		os.Exit(1)
	}
	defer auditStore.Close()

	router := facilitatorhttp.NewRouter(signer, auditStore, facilitatorhttp.Config{
		Network:     cfg.Network,
		Facilitator: signer.Address(),
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("facilitator listening", "addr", addr, "network", cfg.Network, "facilitator", signer.Address())
	if err := router.Run(addr); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
