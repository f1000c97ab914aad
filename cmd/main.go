// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/vomsgw"
	"github.com/absmach/vomsgw/examples/simple"
	"github.com/absmach/vomsgw/pkg/proxy"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	gatewayWithoutTLS = "VOMSGW_WITHOUT_TLS_"
	gatewayWithTLS    = "VOMSGW_WITH_TLS_"
	gatewayWithmTLS   = "VOMSGW_WITH_MTLS_"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger := slog.New(logHandler)

	// Create handler
	handler := simple.New(logger)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, using environment variables")
	}

	if err := startGateway(g, ctx, gatewayWithoutTLS, handler, logger); err != nil {
		logger.Warn("gateway without TLS not started", slog.String("error", err.Error()))
	}

	if err := startGateway(g, ctx, gatewayWithTLS, handler, logger); err != nil {
		logger.Warn("gateway with TLS not started", slog.String("error", err.Error()))
	}

	if err := startGateway(g, ctx, gatewayWithmTLS, handler, logger); err != nil {
		logger.Warn("gateway with mTLS not started", slog.String("error", err.Error()))
	}

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("VOMS gateway terminated with error: %s", err))
	} else {
		logger.Info("VOMS gateway stopped")
	}
}

func startGateway(g *errgroup.Group, ctx context.Context, envPrefix string, handler *simple.Handler, logger *slog.Logger) error {
	cfg, err := vomsgw.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return err
	}

	// Skip if port is not configured
	if cfg.Port == "" {
		return fmt.Errorf("port not configured")
	}

	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return err
	}
	markers, err := cfg.Markers()
	if err != nil {
		return err
	}

	gwCfg := proxy.HTTPConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		TargetURL:       cfg.TargetURL,
		TLSConfig:       tlsConfig,
		ShutdownTimeout: cfg.ShutdownTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		BufferSize:      cfg.BufferSize,
		MaxConnections:  cfg.MaxConnections,
		Markers:         markers,
		ContextPrefix:   cfg.ContextPrefix,
		Logger:          logger,
	}

	gateway, err := proxy.NewHTTP(gwCfg, handler)
	if err != nil {
		return err
	}

	g.Go(func() error {
		return gateway.Listen(ctx)
	})

	logger.Info("VOMS gateway started", slog.String("prefix", envPrefix))
	return nil
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
