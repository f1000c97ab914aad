// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides a production-ready VOMS gateway deployment
// with metrics, health checks, a backend circuit breaker and rate limiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/absmach/vomsgw"
	"github.com/absmach/vomsgw/examples/simple"
	"github.com/absmach/vomsgw/pkg/breaker"
	"github.com/absmach/vomsgw/pkg/health"
	"github.com/absmach/vomsgw/pkg/metrics"
	"github.com/absmach/vomsgw/pkg/proxy"
	"github.com/absmach/vomsgw/pkg/ratelimit"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const gatewayPrefix = "VOMSGW_"

// Config holds the application configuration.
type Config struct {
	// Observability
	MetricsPort int    `env:"METRICS_PORT"  envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"   envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"     envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"    envDefault:"json"`

	// Resource Limits
	MaxGoroutines int `env:"MAX_GOROUTINES"   envDefault:"50000"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"   envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT"  envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT"        envDefault:"30s"`

	// Rate Limiting
	RateLimitCapacity  int64 `env:"RATE_LIMIT_CAPACITY"   envDefault:"100"`
	RateLimitRefill    int64 `env:"RATE_LIMIT_REFILL"     envDefault:"10"`
	GlobalRateCapacity int64 `env:"GLOBAL_RATE_CAPACITY"  envDefault:"10000"`
	GlobalRateRefill   int64 `env:"GLOBAL_RATE_REFILL"    envDefault:"1000"`
}

func main() {
	// Load configuration
	cfg := Config{}
	_ = godotenv.Load() // .env file is optional
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	gwCfg, err := vomsgw.NewConfig(env.Options{Prefix: gatewayPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse gateway config: %v\n", err)
		os.Exit(1)
	}
	if gwCfg.Port == "" {
		gwCfg.Port = "15000"
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting VOMS gateway in production mode",
		slog.Int("max_connections", gwCfg.MaxConnections),
		slog.Int("max_goroutines", cfg.MaxGoroutines),
		slog.String("target", gwCfg.TargetURL))

	// Create metrics
	m := metrics.New("vomsgw", prometheus.DefaultRegisterer)

	// Create health checker
	healthChecker := health.NewChecker(10 * time.Second)

	healthChecker.Register("goroutines", health.GoroutineCheck(cfg.MaxGoroutines, func(count int) {
		m.GoroutinesActive.Set(float64(count))
	}))

	healthChecker.Register("memory", func(ctx context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		m.MemoryAllocated.WithLabelValues("heap").Set(float64(stats.HeapAlloc))
		m.MemoryAllocated.WithLabelValues("sys").Set(float64(stats.Sys))
		return nil
	})

	backendCheck, err := health.BackendCheck(gwCfg.TargetURL, 5*time.Second)
	if err != nil {
		logger.Error("Invalid backend URL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthChecker.RegisterCritical("backend", backendCheck)

	// Create rate limiters
	perClientLimiter := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 10000)
	defer perClientLimiter.Close()
	globalLimiter := ratelimit.NewTokenBucket(cfg.GlobalRateCapacity, cfg.GlobalRateRefill)

	// Create circuit breaker
	cb := breaker.New(breaker.Config{
		MaxFailures:      cfg.BreakerMaxFailures,
		ResetTimeout:     cfg.BreakerResetTimeout,
		SuccessThreshold: 2,
	})

	// Monitor circuit breaker state changes
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.CircuitBreakerState.Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.Inc()
		}
	})

	// Create handler with rate limiting wrapper
	baseHandler := simple.New(logger)
	rateLimitedHandler := &RateLimitedHandler{
		handler:          baseHandler,
		perClientLimiter: perClientLimiter,
		globalLimiter:    globalLimiter,
		metrics:          m,
		logger:           logger,
	}

	// Create instrumented handler
	instrumentedHandler := &InstrumentedHandler{
		handler: rateLimitedHandler,
		metrics: m,
		logger:  logger,
	}

	tlsConfig, err := gwCfg.TLSConfig()
	if err != nil {
		logger.Error("Failed to load TLS configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	markers, err := gwCfg.Markers()
	if err != nil {
		logger.Error("Invalid marker headers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gateway, err := proxy.NewHTTP(proxy.HTTPConfig{
		Host:            gwCfg.Host,
		Port:            gwCfg.Port,
		TargetURL:       gwCfg.TargetURL,
		TLSConfig:       tlsConfig,
		ShutdownTimeout: gwCfg.ShutdownTimeout,
		ReadTimeout:     gwCfg.ReadTimeout,
		WriteTimeout:    gwCfg.WriteTimeout,
		IdleTimeout:     gwCfg.IdleTimeout,
		BufferSize:      gwCfg.BufferSize,
		MaxConnections:  gwCfg.MaxConnections,
		Markers:         markers,
		ContextPrefix:   gwCfg.ContextPrefix,
		Transport:       backendTransport(cfg.BreakerTimeout),
		Breaker:         cb,
		Logger:          logger,
		Metrics:         m,
	}, instrumentedHandler)
	if err != nil {
		logger.Error("Failed to create gateway", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return startMetricsServer(ctx, cfg.MetricsPort, logger)
	})
	g.Go(func() error {
		return startHealthServer(ctx, cfg.HealthPort, healthChecker, logger)
	})
	g.Go(func() error {
		logger.Info("Starting VOMS gateway",
			slog.String("host", gwCfg.Host),
			slog.String("port", gwCfg.Port),
			slog.String("markers", markers.String()))
		return gateway.Listen(ctx)
	})

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Cancel context to stop all servers
	cancel()

	// Wait for all goroutines with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gwCfg.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	done := make(chan error)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}

// backendTransport bounds backend round trips by timeout.
func backendTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = timeout
	return t
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// startMetricsServer serves Prometheus metrics until ctx is done.
func startMetricsServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return serve(ctx, "metrics", port, mux, logger)
}

// startHealthServer serves health checks until ctx is done.
func startHealthServer(ctx context.Context, port int, checker *health.Checker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	return serve(ctx, "health", port, mux, logger)
}

func serve(ctx context.Context, name string, port int, h http.Handler, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting "+name+" server", slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error(name+" server error", slog.String("error", err.Error()))
		return err
	}
}
