// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/handler"
	"github.com/absmach/vomsgw/pkg/metrics"
	"github.com/absmach/vomsgw/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type denyRequests struct {
	handler.NoopHandler
}

func (denyRequests) AuthRequest(ctx context.Context, hctx *handler.Context, method string, uri *string) error {
	return gwerrors.ErrUnauthorized
}

func TestRateLimitedHandler(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	limiter := ratelimit.NewLimiter(1, 1, 10)
	defer limiter.Close()

	h := &RateLimitedHandler{
		handler:          &handler.NoopHandler{},
		perClientLimiter: limiter,
		globalLimiter:    ratelimit.NewTokenBucket(100, 1),
		metrics:          m,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	first := &handler.Context{RemoteAddr: "192.0.2.1:1000", Protocol: handler.ProtocolLegacy}
	again := &handler.Context{RemoteAddr: "192.0.2.1:1001", Protocol: handler.ProtocolLegacy}
	other := &handler.Context{RemoteAddr: "192.0.2.2:1000", Protocol: handler.ProtocolLegacy}

	if err := h.AuthConnect(ctx, first); err != nil {
		t.Fatalf("Expected first connection to pass, got %v", err)
	}
	if err := h.AuthConnect(ctx, again); !errors.Is(err, gwerrors.ErrRateLimited) {
		t.Errorf("Expected same host to be limited, got %v", err)
	}
	if err := h.AuthConnect(ctx, other); err != nil {
		t.Errorf("Expected other host to pass, got %v", err)
	}

	if got := testutil.ToFloat64(m.RateLimitedConnections.WithLabelValues(handler.ProtocolLegacy, "per_client")); got != 1 {
		t.Errorf("Expected one per-client rejection, got %v", got)
	}
}

func TestRateLimitedHandler_Global(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	limiter := ratelimit.NewLimiter(100, 1, 10)
	defer limiter.Close()

	h := &RateLimitedHandler{
		handler:          &handler.NoopHandler{},
		perClientLimiter: limiter,
		globalLimiter:    ratelimit.NewTokenBucket(1, 1),
		metrics:          m,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	h.AuthConnect(ctx, &handler.Context{RemoteAddr: "192.0.2.1:1000", Protocol: handler.ProtocolHTTP})
	err := h.AuthConnect(ctx, &handler.Context{RemoteAddr: "192.0.2.2:1000", Protocol: handler.ProtocolHTTP})
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Errorf("Expected global limit, got %v", err)
	}
	if got := testutil.ToFloat64(m.RateLimitedConnections.WithLabelValues(handler.ProtocolHTTP, "global")); got != 1 {
		t.Errorf("Expected one global rejection, got %v", got)
	}
}

func TestInstrumentedHandler(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	h := &InstrumentedHandler{
		handler: &denyRequests{},
		metrics: m,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	hctx := &handler.Context{Protocol: handler.ProtocolLegacy}
	uri := "/voms/atlas/generate-ac"

	if err := h.AuthConnect(ctx, hctx); err != nil {
		t.Fatalf("AuthConnect failed: %v", err)
	}
	if err := h.AuthRequest(ctx, hctx, "GET", &uri); err == nil {
		t.Fatal("Expected AuthRequest to fail")
	}

	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues(handler.ProtocolLegacy, "connect")); got != 1 {
		t.Errorf("Expected one connect attempt, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthFailures.WithLabelValues(handler.ProtocolLegacy, "request")); got != 1 {
		t.Errorf("Expected one request failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthFailures.WithLabelValues(handler.ProtocolLegacy, "connect")); got != 0 {
		t.Errorf("Expected no connect failures, got %v", got)
	}
}
