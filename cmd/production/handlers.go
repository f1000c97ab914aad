// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/absmach/vomsgw/pkg/handler"
	"github.com/absmach/vomsgw/pkg/metrics"
	"github.com/absmach/vomsgw/pkg/ratelimit"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
)

// RateLimitedHandler wraps a handler with rate limiting.
type RateLimitedHandler struct {
	handler          handler.Handler
	perClientLimiter *ratelimit.Limiter
	globalLimiter    *ratelimit.TokenBucket
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// AuthConnect implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	// Check global rate limit
	if !h.globalLimiter.Allow() {
		h.metrics.RateLimitedConnections.WithLabelValues(hctx.Protocol, "global").Inc()
		h.logger.Warn("Global rate limit exceeded",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("protocol", hctx.Protocol))
		return ratelimit.ErrRateLimitExceeded
	}

	// Certificate subjects identify legacy clients better than addresses.
	clientID := ratelimit.ClientKey(hctx.RemoteAddr)
	if hctx.Subject != "" {
		clientID = hctx.Subject
	}

	if !h.perClientLimiter.Allow(clientID) {
		h.metrics.RateLimitedConnections.WithLabelValues(hctx.Protocol, "per_client").Inc()
		h.logger.Warn("Per-client rate limit exceeded",
			slog.String("client", clientID),
			slog.String("protocol", hctx.Protocol))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthConnect(ctx, hctx)
}

// AuthRequest implements handler.Handler.
func (h *RateLimitedHandler) AuthRequest(ctx context.Context, hctx *handler.Context, method string, uri *string) error {
	return h.handler.AuthRequest(ctx, hctx, method, uri)
}

// OnConnect implements handler.Handler.
func (h *RateLimitedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnRequest implements handler.Handler.
func (h *RateLimitedHandler) OnRequest(ctx context.Context, hctx *handler.Context, method, uri string, status int) error {
	return h.handler.OnRequest(ctx, hctx, method, uri, status)
}

// OnDisconnect implements handler.Handler.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// AuthConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.AuthAttempts.WithLabelValues(hctx.Protocol, "connect").Inc()

	err := h.handler.AuthConnect(ctx, hctx)
	if err != nil {
		h.metrics.AuthFailures.WithLabelValues(hctx.Protocol, "connect").Inc()
	}

	return err
}

// AuthRequest implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthRequest(ctx context.Context, hctx *handler.Context, method string, uri *string) error {
	h.metrics.AuthAttempts.WithLabelValues(hctx.Protocol, "request").Inc()

	err := h.handler.AuthRequest(ctx, hctx, method, uri)
	if err != nil {
		h.metrics.AuthFailures.WithLabelValues(hctx.Protocol, "request").Inc()
	}

	return err
}

// OnConnect implements handler.Handler.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnRequest implements handler.Handler with logging of failed requests.
func (h *InstrumentedHandler) OnRequest(ctx context.Context, hctx *handler.Context, method, uri string, status int) error {
	if status >= 500 {
		h.logger.Warn("Request failed",
			slog.String("session", hctx.SessionID),
			slog.String("protocol", hctx.Protocol),
			slog.String("method", method),
			slog.String("uri", uri),
			slog.Int("status", status))
	}

	return h.handler.OnRequest(ctx, hctx, method, uri, status)
}

// OnDisconnect implements handler.Handler.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}
