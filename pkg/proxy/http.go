// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/absmach/vomsgw/pkg/breaker"
	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/handler"
	"github.com/absmach/vomsgw/pkg/legacy"
	"github.com/absmach/vomsgw/pkg/legacy/vomsxml"
	"github.com/absmach/vomsgw/pkg/metrics"
	"github.com/absmach/vomsgw/pkg/server/tcp"
)

// HTTPConfig holds configuration for the gateway.
type HTTPConfig struct {
	Host            string
	Port            string
	TargetURL       string
	TLSConfig       *tls.Config
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	BufferSize      int
	MaxConnections  int

	// Markers defaults to legacy.DefaultMarkers().
	Markers *legacy.Markers

	// ContextPrefix is the REST path prefix of translated requests.
	// Ignored when Translator is set.
	ContextPrefix string
	Translator    legacy.Translator

	// Transport for backend requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Breaker guards the backend when set.
	Breaker *breaker.CircuitBreaker

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// HTTPProxy coordinates the gateway server and the reverse proxy to the
// REST backend.
type HTTPProxy struct {
	server *tcp.Server
	target *httputil.ReverseProxy
}

// NewHTTP creates a new gateway forwarding legacy and plain HTTP requests
// to cfg.TargetURL.
func NewHTTP(cfg HTTPConfig, h handler.Handler) (*HTTPProxy, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("failed to parse target URL: %q is not absolute", cfg.TargetURL)
	}

	if cfg.Markers == nil {
		cfg.Markers = legacy.DefaultMarkers()
	}
	if cfg.Translator == nil {
		cfg.Translator = vomsxml.New(cfg.ContextPrefix)
	}

	rp := newReverseProxy(target, cfg)

	serverCfg := tcp.Config{
		Address:         net.JoinHostPort(cfg.Host, cfg.Port),
		TLSConfig:       cfg.TLSConfig,
		ShutdownTimeout: cfg.ShutdownTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		BufferSize:      cfg.BufferSize,
		MaxConnections:  cfg.MaxConnections,
		Markers:         cfg.Markers,
		Translator:      cfg.Translator,
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
	}

	return &HTTPProxy{
		server: tcp.New(serverCfg, rp, h),
		target: rp,
	}, nil
}

// Handler returns the handler that forwards requests to the backend.
func (p *HTTPProxy) Handler() http.Handler {
	return p.target
}

// Listen starts the gateway and blocks until context is cancelled.
func (p *HTTPProxy) Listen(ctx context.Context) error {
	return p.server.Listen(ctx)
}

// Serve runs the gateway on an existing listener.
func (p *HTTPProxy) Serve(ctx context.Context, l net.Listener) error {
	return p.server.Serve(ctx, l)
}

func newReverseProxy(target *url.URL, cfg HTTPConfig) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	// Modify director to preserve original host
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		// Set the Host header to the target host
		req.Host = target.Host
	}

	var rt http.RoundTripper = http.DefaultTransport
	if cfg.Transport != nil {
		rt = cfg.Transport
	}
	if cfg.Breaker != nil {
		rt = breaker.NewTransport(rt, cfg.Breaker)
	}
	if cfg.Metrics != nil {
		rt = &meteredTransport{base: rt, metrics: cfg.Metrics}
	}
	proxy.Transport = rt

	logger := cfg.Logger
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		status := http.StatusBadGateway
		if errors.Is(err, breaker.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
		}
		if !errors.Is(err, context.Canceled) {
			logger.Warn("backend request failed",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("error", gwerrors.Wrap(err, "backend unavailable").Error()))
		}
		w.WriteHeader(status)
	}

	return proxy
}

// meteredTransport records backend request outcomes.
type meteredTransport struct {
	base    http.RoundTripper
	metrics *metrics.Metrics
}

func (t *meteredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	t.metrics.BackendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		t.metrics.BackendErrors.WithLabelValues(backendErrorType(err)).Inc()
		return nil, err
	}
	t.metrics.BackendRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func backendErrorType(err error) string {
	var nerr net.Error
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &nerr) && nerr.Timeout():
		return "timeout"
	default:
		return "transport"
	}
}
