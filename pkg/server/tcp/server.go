// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/absmach/vomsgw/pkg/buffer"
	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/handler"
	"github.com/absmach/vomsgw/pkg/legacy"
	"github.com/absmach/vomsgw/pkg/legacy/vomsxml"
	"github.com/absmach/vomsgw/pkg/metrics"
)

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// Config holds the gateway server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TLSConfig is optional TLS configuration for the listener
	TLSConfig *tls.Config

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// ReadTimeout bounds classification and the reading of each request.
	ReadTimeout time.Duration

	// WriteTimeout bounds each write to the client.
	WriteTimeout time.Duration

	// IdleTimeout bounds the wait for the next keep-alive request.
	// Zero means ReadTimeout.
	IdleTimeout time.Duration

	// BufferSize is the capacity of the per-connection input buffer, and so
	// the largest legacy request accepted.
	BufferSize int

	// TCPKeepAlive is the keep-alive period of accepted connections.
	// Zero keeps the system default; negative disables keep-alive.
	TCPKeepAlive time.Duration

	// MaxConnections caps concurrent connections. Zero means no limit.
	MaxConnections int

	// Markers are injected into translated requests and reserved for
	// plain HTTP clients.
	Markers *legacy.Markers

	// Translator turns legacy payloads into requests.
	Translator legacy.Translator

	// Logger for server events
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Server accepts gateway connections. Each connection is classified as
// legacy or HTTP, then its requests are served by an http.Handler.
type Server struct {
	config  Config
	next    http.Handler
	handler handler.Handler
	connSem chan struct{}
	conns   sync.Pool
	wg      sync.WaitGroup
}

// New creates a new server with the given configuration, HTTP handler, and
// hooks.
func New(cfg Config, next http.Handler, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = cfg.ReadTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = buffer.DefaultSize
	}
	if cfg.Markers == nil {
		cfg.Markers = legacy.DefaultMarkers()
	}
	if cfg.Translator == nil {
		cfg.Translator = vomsxml.New(vomsxml.DefaultPrefix)
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	s := &Server{
		config:  cfg,
		next:    next,
		handler: h,
	}
	if cfg.MaxConnections > 0 {
		s.connSem = make(chan struct{}, cfg.MaxConnections)
	}
	s.conns.New = func() any {
		return newConn(s)
	}

	return s
}

// Listen starts the server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until the context is cancelled.
// It implements graceful shutdown with connection draining.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", listener.Addr().String()))
	}

	s.config.Logger.Info("gateway server started", slog.String("address", listener.Addr().String()))

	// Cancelled to force remaining connections closed.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}

			if !s.acquire() {
				s.config.Logger.Warn("connection limit reached, rejecting connection",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.Int("max_connections", s.config.MaxConnections))
				conn.Close()
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.release()
				if err := s.handleConn(ctx, connCtx, conn); err != nil && !errors.Is(err, io.EOF) {
					s.config.Logger.Debug("connection handler error",
						slog.String("remote", conn.RemoteAddr().String()),
						slog.String("error", err.Error()))
				}
			}()
		}
	}()

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")

	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		connCancel()
		select {
		case <-done:
		case <-time.After(1 * time.Second):
		}
		return ErrShutdownTimeout
	}
}

func (s *Server) acquire() bool {
	if s.connSem == nil {
		return true
	}
	select {
	case s.connSem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.connSem != nil {
		<-s.connSem
	}
}

// handleConn serves a single client connection using pooled state.
// ctx ends keep-alive loops; connCtx closes the connection outright.
func (s *Server) handleConn(ctx, connCtx context.Context, rwc net.Conn) error {
	defer rwc.Close()

	c := s.conns.Get().(*conn)
	c.reset(rwc)
	defer func() {
		c.release()
		s.conns.Put(c)
	}()

	s.tune(rwc)

	stopForce := context.AfterFunc(connCtx, func() { rwc.Close() })
	defer stopForce()
	stopIdle := context.AfterFunc(ctx, func() {
		if c.idle.Load() {
			rwc.SetReadDeadline(time.Now())
		}
	})
	defer stopIdle()

	if err := c.handshake(ctx); err != nil {
		return err
	}

	s.config.Logger.Debug("connection established",
		slog.String("session", c.hctx.SessionID),
		slog.String("client", c.hctx.RemoteAddr))

	var err error
	if m := s.config.Metrics; m != nil {
		err = m.ObserveConnection(func() (string, error) {
			return c.hctx.Protocol, s.serveObserved(ctx, c)
		})
	} else {
		err = c.serve(ctx)
	}

	if c.connected {
		if herr := s.handler.OnDisconnect(context.Background(), c.hctx); herr != nil {
			s.config.Logger.Error("disconnect handler error",
				slog.String("session", c.hctx.SessionID),
				slog.String("error", herr.Error()))
		}
	}

	s.config.Logger.Debug("connection closed",
		slog.String("session", c.hctx.SessionID),
		slog.String("protocol", c.hctx.Protocol))

	return err
}

func (s *Server) tune(rwc net.Conn) {
	if tc, ok := rwc.(*tls.Conn); ok {
		rwc = tc.NetConn()
	}
	tc, ok := rwc.(*net.TCPConn)
	if !ok {
		return
	}
	switch ka := s.config.TCPKeepAlive; {
	case ka > 0:
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(ka)
	case ka < 0:
		tc.SetKeepAlive(false)
	}
}

// errorType labels err for the connection error counter.
func errorType(err error) string {
	var nerr net.Error
	switch {
	case errors.Is(err, gwerrors.ErrBufferExhausted):
		return "buffer_exhausted"
	case errors.Is(err, gwerrors.ErrProtocolViolation):
		return "protocol_violation"
	case errors.As(err, &nerr) && nerr.Timeout():
		return "timeout"
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrUnexpectedEOF):
		return "closed"
	default:
		return "io"
	}
}

func (s *Server) serveObserved(ctx context.Context, c *conn) error {
	m := s.config.Metrics
	err := c.serve(ctx)
	if err != nil {
		protocol := c.hctx.Protocol
		if protocol == "" {
			protocol = "unknown"
		}
		m.ConnectionErrors.WithLabelValues(protocol, errorType(err)).Inc()
	}
	return err
}
