// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/absmach/vomsgw/pkg/buffer"
	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/handler"
	"github.com/absmach/vomsgw/pkg/legacy"
	"github.com/absmach/vomsgw/pkg/metrics"
	"github.com/absmach/vomsgw/pkg/parser"
	httpparser "github.com/absmach/vomsgw/pkg/parser/http"
	"github.com/google/uuid"
)

const ioBufferSize = 4 << 10

// conn is the per-connection state. It is pooled by the server and reset
// between connections; the parsers read through the conn itself, so they
// survive a reset unchanged.
type conn struct {
	srv *Server
	rwc net.Conn

	buf     *buffer.Buffer
	builder *requestBuilder
	legacy  *legacy.Parser
	http    *httpparser.Parser
	br      *bufio.Reader
	bw      *bufio.Writer
	std     *httpparser.Generator
	gen     *legacy.Generator

	hctx       *handler.Context
	authorized bool
	connected  bool
	idle       atomic.Bool
}

var _ legacy.Output = (*conn)(nil)

func newConn(s *Server) *conn {
	c := &conn{
		srv:     s,
		builder: &requestBuilder{},
		buf:     buffer.New(s.config.BufferSize),
	}

	c.legacy = legacy.NewParser(c.buf, c, c.builder, legacy.Config{
		Translator: s.config.Translator,
		Markers:    s.config.Markers,
		Logger:     s.config.Logger,
	})
	c.br = bufio.NewReaderSize(io.MultiReader(c.buf, c), ioBufferSize)
	c.http = httpparser.NewParser(c.br, c.builder, s.config.Markers.Names()...)
	c.bw = bufio.NewWriterSize(c, ioBufferSize)
	c.std = httpparser.NewGenerator(c.bw)
	c.gen = legacy.NewGenerator(c.std, c, s.config.Markers)

	return c
}

func (c *conn) reset(rwc net.Conn) {
	c.rwc = rwc
	c.legacy.Reset()
	c.http.Reset()
	c.std.Reset()
	c.gen.Reset()
	c.bw.Reset(c)
	c.authorized = false
	c.connected = false
	c.idle.Store(false)

	c.hctx = &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: rwc.RemoteAddr().String(),
	}
	c.builder.reset(c.hctx.RemoteAddr, nil)
}

func (c *conn) release() {
	c.rwc = nil
	c.hctx = nil
	c.builder.reset("", nil)
	c.buf.Clear()
}

// Read implements io.Reader for both parsers.
func (c *conn) Read(p []byte) (int, error) {
	return c.rwc.Read(p)
}

// Write implements io.Writer for both generators.
func (c *conn) Write(p []byte) (int, error) {
	if wt := c.srv.config.WriteTimeout; wt > 0 {
		c.rwc.SetWriteDeadline(time.Now().Add(wt))
	}
	return c.rwc.Write(p)
}

// CloseWrite shuts down the output side, or closes the connection when the
// transport has no half-close.
func (c *conn) CloseWrite() error {
	if cw, ok := c.rwc.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.rwc.Close()
}

func (c *conn) setReadDeadline(d time.Duration) {
	if d > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(d))
		return
	}
	c.rwc.SetReadDeadline(time.Time{})
}

func (c *conn) logger() *slog.Logger {
	return c.srv.config.Logger
}

func (c *conn) metrics() *metrics.Metrics {
	return c.srv.config.Metrics
}

// handshake completes TLS and records the client certificate.
func (c *conn) handshake(ctx context.Context) error {
	tlsConn, ok := c.rwc.(*tls.Conn)
	if !ok {
		return nil
	}

	c.setReadDeadline(c.srv.config.ReadTimeout)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) > 0 {
		c.hctx.Cert = state.PeerCertificates[0]
		c.hctx.Subject = state.PeerCertificates[0].Subject.String()
	}
	c.builder.reset(c.hctx.RemoteAddr, &state)
	return nil
}

// serve classifies the connection and serves its requests.
func (c *conn) serve(ctx context.Context) error {
	c.setReadDeadline(c.srv.config.ReadTimeout)

	err := c.classify()
	if err != nil {
		c.observeClassification(metrics.ResultError)
		return err
	}

	switch {
	case c.legacy.EOF():
		c.observeClassification(metrics.ResultEOF)
		return nil
	case c.legacy.Legacy():
		c.hctx.Protocol = handler.ProtocolLegacy
		c.observeClassification(metrics.ResultLegacy)
		defer c.track()()
		return c.serveLegacy(ctx)
	default:
		c.hctx.Protocol = handler.ProtocolHTTP
		c.observeClassification(metrics.ResultHTTP)
		defer c.track()()
		return c.serveHTTP(ctx)
	}
}

// track counts the connection as active under its protocol until the
// returned func is called.
func (c *conn) track() func() {
	m := c.metrics()
	if m == nil {
		return func() {}
	}
	g := m.ActiveConnections.WithLabelValues(c.hctx.Protocol)
	g.Inc()
	return g.Dec
}

func (c *conn) classify() error {
	for !c.legacy.IsDone() {
		if _, err := c.legacy.ParseAvailable(); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) observeClassification(result string) {
	if m := c.metrics(); m != nil {
		m.ObserveClassification(result, c.legacy.Attempts(), c.legacy.Padding())
	}
	c.logger().Debug("connection classified",
		slog.String("session", c.hctx.SessionID),
		slog.String("result", result),
		slog.Int("attempts", c.legacy.Attempts()),
		slog.Int("padding", c.legacy.Padding()))
}

// serveLegacy answers the single translated request. The legacy generator
// shuts down the output once the response is written.
func (c *conn) serveLegacy(ctx context.Context) error {
	req := c.builder.request()
	if req == nil {
		return fmt.Errorf("%w: no request after translation", gwerrors.ErrProtocolViolation)
	}

	if _, err := c.serveRequest(ctx, req); err != nil {
		return err
	}
	if !c.gen.Ended() {
		return c.CloseWrite()
	}
	return nil
}

// serveHTTP serves keep-alive requests until either side ends the
// connection.
func (c *conn) serveHTTP(ctx context.Context) error {
	// Whatever the prober buffered is replayed ahead of the socket.
	c.br.Reset(io.MultiReader(c.buf, c))

	for first := true; ; first = false {
		c.builder.next()
		c.http.Reset()
		c.std.Reset()

		if !first {
			// The deadline goes first so a shutdown wake-up cannot be
			// overwritten by it.
			c.setReadDeadline(c.srv.config.IdleTimeout)
			c.idle.Store(true)
			if ctx.Err() != nil {
				return nil
			}
		}

		_, err := c.http.ParseAvailable()
		c.idle.Store(false)
		if err != nil {
			return c.readError(err, first)
		}

		c.setReadDeadline(c.srv.config.ReadTimeout)
		req := c.builder.request()
		c.builder.adopt(c.http.Request())

		if _, err := c.serveRequest(ctx, req); err != nil {
			return err
		}
		if !c.gen.Persistent() || !drain(req.Body) {
			return nil
		}
	}
}

func (c *conn) readError(err error, first bool) error {
	var nerr net.Error
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case !first && errors.As(err, &nerr) && nerr.Timeout():
		// Idle keep-alive connection timed out or is being shut down.
		return nil
	case errors.Is(err, gwerrors.ErrProtocolViolation):
		c.writeBadRequest()
		return err
	default:
		return err
	}
}

func (c *conn) writeBadRequest() {
	const msg = "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Connection: close\r\n\r\n" +
		"400 Bad Request"
	c.bw.WriteString(msg)
	c.bw.Flush()
}

// serveRequest authorizes req, runs the HTTP handler and writes the
// response with the connection's generator.
func (c *conn) serveRequest(ctx context.Context, req *http.Request) (int, error) {
	start := time.Now()
	req = req.WithContext(ctx)

	status := c.authorize(ctx, req)
	res := parser.NewResponse(req)
	w := newResponseWriter(res, c.gen, c.srv.config.BufferSize)

	if status == 0 {
		c.handle(w, req)
	} else {
		res.Header.Set("Connection", "close")
		http.Error(w, http.StatusText(status), status)
	}

	n, err := w.finish()
	status = w.status()

	if herr := c.srv.handler.OnRequest(ctx, c.hctx, req.Method, req.RequestURI, status); herr != nil {
		c.logger().Error("request notification error",
			slog.String("session", c.hctx.SessionID),
			slog.String("error", herr.Error()))
	}
	if m := c.metrics(); m != nil {
		m.ObserveRequest(c.hctx.Protocol, req.Method, strconv.Itoa(status), n, time.Since(start))
	}

	c.logger().Debug("request served",
		slog.String("session", c.hctx.SessionID),
		slog.String("protocol", c.hctx.Protocol),
		slog.String("method", req.Method),
		slog.String("uri", req.RequestURI),
		slog.Int("status", status),
		slog.Int("bytes", n))

	if err != nil {
		return n, gwerrors.New("write response", c.hctx.Protocol, c.hctx.SessionID, c.hctx.RemoteAddr, err)
	}
	return n, nil
}

// authorize runs the handler hooks for req. It returns 0 when the request
// may proceed, or the status to answer with.
func (c *conn) authorize(ctx context.Context, req *http.Request) int {
	if !c.authorized {
		if err := c.srv.handler.AuthConnect(ctx, c.hctx); err != nil {
			c.logger().Debug("connection authorization failed",
				slog.String("session", c.hctx.SessionID),
				slog.String("remote", c.hctx.RemoteAddr),
				slog.String("error", err.Error()))
			if errors.Is(err, gwerrors.ErrRateLimited) {
				return http.StatusTooManyRequests
			}
			return http.StatusUnauthorized
		}
		c.authorized = true

		if err := c.srv.handler.OnConnect(ctx, c.hctx); err != nil {
			c.logger().Error("connection notification error",
				slog.String("session", c.hctx.SessionID),
				slog.String("error", err.Error()))
		}
		c.connected = true
	}

	uri := req.RequestURI
	if err := c.srv.handler.AuthRequest(ctx, c.hctx, req.Method, &uri); err != nil {
		c.logger().Debug("request authorization failed",
			slog.String("session", c.hctx.SessionID),
			slog.String("method", req.Method),
			slog.String("uri", req.RequestURI),
			slog.String("error", err.Error()))
		return http.StatusForbidden
	}

	if uri != req.RequestURI {
		u, err := url.ParseRequestURI(uri)
		if err != nil {
			c.logger().Warn("ignoring invalid rewritten URI",
				slog.String("session", c.hctx.SessionID),
				slog.String("uri", uri))
			return 0
		}
		req.URL = u
		req.RequestURI = uri
	}
	return 0
}

// handle runs the HTTP handler, turning panics into a 500 when nothing has
// been written yet.
func (c *conn) handle(w *responseWriter, req *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			if r != http.ErrAbortHandler {
				c.logger().Error("handler panic",
					slog.String("session", c.hctx.SessionID),
					slog.String("uri", req.RequestURI),
					slog.Any("panic", r))
			}
			if !w.wroteHeader {
				w.res.Header.Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}
	}()

	c.srv.next.ServeHTTP(w, req)
}
