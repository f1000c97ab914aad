// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"crypto/x509"
)

// Protocols reported in Context.Protocol.
const (
	ProtocolLegacy = "legacy"
	ProtocolHTTP   = "http"
)

// Context contains connection metadata. It is passed to Handler methods to
// provide auth context.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Protocol is ProtocolLegacy for translated XML clients and
	// ProtocolHTTP for everything else.
	Protocol string

	// Subject is the distinguished name of the client certificate, if any.
	Subject string

	// Cert is the client's TLS certificate (if using mTLS)
	Cert *x509.Certificate
}

// Handler defines authorization and notification callbacks for gateway
// events. The connection server calls these methods once the protocol of a
// connection is known.
//
// Authorization methods (AuthConnect, AuthRequest) are called BEFORE the
// request reaches the backend. They can:
// - Return an error to reject the action
// - Rewrite the request URI via its pointer
//
// Notification methods (OnConnect, OnRequest, OnDisconnect) are called AFTER
// the fact for audit logging, metrics, or post-processing. Errors from these
// methods are logged but don't change the outcome.
type Handler interface {
	// AuthConnect authorizes a client connection after its protocol has
	// been classified. Return an error to close the connection.
	AuthConnect(ctx context.Context, hctx *Context) error

	// AuthRequest authorizes a single request. For legacy clients the
	// method and URI are the translated ones. The URI can be modified via
	// its pointer before forwarding. Return an error to answer 403.
	AuthRequest(ctx context.Context, hctx *Context, method string, uri *string) error

	// OnConnect is called after a connection has been authorized.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnRequest is called after a response has been written.
	OnRequest(ctx context.Context, hctx *Context, method, uri string, status int) error

	// OnDisconnect is called when a client disconnects (gracefully or due to error).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows all operations.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) AuthRequest(ctx context.Context, hctx *Context, method string, uri *string) error {
	return nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnRequest(ctx context.Context, hctx *Context, method, uri string, status int) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
