// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the gateway's connection server.
//
// # Overview
//
// The server accepts TCP (or TLS) connections and decides, from the first
// bytes a client sends, whether it speaks the legacy XML protocol or plain
// HTTP/1.x. Both kinds of request are then served by the same http.Handler,
// typically a reverse proxy to the REST backend.
//
// # Architecture
//
//	┌─────────┐         ┌─────────────────────────┐         ┌─────────┐
//	│ Client  │ ←─TCP─→ │ Server                  │ ←─HTTP─→│ Backend │
//	└─────────┘         │  legacy.Parser (probe)  │         └─────────┘
//	                    │  http Parser            │
//	                    │  http.Handler           │
//	                    │  legacy.Generator       │
//	                    └─────────────────────────┘
//
// # Connection Flow
//
//  1. Client connects, TLS handshake if configured
//  2. The legacy parser reads until the connection is classified
//  3. Legacy: the translated request, carrying the marker headers, is
//     served once and the raw body is written before the output is shut
//     down
//  4. HTTP: buffered bytes are replayed to the HTTP parser and requests are
//     served in a keep-alive loop with regular framing
//  5. handler.OnDisconnect() is called if the connection was accepted
//
// Clients cannot impersonate a legacy request: marker header names are
// reserved and dropped from plain HTTP requests.
//
// # Hooks
//
// handler.Handler hooks run around each request:
//
//   - AuthConnect on the first request. Failure answers 401, or 429 for
//     errors wrapping errors.ErrRateLimited
//   - OnConnect after a successful AuthConnect
//   - AuthRequest before each request; it may rewrite the URI. Failure
//     answers 403
//   - OnRequest after each response with its status
//
// # Graceful Shutdown
//
// When the context is canceled the listener is closed, idle keep-alive
// connections are woken up and end, and in-flight requests are given
// ShutdownTimeout to complete. Connections still open after that are
// closed and Serve returns ErrShutdownTimeout.
//
// # Connection State
//
// Per-connection buffers, parsers and generators are pooled with
// sync.Pool and reset between clients.
//
// # Example
//
//	cfg := tcp.Config{
//		Address:         ":15000",
//		ReadTimeout:     30 * time.Second,
//		ShutdownTimeout: 30 * time.Second,
//	}
//
//	server := tcp.New(cfg, reverseProxy, &MyHandler{})
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
