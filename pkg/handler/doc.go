// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the hooks that link the gateway to business logic.
//
// # Data Flow
//
//	Client → Server (classifies) → Handler (authorizes) → Backend
//	Backend → Server (frames response) → Handler (notifies) → Client
//
// # Handler Methods
//
// Authorization methods (Auth*) are called before forwarding:
//   - AuthConnect: Verifies the client once its protocol is known
//   - AuthRequest: Authorizes, and may rewrite, a single request
//
// Notification methods (On*) are called after the fact:
//   - OnConnect: Notifies an authorized connection
//   - OnRequest: Notifies a served request with its status
//   - OnDisconnect: Notifies disconnection
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: Unique identifier for this connection
//   - RemoteAddr: Client's network address
//   - Protocol: "legacy" or "http"
//   - Subject, Cert: Client certificate for mTLS connections
//
// Legacy VOMS clients authenticate with their certificate only, so Subject
// is the usual key for authorization decisions.
//
// # Example
//
//	type VOHandler struct {
//		allowed map[string]bool
//	}
//
//	func (h *VOHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
//		if !h.allowed[hctx.Subject] {
//			return errors.New("unknown subject")
//		}
//		return nil
//	}
package handler
