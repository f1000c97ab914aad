// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package http implements the standard HTTP/1.x side of a gateway
// connection.
//
// # Parser
//
// The Parser reads request heads with net/http and reports them through
// parser.EventHandler, in the same shape the legacy parser uses:
//
//	StartRequest("GET", "/voms/atlas/generate-ac", "HTTP/1.1")
//	ParsedHeader("Host", "voms.example.org")
//	ParsedHeader("Accept", "*/*")          // remaining names sorted
//	HeaderComplete()
//
// Header fields whose names are reserved (the legacy marker headers) are
// dropped before they are reported.
//
// # Generator
//
// The Generator writes the status line and headers followed by the body.
// Framing depends on how the handler produced its output:
//
//   - one final flush: Content-Length
//   - flushes while writing, HTTP/1.1: Transfer-Encoding: chunked
//   - flushes while writing, HTTP/1.0: body ends when the connection closes
//   - Content-Length set by the handler: body written as is
//
// HEAD requests and 1xx, 204 and 304 responses never carry a body.
package http
