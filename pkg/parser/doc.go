// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the contracts shared by the request parsers and
// response generators of a gateway connection.
//
// # Overview
//
// A connection owns one input buffer and two parsers. The legacy parser
// (package legacy) looks at the first bytes and either translates a legacy
// XML request or steps aside. The standard parser (package parser/http)
// then handles plain HTTP. Both report what they found through the same
// EventHandler:
//
//	bytes → legacy.Parser ──┐
//	                        ├→ EventHandler → *http.Request → http.Handler
//	bytes → http.Parser ────┘
//
// On the way out, a Generator decides the framing. The standard generator
// uses Content-Length, chunked encoding and keep-alive. The legacy
// generator wraps it and, for requests carrying the legacy marker header,
// writes the body once and shuts down the output side instead.
//
// # Event Order
//
//  1. StartRequest(method, uri, version)
//  2. ParsedHeader(name, value), once per header
//  3. HeaderComplete()
//
// EarlyEOF is signaled instead when the peer closes before the request head
// is complete.
package parser
