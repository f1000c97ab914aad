// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package legacy lets old VOMS clients that speak a raw XML protocol share a
// port with HTTP clients.
//
// A Parser looks at the first bytes of every connection. Leading '0' bytes
// are padding. A '<' starts a legacy payload which is handed to a Translator
// until it yields a request line; the parser then reports that request,
// plus a fixed set of marker headers, through the same event contract the
// HTTP parser uses. Any other first byte means the connection is plain HTTP
// and the byte is left in place for the HTTP parser.
//
// On the way out, a Generator checks requests for the marker flag. Legacy
// clients get the body alone, written once, and then the output side of the
// connection is shut down. Everything else is framed as regular HTTP.
//
// The XML dialect itself lives in package legacy/vomsxml.
package legacy
