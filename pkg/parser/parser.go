// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bytes"
	"net/http"
)

// EventHandler receives request parsing events. The same contract is used
// whether the events come from HTTP bytes on the wire or from a translated
// legacy request, which keeps everything downstream unaware of the origin.
//
// Events for one request arrive in order: StartRequest, zero or more
// ParsedHeader, HeaderComplete. EarlyEOF may replace any of them when the
// peer goes away before the request head is complete.
type EventHandler interface {
	// StartRequest is called with the request line.
	StartRequest(method, uri, version string) error

	// ParsedHeader is called once per header field.
	ParsedHeader(name, value string) error

	// HeaderComplete is called after the last header.
	HeaderComplete() error

	// EarlyEOF is called when the input ended before a request was complete.
	EarlyEOF()
}

// Parser consumes the bytes of a connection and feeds an EventHandler.
type Parser interface {
	// ParseAvailable parses whatever input is available, reading more from
	// the connection when it has nothing to work with. It reports whether
	// any progress was made.
	ParseAvailable() (bool, error)

	// IsComplete reports whether a full request head has been parsed.
	IsComplete() bool

	// Reset prepares the parser for a new request.
	Reset()
}

// Response is the pending output of one request.
type Response struct {
	// Request is the in-flight request the response answers.
	Request *http.Request

	// Status is the response status code. Zero means 200.
	Status int

	// Header holds the response header fields.
	Header http.Header

	// Body holds output written by the handler and not flushed yet.
	Body bytes.Buffer
}

// NewResponse creates an empty response for req.
func NewResponse(req *http.Request) *Response {
	return &Response{
		Request: req,
		Header:  make(http.Header),
	}
}

// StatusCode returns the effective status code.
func (r *Response) StatusCode() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// Generator writes responses to a connection and decides their framing.
type Generator interface {
	// Flush writes the pending output of res. final is true when the
	// handler has returned and no more output will follow.
	// It returns the number of body bytes written.
	Flush(res *Response, final bool) (int, error)

	// Persistent reports whether the connection may carry another request
	// after the current response.
	Persistent() bool
}
