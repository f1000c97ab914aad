// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"

	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/parser"
)

// Parser reads HTTP/1.x request heads and reports them to an EventHandler.
// The request body is left in the reader and exposed through Request.
type Parser struct {
	r        *bufio.Reader
	handler  parser.EventHandler
	reserved map[string]struct{}
	req      *http.Request
	complete bool
}

var _ parser.Parser = (*Parser)(nil)

// NewParser creates a parser reading from r. Incoming header fields named
// in reserved are dropped, so clients cannot inject headers the gateway
// sets itself.
func NewParser(r *bufio.Reader, h parser.EventHandler, reserved ...string) *Parser {
	rs := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		rs[http.CanonicalHeaderKey(name)] = struct{}{}
	}

	return &Parser{
		r:        r,
		handler:  h,
		reserved: rs,
	}
}

// ParseAvailable reads one request head. It returns io.EOF when the peer
// closed the connection between requests and ErrEarlyEOF when it closed in
// the middle of one. Network errors, timeouts included, are returned as is.
func (p *Parser) ParseAvailable() (bool, error) {
	if p.complete {
		return false, nil
	}

	req, err := http.ReadRequest(p.r)
	var nerr net.Error
	switch {
	case err == nil:
	case errors.As(err, &nerr):
		return false, err
	case errors.Is(err, io.EOF):
		return false, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		p.handler.EarlyEOF()
		return false, gwerrors.ErrEarlyEOF
	default:
		return false, fmt.Errorf("%w: %w", gwerrors.ErrProtocolViolation, err)
	}

	for name := range p.reserved {
		req.Header.Del(name)
	}
	if err := p.emit(req); err != nil {
		return true, err
	}

	p.req = req
	p.complete = true
	return true, nil
}

func (p *Parser) emit(req *http.Request) error {
	if err := p.handler.StartRequest(req.Method, req.RequestURI, req.Proto); err != nil {
		return err
	}

	// ReadRequest moves Host out of the header map.
	if req.Host != "" {
		if err := p.handler.ParsedHeader("Host", req.Host); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range req.Header[name] {
			if err := p.handler.ParsedHeader(name, value); err != nil {
				return err
			}
		}
	}

	return p.handler.HeaderComplete()
}

// IsComplete reports whether a request head has been parsed.
func (p *Parser) IsComplete() bool {
	return p.complete
}

// Request returns the last parsed request. Its Body reads from the
// underlying reader.
func (p *Parser) Request() *http.Request {
	return p.req
}

// Reset prepares the parser for the next request on the same connection.
func (p *Parser) Reset() {
	p.req = nil
	p.complete = false
}
