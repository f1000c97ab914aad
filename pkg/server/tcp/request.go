// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/parser"
)

// maxDrain bounds how much of an unread request body is discarded to keep
// a connection alive.
const maxDrain = 256 << 10

var errNoRequestLine = errors.New("header before request line")

// requestBuilder turns parser events into an *http.Request. Both the legacy
// and the standard parser of a connection report to the same builder.
type requestBuilder struct {
	remoteAddr string
	tls        *tls.ConnectionState

	method string
	uri    string
	proto  string
	host   string
	header http.Header
	req    *http.Request
	eof    bool
}

var _ parser.EventHandler = (*requestBuilder)(nil)

func (b *requestBuilder) StartRequest(method, uri, version string) error {
	b.method = method
	b.uri = uri
	b.proto = version
	b.host = ""
	b.header = make(http.Header)
	b.req = nil
	return nil
}

func (b *requestBuilder) ParsedHeader(name, value string) error {
	if b.header == nil {
		return errNoRequestLine
	}
	// Host is a request field, as with http.ReadRequest.
	if name = http.CanonicalHeaderKey(name); name == "Host" {
		b.host = value
		return nil
	}
	b.header.Add(name, value)
	return nil
}

func (b *requestBuilder) HeaderComplete() error {
	if b.header == nil {
		return errNoRequestLine
	}

	major, minor, ok := http.ParseHTTPVersion(b.proto)
	if !ok {
		return fmt.Errorf("%w: malformed HTTP version %q", gwerrors.ErrProtocolViolation, b.proto)
	}
	u, err := url.ParseRequestURI(b.uri)
	if err != nil {
		return fmt.Errorf("%w: %w", gwerrors.ErrProtocolViolation, err)
	}

	host := b.host
	if host == "" {
		host = u.Host
	}

	b.req = &http.Request{
		Method:     b.method,
		URL:        u,
		Proto:      b.proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     b.header,
		Body:       http.NoBody,
		Host:       host,
		RemoteAddr: b.remoteAddr,
		RequestURI: b.uri,
		TLS:        b.tls,
	}
	return nil
}

func (b *requestBuilder) EarlyEOF() {
	b.eof = true
}

// request returns the request built from the last complete event sequence.
func (b *requestBuilder) request() *http.Request {
	return b.req
}

// adopt takes the body and connection semantics of a request read by the
// standard parser.
func (b *requestBuilder) adopt(std *http.Request) {
	if b.req == nil || std == nil {
		return
	}
	b.req.Body = &requestBody{rc: std.Body}
	b.req.ContentLength = std.ContentLength
	b.req.TransferEncoding = std.TransferEncoding
	b.req.Close = std.Close
	b.req.Trailer = std.Trailer
}

func (b *requestBuilder) reset(remoteAddr string, state *tls.ConnectionState) {
	*b = requestBuilder{
		remoteAddr: remoteAddr,
		tls:        state,
	}
}

// next clears the previous request, keeping connection fields.
func (b *requestBuilder) next() {
	b.reset(b.remoteAddr, b.tls)
}

// requestBody keeps the handler from closing the connection's reader and
// remembers whether the body was read to the end.
type requestBody struct {
	rc  io.ReadCloser
	eof bool
}

func (b *requestBody) Read(p []byte) (int, error) {
	if b.eof {
		return 0, io.EOF
	}
	n, err := b.rc.Read(p)
	if err == io.EOF {
		b.eof = true
	}
	return n, err
}

func (b *requestBody) Close() error {
	return nil
}

// drain discards what is left of the body. It reports whether the
// connection is positioned at the next request.
func drain(body io.ReadCloser) bool {
	rb, ok := body.(*requestBody)
	if !ok {
		return true
	}
	if rb.eof {
		return true
	}
	_, err := io.CopyN(io.Discard, rb, maxDrain)
	return errors.Is(err, io.EOF)
}
