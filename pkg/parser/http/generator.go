// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/vomsgw/pkg/parser"
)

// Generator frames responses as HTTP/1.1.
//
// A response flushed only once gets a Content-Length. A response flushed
// while the handler is still writing is chunked for HTTP/1.1 clients and
// delimited by closing the connection for HTTP/1.0 clients. A handler that
// sets Content-Length itself is trusted and its body written as is.
type Generator struct {
	w   *bufio.Writer
	now func() time.Time

	wroteHeader bool
	bodyAllowed bool
	chunked     io.WriteCloser
	persistent  bool
}

var _ parser.Generator = (*Generator)(nil)

// NewGenerator creates a generator writing to w.
func NewGenerator(w *bufio.Writer) *Generator {
	return &Generator{
		w:          w,
		now:        time.Now,
		persistent: true,
	}
}

// Flush writes the pending output of res to the connection.
func (g *Generator) Flush(res *parser.Response, final bool) (int, error) {
	if !g.wroteHeader {
		if err := g.writeHeader(res, final); err != nil {
			return 0, err
		}
	}

	var (
		n   int
		err error
	)
	if body := res.Body.Bytes(); g.bodyAllowed && len(body) > 0 {
		if g.chunked != nil {
			n, err = g.chunked.Write(body)
		} else {
			n, err = g.w.Write(body)
		}
	}
	res.Body.Reset()
	if err != nil {
		g.persistent = false
		return n, err
	}

	if final && g.chunked != nil {
		if err := g.chunked.Close(); err != nil {
			g.persistent = false
			return n, err
		}
		// Close writes the last chunk but not the empty trailer.
		if _, err := io.WriteString(g.w, "\r\n"); err != nil {
			g.persistent = false
			return n, err
		}
	}

	if err := g.w.Flush(); err != nil {
		g.persistent = false
		return n, err
	}
	return n, nil
}

func (g *Generator) writeHeader(res *parser.Response, final bool) error {
	g.wroteHeader = true

	req := res.Request
	status := res.StatusCode()
	h := res.Header

	g.persistent = keepAlive(req) && !hasToken(h.Get("Connection"), "close")
	g.bodyAllowed = bodyAllowedForStatus(status) && (req == nil || req.Method != http.MethodHead)

	switch {
	case !g.bodyAllowed:
		h.Del("Transfer-Encoding")
		if req == nil || req.Method != http.MethodHead {
			h.Del("Content-Length")
		}
	case h.Get("Content-Length") != "":
		h.Del("Transfer-Encoding")
	case final:
		h.Set("Content-Length", strconv.Itoa(res.Body.Len()))
	case req != nil && req.ProtoAtLeast(1, 1):
		h.Set("Transfer-Encoding", "chunked")
		g.chunked = httputil.NewChunkedWriter(g.w)
	default:
		g.persistent = false
	}

	if !g.persistent {
		h.Set("Connection", "close")
	} else if req != nil && !req.ProtoAtLeast(1, 1) {
		h.Set("Connection", "keep-alive")
	}
	if h.Get("Date") == "" {
		h.Set("Date", g.now().UTC().Format(http.TimeFormat))
	}

	if _, err := fmt.Fprintf(g.w, "HTTP/1.1 %03d %s\r\n", status, http.StatusText(status)); err != nil {
		return err
	}
	if err := h.Write(g.w); err != nil {
		return err
	}
	_, err := io.WriteString(g.w, "\r\n")
	return err
}

// Persistent reports whether the connection may carry another request.
func (g *Generator) Persistent() bool {
	return g.persistent
}

// Reset prepares the generator for the next response on the connection.
func (g *Generator) Reset() {
	g.wroteHeader = false
	g.bodyAllowed = false
	g.chunked = nil
	g.persistent = true
}

func keepAlive(req *http.Request) bool {
	if req == nil || req.Close {
		return false
	}
	if req.ProtoAtLeast(1, 1) {
		return true
	}
	return hasToken(req.Header.Get("Connection"), "keep-alive")
}

func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func hasToken(v, token string) bool {
	for _, t := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return true
		}
	}
	return false
}
