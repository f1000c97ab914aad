// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package legacy

import (
	"io"

	"github.com/absmach/vomsgw/pkg/parser"
)

// Output is the connection side a legacy response is written to.
type Output interface {
	io.Writer

	// CloseWrite shuts down the writing side of the connection.
	CloseWrite() error
}

// Generator chooses the framing of a response from its request. Requests
// carrying the marker flag get the bare body in a single write followed by
// an output shutdown. Everything else goes to the wrapped standard
// generator.
type Generator struct {
	std     parser.Generator
	out     Output
	markers *Markers
	ended   bool
}

var _ parser.Generator = (*Generator)(nil)

// NewGenerator wraps std. Legacy responses are written to out.
func NewGenerator(std parser.Generator, out Output, markers *Markers) *Generator {
	if markers == nil {
		markers = DefaultMarkers()
	}
	return &Generator{
		std:     std,
		out:     out,
		markers: markers,
	}
}

// IsLegacy reports whether res answers a translated request.
func (g *Generator) IsLegacy(res *parser.Response) bool {
	return res.Request != nil && g.markers.IsLegacy(res.Request.Header)
}

// Flush writes the pending output of res. For legacy requests intermediate
// flushes are coalesced: the final flush writes everything pending in one
// call and shuts down the output. Once ended, output is discarded.
func (g *Generator) Flush(res *parser.Response, final bool) (int, error) {
	if !g.IsLegacy(res) {
		return g.std.Flush(res, final)
	}

	if g.ended {
		res.Body.Reset()
		return 0, nil
	}
	if !final {
		return 0, nil
	}

	n, err := g.out.Write(res.Body.Bytes())
	res.Body.Reset()
	g.ended = true

	if cerr := g.out.CloseWrite(); err == nil {
		err = cerr
	}
	return n, err
}

// Persistent reports whether the connection may carry another request.
// It is always false once a legacy response has been written.
func (g *Generator) Persistent() bool {
	if g.ended {
		return false
	}
	return g.std.Persistent()
}

// Ended reports whether the output side has been shut down.
func (g *Generator) Ended() bool {
	return g.ended
}

// Reset clears the ended state for a new connection.
func (g *Generator) Reset() {
	g.ended = false
}
