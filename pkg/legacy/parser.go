// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package legacy

import (
	"errors"
	"io"
	"log/slog"

	"github.com/absmach/vomsgw/pkg/buffer"
	gwerrors "github.com/absmach/vomsgw/pkg/errors"
	"github.com/absmach/vomsgw/pkg/parser"
)

const (
	zero        = '0'
	leftBracket = '<'
)

// Config holds the collaborators of a Parser.
type Config struct {
	// Translator turns accumulated XML into a request line.
	Translator Translator

	// Markers are injected into every translated request.
	// Defaults to DefaultMarkers().
	Markers *Markers

	// Logger for parser events
	Logger *slog.Logger
}

// Parser classifies the first bytes of a connection. Leading '0' bytes are
// padding and get discarded. A '<' starts a legacy request, which is
// accumulated until the translator accepts it and then reported to the
// event handler as a regular request. Any other byte ends classification
// without being consumed, leaving the stream to the standard HTTP parser.
//
// A Parser shares its input buffer with the standard parser and is driven
// by a single goroutine.
type Parser struct {
	state      State
	buf        *buffer.Buffer
	src        io.Reader
	handler    parser.EventHandler
	translator Translator
	markers    *Markers
	logger     *slog.Logger

	req    Request
	legacy bool
	eof    bool

	// unread length at the last failed translation, -1 if none
	tried    int
	attempts int
	padding  int
}

var _ parser.Parser = (*Parser)(nil)

// NewParser creates a parser reading from src into buf and reporting to h.
func NewParser(buf *buffer.Buffer, src io.Reader, h parser.EventHandler, cfg Config) *Parser {
	if cfg.Markers == nil {
		cfg.Markers = DefaultMarkers()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Parser{
		state:      StateStart,
		buf:        buf,
		src:        src,
		handler:    h,
		translator: cfg.Translator,
		markers:    cfg.Markers,
		logger:     cfg.Logger,
		tried:      -1,
	}
}

// State returns the current classification state.
func (p *Parser) State() State {
	return p.state
}

// IsDone reports whether classification is over.
func (p *Parser) IsDone() bool {
	return p.state == StateDone
}

// IsComplete reports whether a translated request has been emitted.
func (p *Parser) IsComplete() bool {
	return p.state == StateDone && p.legacy
}

// Legacy reports whether the connection carried a legacy request that was
// delivered to the event handler.
func (p *Parser) Legacy() bool {
	return p.legacy
}

// EOF reports whether the input ended before classification.
func (p *Parser) EOF() bool {
	return p.eof
}

// Request returns the translated request line, if any.
func (p *Parser) Request() (Request, bool) {
	return p.req, p.legacy
}

// Attempts returns the number of translation attempts made.
func (p *Parser) Attempts() int {
	return p.attempts
}

// Padding returns the number of leading '0' bytes discarded.
func (p *Parser) Padding() int {
	return p.padding
}

// ParseAvailable feeds the parser until it is done, the buffer runs dry or
// a translation attempt needs more bytes. It reads from the source at most
// once per call.
func (p *Parser) ParseAvailable() (bool, error) {
	if p.IsDone() {
		return false, nil
	}

	n, err := p.Feed()
	progress := n > 0
	for err == nil && !p.IsDone() && p.buf.Len() > 0 && !p.stalled() {
		n, err = p.Feed()
		progress = progress || n > 0
	}

	return progress, err
}

// Feed runs one classification step over the buffered bytes, filling the
// buffer first when it has nothing new to offer. It returns the progress
// made: one per successful fill, one per discarded padding byte and the
// whole buffered length when a legacy payload starts.
//
// Only an exhausted buffer or a read error other than io.EOF is returned.
// Incomplete legacy payloads are not errors.
func (p *Parser) Feed() (int, error) {
	if p.IsDone() {
		return 0, nil
	}

	progress := 0
	if p.buf.Len() == 0 || p.stalled() {
		n, err := p.buf.Fill(p.src)
		switch {
		case n > 0:
			progress++
		case errors.Is(err, gwerrors.ErrBufferExhausted):
			p.logger.Warn("legacy request does not fit the input buffer",
				slog.Int("capacity", p.buf.Cap()),
				slog.Int("attempts", p.attempts))
			p.state = StateDone
			return progress, err
		case err != nil:
			if !errors.Is(err, io.EOF) {
				p.logger.Debug("error filling buffer", slog.String("error", err.Error()))
			}
			p.logger.Debug("input ended before classification, declaring EOF")
			p.state = StateDone
			p.eof = true
			p.handler.EarlyEOF()
			if errors.Is(err, io.EOF) {
				return progress, nil
			}
			return progress, err
		default:
			return progress, nil
		}
	}

	for !p.IsDone() && p.buf.Len() > 0 {
		switch p.state {
		case StateStart, StateFoundZero:
			switch p.buf.Peek() {
			case zero:
				p.buf.Get()
				p.padding++
				progress++
				p.state = StateFoundZero
			case leftBracket:
				p.state = StateAccumulating
				progress += p.buf.Len()
			default:
				// Not ours. The byte stays in the buffer for the HTTP parser.
				p.state = StateDone
				return progress, nil
			}

		case StateAccumulating:
			if p.stalled() {
				return progress, nil
			}
			p.translate()
		}
	}

	return progress, nil
}

// stalled reports whether the last translation failed on exactly the bytes
// still buffered, so a new attempt needs more input first.
func (p *Parser) stalled() bool {
	return p.state == StateAccumulating && p.tried >= 0 && p.buf.Len() <= p.tried
}

func (p *Parser) translate() {
	get, put := p.buf.GetIndex(), p.buf.PutIndex()
	p.attempts++

	req, ok := p.translator.Translate(p.buf.Bytes())
	if !ok {
		p.buf.SetPutIndex(put)
		p.buf.SetGetIndex(get)
		p.tried = p.buf.Len()
		return
	}

	p.buf.Skip(p.buf.Len())
	p.req = req
	p.legacy = true
	p.state = StateDone

	if err := p.notifyRequestComplete(); err != nil {
		p.logger.Error("error completing legacy request translation",
			slog.String("method", req.Method),
			slog.String("uri", req.URI),
			slog.String("error", err.Error()))
		p.req = Request{}
		p.legacy = false
		p.buf.Clear()
	}
}

func (p *Parser) notifyRequestComplete() error {
	if err := p.handler.StartRequest(p.req.Method, p.req.URI, p.req.Version); err != nil {
		return err
	}
	for _, h := range p.markers.headers {
		if err := p.handler.ParsedHeader(h.Name, h.Value); err != nil {
			return err
		}
	}
	return p.handler.HeaderComplete()
}

// Reset returns the parser to StateStart and drops every buffered byte and
// translated field, so the connection state can serve a new peer.
func (p *Parser) Reset() {
	p.state = StateStart
	p.buf.Clear()
	p.req = Request{}
	p.legacy = false
	p.eof = false
	p.tried = -1
	p.attempts = 0
	p.padding = 0
}
