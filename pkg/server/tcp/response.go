// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"fmt"
	"net/http"

	"github.com/absmach/vomsgw/pkg/parser"
)

// responseWriter collects handler output in a parser.Response and hands it
// to a generator. Output is flushed early once it grows past threshold, or
// when the handler flushes.
type responseWriter struct {
	res       *parser.Response
	gen       parser.Generator
	threshold int

	wroteHeader bool
	sniffed     bool
	written     int
	err         error
}

var (
	_ http.ResponseWriter = (*responseWriter)(nil)
	_ http.Flusher        = (*responseWriter)(nil)
)

func newResponseWriter(res *parser.Response, gen parser.Generator, threshold int) *responseWriter {
	return &responseWriter{
		res:       res,
		gen:       gen,
		threshold: threshold,
	}
}

func (w *responseWriter) Header() http.Header {
	return w.res.Header
}

func (w *responseWriter) WriteHeader(code int) {
	if code < 100 || code > 999 {
		panic(fmt.Sprintf("invalid WriteHeader code %v", code))
	}
	// Informational responses are not relayed.
	if w.wroteHeader || code < 200 {
		return
	}
	w.wroteHeader = true
	w.res.Status = code
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	w.res.Body.Write(p)
	if w.res.Body.Len() >= w.threshold {
		w.flush(false)
	}
	if w.err != nil {
		return 0, w.err
	}
	return len(p), nil
}

func (w *responseWriter) Flush() {
	w.flush(false)
}

func (w *responseWriter) flush(final bool) {
	if w.err != nil {
		return
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if !w.sniffed {
		w.sniffed = true
		if _, ok := w.res.Header["Content-Type"]; !ok && w.res.Body.Len() > 0 {
			w.res.Header.Set("Content-Type", http.DetectContentType(w.res.Body.Bytes()))
		}
	}

	n, err := w.gen.Flush(w.res, final)
	w.written += n
	w.err = err
}

// finish sends the remaining output. It returns the body bytes written.
func (w *responseWriter) finish() (int, error) {
	w.flush(true)
	return w.written, w.err
}

func (w *responseWriter) status() int {
	return w.res.StatusCode()
}
